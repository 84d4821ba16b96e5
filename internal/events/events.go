// Package events defines the notifications emitted after asset mutations
// commit. Consumers invalidate caches and fan out to external systems.
package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Kind distinguishes the two asset families.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// NewEventID mints the id stamped on every emitted notification. Consumers
// use it for dedup.
func NewEventID() string {
	return uuid.NewString()
}

// AssetAdded fires after an asset row and its bytes are committed.
type AssetAdded struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Model    string `json:"model"`
	ObjectID string `json:"object_id"`
	AssetID  uint   `json:"asset_id"`
	Filename string `json:"filename"`
}

// AssetRemoved fires after an asset and its derivatives are deleted.
type AssetRemoved struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Model    string `json:"model"`
	ObjectID string `json:"object_id"`
	AssetID  uint   `json:"asset_id"`
	Filename string `json:"filename"`
}

// PositionsChanged fires after a reorder. IDs lists the affected asset ids
// in their new order; nil means "the whole collection changed".
type PositionsChanged struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Model    string `json:"model"`
	ObjectID string `json:"object_id"`
	IDs      []uint `json:"ids,omitempty"`
}

// Notifier receives asset lifecycle notifications. Implementations must be
// safe to call after the surrounding transaction commits; errors are
// reported to the caller but must not undo the mutation.
type Notifier interface {
	AssetAdded(ctx context.Context, ev AssetAdded) error
	AssetRemoved(ctx context.Context, ev AssetRemoved) error
	PositionsChanged(ctx context.Context, ev PositionsChanged) error
}

// Fanout dispatches each notification to every registered notifier,
// aggregating failures so one broken consumer does not starve the rest.
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) AssetAdded(ctx context.Context, ev AssetAdded) error {
	var err error
	for _, n := range f.notifiers {
		err = multierr.Append(err, n.AssetAdded(ctx, ev))
	}
	return err
}

func (f *Fanout) AssetRemoved(ctx context.Context, ev AssetRemoved) error {
	var err error
	for _, n := range f.notifiers {
		err = multierr.Append(err, n.AssetRemoved(ctx, ev))
	}
	return err
}

func (f *Fanout) PositionsChanged(ctx context.Context, ev PositionsChanged) error {
	var err error
	for _, n := range f.notifiers {
		err = multierr.Append(err, n.PositionsChanged(ctx, ev))
	}
	return err
}

// Noop drops every notification. Used where no consumers are wired.
type Noop struct{}

func (Noop) AssetAdded(context.Context, AssetAdded) error             { return nil }
func (Noop) AssetRemoved(context.Context, AssetRemoved) error         { return nil }
func (Noop) PositionsChanged(context.Context, PositionsChanged) error { return nil }
