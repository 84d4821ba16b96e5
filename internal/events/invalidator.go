package events

import "context"

// ownerInvalidator is the slice of the redis client the notifier needs.
type ownerInvalidator interface {
	InvalidateOwner(ctx context.Context, model, objectID string) error
}

// CacheInvalidator drops the owner's cached asset listings whenever the
// collection changes.
type CacheInvalidator struct {
	store ownerInvalidator
}

func NewCacheInvalidator(store ownerInvalidator) *CacheInvalidator {
	return &CacheInvalidator{store: store}
}

func (c *CacheInvalidator) invalidate(ctx context.Context, model, objectID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.InvalidateOwner(ctx, model, objectID)
}

func (c *CacheInvalidator) AssetAdded(ctx context.Context, ev AssetAdded) error {
	return c.invalidate(ctx, ev.Model, ev.ObjectID)
}

func (c *CacheInvalidator) AssetRemoved(ctx context.Context, ev AssetRemoved) error {
	return c.invalidate(ctx, ev.Model, ev.ObjectID)
}

func (c *CacheInvalidator) PositionsChanged(ctx context.Context, ev PositionsChanged) error {
	return c.invalidate(ctx, ev.Model, ev.ObjectID)
}
