// Package derivative holds the applicability rules shared by image and video
// renditions. A rendition runs only when every gate passes; a failed gate is
// a policy skip, never an error.
package derivative

import (
	"fmt"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

// Outcome classifies what happened to one rendition request.
type Outcome int

const (
	// OutcomeGenerated means the transform ran and bytes were written.
	OutcomeGenerated Outcome = iota
	// OutcomeSkipped means an applicability gate declined the rendition.
	OutcomeSkipped
	// OutcomeCopied means the source was exempt and copied verbatim.
	OutcomeCopied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCopied:
		return "copied"
	default:
		return "unknown"
	}
}

// Meta carries the gates every rendition kind shares.
type Meta struct {
	// OnlyForMain restricts generation to the partition's main asset.
	OnlyForMain bool
	// ForTypes restricts generation to assets carrying one of these type
	// tags. Empty means no restriction. Untyped assets always pass.
	ForTypes []string
}

// Asset is the minimal view the gates need.
type Asset interface {
	IsMain() bool
	TypeValue() string
}

// Applies evaluates the main and type gates for one asset.
func Applies(m Meta, a Asset) bool {
	if m.OnlyForMain && !a.IsMain() {
		return false
	}
	if len(m.ForTypes) > 0 {
		assetType := a.TypeValue()
		if assetType == "" {
			return true
		}
		for _, t := range m.ForTypes {
			if t == assetType {
				return true
			}
		}
		return false
	}
	return true
}

// ErrUnknown builds the error returned when an undeclared rendition name is
// requested.
func ErrUnknown(name string) error {
	return errors.New(errors.CodeUnknownDerivative, fmt.Sprintf("derivative %q is not declared", name))
}
