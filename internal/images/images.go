// Package images implements the image side of the asset pipeline: owner
// scoped collections of stored originals plus their declared renditions and
// extra encodings.
package images

import (
	"image"

	"github.com/mediakit-go/mediakit/internal/derivative"
	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/db/models"
)

// Kind is the storage subtree images live under.
const Kind = "images"

// VariantOriginal names the rendition holding the uploaded original. When an
// owner declares a transform under this name, the stored original is the
// transformed upload, not the raw bytes.
const VariantOriginal = "original"

// Owner is the capability an entity implements to attach images.
type Owner interface {
	// ModelName is the polymorphic discriminator, e.g. "products".
	ModelName() string
	// ObjectKey is the owner's id rendered as a path segment.
	ObjectKey() string
	// ImageDerivatives declares the renditions to maintain per asset.
	ImageDerivatives() map[string]Thumbnail
}

// DiskNamer lets an owner pin its assets to a named disk instead of the
// default one.
type DiskNamer interface {
	DiskName() string
}

// ExtraFormatter lets an owner override the configured extra encodings.
type ExtraFormatter interface {
	ImageExtraFormats() []config.ExtraFormatSpec
}

// AutoNamer lets an owner derive filenames from its own title or slug
// instead of the upload's name.
type AutoNamer interface {
	AutoNamingEnabled() bool
	AutoName() string
}

// Thumbnail declares one image rendition.
type Thumbnail struct {
	// Transform maps the decoded source to the rendition image. Nil keeps
	// the source unchanged (re-encode only).
	Transform func(src image.Image) image.Image
	// OnlyForMain restricts the rendition to the partition's main asset.
	OnlyForMain bool
	// ForTypes restricts the rendition to assets with these type tags.
	ForTypes []string
	// Quality is the encode quality; 0 uses the codec default.
	Quality int
	// Format forces the output encoding; "" keeps the source format.
	Format string
	// CreateIf gates generation per asset. Nil means always.
	CreateIf func(asset *models.Image) bool
}

func (t Thumbnail) meta() derivative.Meta {
	return derivative.Meta{OnlyForMain: t.OnlyForMain, ForTypes: t.ForTypes}
}
