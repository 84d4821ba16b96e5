// Package videos implements the video side of the asset pipeline. Videos are
// either local (bytes on a disk, renditions transcoded via ffmpeg) or remote
// (a hosting URL, nothing stored).
package videos

import (
	"context"
	"time"

	"github.com/mediakit-go/mediakit/internal/derivative"
	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/db/models"
)

// Kind is the storage subtree videos live under.
const Kind = "videos"

// VariantOriginal names the rendition holding the uploaded original.
const VariantOriginal = "original"

// chunkDir is the scratch directory chunked uploads assemble in.
const chunkDir = "_chunks"

// Owner is the capability an entity implements to attach videos.
type Owner interface {
	// ModelName is the polymorphic discriminator, e.g. "products".
	ModelName() string
	// ObjectKey is the owner's id rendered as a path segment.
	ObjectKey() string
	// VideoDerivatives declares the renditions to maintain per asset.
	VideoDerivatives() map[string]Variant
}

// DiskNamer lets an owner pin its assets to a named disk.
type DiskNamer interface {
	DiskName() string
}

// ExtraFormatter lets an owner override the configured extra containers.
type ExtraFormatter interface {
	VideoExtraFormats() []config.ExtraFormatSpec
}

// AutoNamer lets an owner derive filenames from its own title or slug.
type AutoNamer interface {
	AutoNamingEnabled() bool
	AutoName() string
}

// Variant declares one video rendition. There is no in-process transform;
// the rendition is a transcode of the original into Format.
type Variant struct {
	// Format is the target container, e.g. "webm" or "mp4". "" keeps the
	// source container (re-mux only).
	Format string
	// Quality is the encode quality on the 1-100 scale; 0 uses the codec
	// default.
	Quality int
	// OnlyForMain restricts the rendition to the partition's main asset.
	OnlyForMain bool
	// ForTypes restricts the rendition to assets with these type tags.
	ForTypes []string
	// CreateIf gates generation per asset. Nil means always.
	CreateIf func(asset *models.Video) bool
}

func (v Variant) meta() derivative.Meta {
	return derivative.Meta{OnlyForMain: v.OnlyForMain, ForTypes: v.ForTypes}
}

// Transcoder is the ffmpeg surface the collection consumes.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst, format string, quality int) error
	ExtractFrame(ctx context.Context, src string, at time.Duration) ([]byte, error)
	Duration(ctx context.Context, src string) (time.Duration, error)
}
