package images

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mediakit-go/mediakit/internal/codec"
	"github.com/mediakit-go/mediakit/internal/derivative"
	"github.com/mediakit-go/mediakit/internal/naming"
	"github.com/mediakit-go/mediakit/internal/storage"
	"github.com/mediakit-go/mediakit/pkg/db/models"
)

// Dir returns the directory of one variant for this owner.
func (c *Collection) Dir(variant string) string {
	return storage.ObjectDir(Kind, c.model(), c.objectID(), variant)
}

// path composes the storage path of one rendition of img. A non-empty
// format substitutes the filename extension, except for SVG assets which
// always keep their name untouched.
func (c *Collection) path(img *models.Image, variant, format string) string {
	name := img.Filename
	if format != "" && !img.IsSVG() {
		name = naming.FormatFilename(name, img.FormatValue(), format)
	}
	return storage.JoinPath(c.Dir(variant), name)
}

// Path is the exported form of path.
func (c *Collection) Path(img *models.Image, variant, format string) string {
	return c.path(img, variant, format)
}

// URL returns the public URL of one rendition, with the cache-busting
// version parameter appended when enabled.
func (c *Collection) URL(img *models.Image, variant string) (string, error) {
	disk, err := c.disk("")
	if err != nil {
		return "", err
	}
	u := disk.URL(c.path(img, variant, ""))
	if u == "" {
		return "", nil
	}
	if c.svc.cfg.URLVersion {
		u += "?v=" + strconv.FormatInt(img.UpdatedAt.Unix(), 10)
	}
	return u, nil
}

// variantList is the original plus every declared rendition, without
// duplicating a declared "original".
func (c *Collection) variantList() []string {
	variants := []string{VariantOriginal}
	for _, name := range sortedNames(c.owner.ImageDerivatives()) {
		if name == VariantOriginal {
			continue
		}
		variants = append(variants, name)
	}
	return variants
}

func sortedNames(decls map[string]Thumbnail) []string {
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateDerivative generates one declared rendition for img.
func (c *Collection) CreateDerivative(ctx context.Context, img *models.Image, name string) (derivative.Outcome, error) {
	disk, err := c.disk("")
	if err != nil {
		return derivative.OutcomeSkipped, err
	}
	return c.createDerivative(ctx, disk, img, name, nil, nil)
}

// CreateAllDerivatives generates every declared rendition for img.
func (c *Collection) CreateAllDerivatives(ctx context.Context, img *models.Image) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	return c.generateAll(ctx, disk, img, nil, nil)
}

// CreateMainOnlyDerivatives generates the renditions gated to the main
// asset.
func (c *Collection) CreateMainOnlyDerivatives(ctx context.Context, img *models.Image) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	decls := c.owner.ImageDerivatives()
	for _, name := range sortedNames(decls) {
		if !decls[name].OnlyForMain {
			continue
		}
		if _, err := c.createDerivative(ctx, disk, img, name, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMainOnlyDerivatives deletes the main-gated rendition files of img.
func (c *Collection) RemoveMainOnlyDerivatives(ctx context.Context, img *models.Image) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	decls := c.owner.ImageDerivatives()
	for _, name := range sortedNames(decls) {
		if !decls[name].OnlyForMain {
			continue
		}
		if err := c.deleteDerivativeFiles(ctx, disk, img, name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDerivativeFor deletes one rendition's files for img.
func (c *Collection) RemoveDerivativeFor(ctx context.Context, img *models.Image, name string) error {
	if _, ok := c.owner.ImageDerivatives()[name]; !ok {
		return derivative.ErrUnknown(name)
	}
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	return c.deleteDerivativeFiles(ctx, disk, img, name)
}

// RecreateDerivativeFor deletes and regenerates one rendition for img.
func (c *Collection) RecreateDerivativeFor(ctx context.Context, img *models.Image, name string) error {
	if err := c.RemoveDerivativeFor(ctx, img, name); err != nil {
		return err
	}
	_, err := c.CreateDerivative(ctx, img, name)
	return err
}

// RemoveDerivative deletes one rendition's files for every asset in the
// collection.
func (c *Collection) RemoveDerivative(ctx context.Context, name string) error {
	rows, err := c.List(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := c.RemoveDerivativeFor(ctx, &rows[i], name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAllDerivatives deletes every rendition's files for every asset,
// leaving originals in place.
func (c *Collection) RemoveAllDerivatives(ctx context.Context) error {
	for _, name := range sortedNames(c.owner.ImageDerivatives()) {
		if name == VariantOriginal {
			continue
		}
		if err := c.RemoveDerivative(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// RecreateDerivative regenerates one rendition for every asset.
func (c *Collection) RecreateDerivative(ctx context.Context, name string) error {
	rows, err := c.List(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := c.RecreateDerivativeFor(ctx, &rows[i], name); err != nil {
			return err
		}
	}
	return nil
}

// RecreateAllDerivatives regenerates every rendition for every asset.
func (c *Collection) RecreateAllDerivatives(ctx context.Context) error {
	names := sortedNames(c.owner.ImageDerivatives())
	rows, err := c.List(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		for _, name := range names {
			if name == VariantOriginal {
				continue
			}
			if err := c.RecreateDerivativeFor(ctx, &rows[i], name); err != nil {
				return err
			}
		}
	}
	return nil
}

// generateAll runs every declared rendition for img. A declared "original"
// transform runs first and replaces the stored original; the remaining
// renditions then read that stored result so they derive from the
// transformed asset, not the raw upload. inMemory, when set, feeds the
// first generation so the just-uploaded bytes are not read back from disk.
func (c *Collection) generateAll(ctx context.Context, disk storage.Disk, img *models.Image, inMemory []byte, written *[]string) error {
	decls := c.owner.ImageDerivatives()
	if _, ok := decls[VariantOriginal]; ok {
		if _, err := c.createDerivative(ctx, disk, img, VariantOriginal, inMemory, written); err != nil {
			return err
		}
		inMemory = nil
	}
	for _, name := range sortedNames(decls) {
		if name == VariantOriginal {
			continue
		}
		if _, err := c.createDerivative(ctx, disk, img, name, inMemory, written); err != nil {
			return err
		}
	}
	return nil
}

// createDerivative is the single-rendition pipeline: gate, resolve source,
// copy verbatim for exempt formats, otherwise decode-transform-encode, then
// emit the extra encodings of the result.
func (c *Collection) createDerivative(
	ctx context.Context,
	disk storage.Disk,
	img *models.Image,
	name string,
	inMemory []byte,
	written *[]string,
) (derivative.Outcome, error) {
	decl, ok := c.owner.ImageDerivatives()[name]
	if !ok {
		return derivative.OutcomeSkipped, derivative.ErrUnknown(name)
	}
	if decl.CreateIf != nil && !decl.CreateIf(img) {
		c.svc.pipeline.IncSkipped(name)
		return derivative.OutcomeSkipped, nil
	}
	if !derivative.Applies(decl.meta(), img) {
		c.svc.pipeline.IncSkipped(name)
		return derivative.OutcomeSkipped, nil
	}

	src := inMemory
	if src == nil {
		stored, err := disk.Get(ctx, c.path(img, VariantOriginal, ""))
		if err != nil {
			return derivative.OutcomeSkipped, err
		}
		src = stored
	}

	start := time.Now()
	dstPath := c.path(img, name, decl.Format)

	if !codec.Transformable(img.FormatValue(), src) {
		// vector/exempt sources are copied byte for byte
		if err := disk.Put(ctx, dstPath, src); err != nil {
			c.svc.pipeline.IncFailed(name)
			return derivative.OutcomeSkipped, err
		}
		record(written, dstPath)
		c.svc.pipeline.IncGenerated(name)
		return derivative.OutcomeCopied, nil
	}

	decoded, srcFormat, err := c.svc.codec.Decode(src)
	if err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}

	out := decoded
	if decl.Transform != nil {
		out = decl.Transform(decoded)
	}

	format := decl.Format
	if format == "" {
		format = img.FormatValue()
	}
	if format == "" {
		format = srcFormat
	}

	encoded, err := c.svc.codec.Encode(out, format, decl.Quality)
	if err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}
	if err := disk.Put(ctx, dstPath, encoded); err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}
	record(written, dstPath)

	if err := c.writeExtraFormats(ctx, disk, img, name, encoded, written); err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}

	c.svc.pipeline.ObserveDuration(name, time.Since(start))
	c.svc.pipeline.IncGenerated(name)
	return derivative.OutcomeGenerated, nil
}

// writeExtraFormats emits the configured secondary encodings of data at the
// given variant. SVG assets and formats equal to data's own encoding are
// skipped.
func (c *Collection) writeExtraFormats(
	ctx context.Context,
	disk storage.Disk,
	img *models.Image,
	variant string,
	data []byte,
	written *[]string,
) error {
	return c.writeExtraFormatsOnly(ctx, disk, img, variant, data, "", written)
}

// writeExtraFormatsOnly is writeExtraFormats restricted to a single output
// format when only is non-empty.
func (c *Collection) writeExtraFormatsOnly(
	ctx context.Context,
	disk storage.Disk,
	img *models.Image,
	variant string,
	data []byte,
	only string,
	written *[]string,
) error {
	if img.IsSVG() || !codec.Transformable(img.FormatValue(), data) {
		return nil
	}
	formats := c.extraFormats()
	if len(formats) == 0 {
		return nil
	}

	decoded, srcFormat, err := c.svc.codec.Decode(data)
	if err != nil {
		return err
	}
	for _, ef := range formats {
		if codec.SameFormat(ef.Format, srcFormat) {
			continue
		}
		if only != "" && !strings.EqualFold(ef.Format, only) {
			continue
		}
		encoded, err := c.svc.codec.Encode(decoded, ef.Format, ef.Quality)
		if err != nil {
			return err
		}
		if strings.EqualFold(ef.Format, "webp") && c.svc.cfg.LegacyWebpPadding {
			encoded = codec.PadLegacyWebp(encoded)
		}
		path := c.path(img, variant, ef.Format)
		if err := disk.Put(ctx, path, encoded); err != nil {
			return err
		}
		record(written, path)
	}
	return nil
}

// RegenerateExtraFormats re-emits the secondary encodings of the stored
// original and of every declared rendition whose file exists. only restricts
// the run to a single output format when non-empty.
func (c *Collection) RegenerateExtraFormats(ctx context.Context, img *models.Image, only string) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	for _, variant := range c.variantList() {
		format := ""
		if decl, ok := c.owner.ImageDerivatives()[variant]; ok {
			format = decl.Format
		}
		path := c.path(img, variant, format)
		exists, err := disk.Exists(ctx, path)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		data, err := disk.Get(ctx, path)
		if err != nil {
			return err
		}
		if err := c.writeExtraFormatsOnly(ctx, disk, img, variant, data, only, nil); err != nil {
			return err
		}
	}
	return nil
}

// ExtraFormatSizes sums the on-disk bytes of img's extra format files, keyed
// by format. Missing files count as zero.
func (c *Collection) ExtraFormatSizes(ctx context.Context, img *models.Image) (map[string]int64, error) {
	disk, err := c.disk("")
	if err != nil {
		return nil, err
	}
	sizes := map[string]int64{}
	for _, ef := range c.extraFormats() {
		for _, variant := range c.variantList() {
			path := c.path(img, variant, ef.Format)
			exists, err := disk.Exists(ctx, path)
			if err != nil {
				return nil, err
			}
			if !exists {
				continue
			}
			size, err := disk.Size(ctx, path)
			if err != nil {
				return nil, err
			}
			sizes[strings.ToLower(ef.Format)] += size
		}
	}
	return sizes, nil
}

// deleteDerivativeFiles removes one rendition's file plus its extra format
// siblings. Missing files are tolerated; a failing disk is not.
func (c *Collection) deleteDerivativeFiles(ctx context.Context, disk storage.Disk, img *models.Image, name string) error {
	decl := c.owner.ImageDerivatives()[name]
	if err := disk.Delete(ctx, c.path(img, name, decl.Format)); err != nil {
		return err
	}
	for _, ef := range c.extraFormats() {
		if err := disk.Delete(ctx, c.path(img, name, ef.Format)); err != nil {
			return err
		}
	}
	return nil
}

// deleteAssetFiles removes the original, its extra formats and every
// declared rendition of img.
func (c *Collection) deleteAssetFiles(ctx context.Context, disk storage.Disk, img *models.Image) error {
	if err := disk.Delete(ctx, c.path(img, VariantOriginal, "")); err != nil {
		return err
	}
	for _, ef := range c.extraFormats() {
		if err := disk.Delete(ctx, c.path(img, VariantOriginal, ef.Format)); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(c.owner.ImageDerivatives()) {
		if name == VariantOriginal {
			continue
		}
		if err := c.deleteDerivativeFiles(ctx, disk, img, name); err != nil {
			return err
		}
	}
	return nil
}

func record(written *[]string, path string) {
	if written != nil {
		*written = append(*written, path)
	}
}
