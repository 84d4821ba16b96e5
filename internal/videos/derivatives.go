package videos

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mediakit-go/mediakit/internal/derivative"
	"github.com/mediakit-go/mediakit/internal/naming"
	"github.com/mediakit-go/mediakit/internal/storage"
	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

// Dir returns the directory of one variant for this owner.
func (c *Collection) Dir(variant string) string {
	return storage.ObjectDir(Kind, c.model(), c.objectID(), variant)
}

// path composes the storage path of one rendition of v. A non-empty format
// substitutes the filename extension.
func (c *Collection) path(v *models.Video, variant, format string) string {
	name := v.FilenameValue()
	if format != "" {
		name = naming.FormatFilename(name, v.FormatValue(), format)
	}
	return storage.JoinPath(c.Dir(variant), name)
}

// Path is the exported form of path.
func (c *Collection) Path(v *models.Video, variant, format string) string {
	return c.path(v, variant, format)
}

// URL returns the public URL of one rendition. Remote videos return their
// hosting URL untouched.
func (c *Collection) URL(v *models.Video, variant string) (string, error) {
	if !v.IsLocal() {
		return *v.URL, nil
	}
	disk, err := c.disk("")
	if err != nil {
		return "", err
	}
	u := disk.URL(c.path(v, variant, ""))
	if u == "" {
		return "", nil
	}
	if c.svc.cfg.URLVersion {
		u += "?v=" + strconv.FormatInt(v.UpdatedAt.Unix(), 10)
	}
	return u, nil
}

func sortedNames(decls map[string]Variant) []string {
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stage writes data to a scratch file for ffmpeg to consume. The caller must
// invoke cleanup.
func stage(data []byte, ext string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "mediakit-video-")
	if err != nil {
		return "", nil, errors.Wrap(errors.CodeStorageWrite, err, "creating transcode scratch dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		cleanup()
		return "", nil, errors.Wrap(errors.CodeStorageWrite, err, "staging transcode input")
	}
	return path, cleanup, nil
}

// transcode converts data from the source container into format and returns
// the result.
func (c *Collection) transcode(ctx context.Context, data []byte, srcFormat, format string, quality int) ([]byte, error) {
	src, cleanup, err := stage(data, srcFormat)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dst := strings.TrimSuffix(src, filepath.Ext(src)) + "-out." + format
	if err := c.svc.video.Transcode(ctx, src, dst, format, quality); err != nil {
		return nil, err
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCodec, err, "reading transcode output")
	}
	return out, nil
}

// CreateDerivative generates one declared rendition for v.
func (c *Collection) CreateDerivative(ctx context.Context, v *models.Video, name string) (derivative.Outcome, error) {
	disk, err := c.disk("")
	if err != nil {
		return derivative.OutcomeSkipped, err
	}
	return c.createDerivative(ctx, disk, v, name, nil, nil)
}

// CreateAllDerivatives generates every declared rendition for v.
func (c *Collection) CreateAllDerivatives(ctx context.Context, v *models.Video) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	return c.generateAll(ctx, disk, v, nil, nil)
}

// CreateMainOnlyDerivatives generates the renditions gated to the main asset.
func (c *Collection) CreateMainOnlyDerivatives(ctx context.Context, v *models.Video) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	decls := c.owner.VideoDerivatives()
	for _, name := range sortedNames(decls) {
		if !decls[name].OnlyForMain {
			continue
		}
		if _, err := c.createDerivative(ctx, disk, v, name, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMainOnlyDerivatives deletes the main-gated rendition files of v.
func (c *Collection) RemoveMainOnlyDerivatives(ctx context.Context, v *models.Video) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	decls := c.owner.VideoDerivatives()
	for _, name := range sortedNames(decls) {
		if !decls[name].OnlyForMain {
			continue
		}
		if err := c.deleteDerivativeFiles(ctx, disk, v, name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDerivativeFor deletes one rendition's files for v.
func (c *Collection) RemoveDerivativeFor(ctx context.Context, v *models.Video, name string) error {
	if _, ok := c.owner.VideoDerivatives()[name]; !ok {
		return derivative.ErrUnknown(name)
	}
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	return c.deleteDerivativeFiles(ctx, disk, v, name)
}

// RecreateDerivativeFor deletes and regenerates one rendition for v.
func (c *Collection) RecreateDerivativeFor(ctx context.Context, v *models.Video, name string) error {
	if err := c.RemoveDerivativeFor(ctx, v, name); err != nil {
		return err
	}
	_, err := c.CreateDerivative(ctx, v, name)
	return err
}

// RecreateDerivative regenerates one rendition for every local asset.
func (c *Collection) RecreateDerivative(ctx context.Context, name string) error {
	rows, err := c.List(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		if !rows[i].IsLocal() {
			continue
		}
		if err := c.RecreateDerivativeFor(ctx, &rows[i], name); err != nil {
			return err
		}
	}
	return nil
}

// generateAll runs every declared rendition for v. A declared "original"
// runs first; the remaining renditions then read the stored original so
// they derive from its result, not the raw upload. inMemory, when set,
// feeds the first generation so the just-uploaded bytes are not read back
// from disk.
func (c *Collection) generateAll(ctx context.Context, disk storage.Disk, v *models.Video, inMemory []byte, written *[]string) error {
	decls := c.owner.VideoDerivatives()
	if _, ok := decls[VariantOriginal]; ok {
		if _, err := c.createDerivative(ctx, disk, v, VariantOriginal, inMemory, written); err != nil {
			return err
		}
		inMemory = nil
	}
	for _, name := range sortedNames(decls) {
		if name == VariantOriginal {
			continue
		}
		if _, err := c.createDerivative(ctx, disk, v, name, inMemory, written); err != nil {
			return err
		}
	}
	return nil
}

// createDerivative is the single-rendition pipeline: gate, resolve source,
// copy verbatim when the target container equals the source one, otherwise
// transcode, then emit the extra containers of the result.
func (c *Collection) createDerivative(
	ctx context.Context,
	disk storage.Disk,
	v *models.Video,
	name string,
	inMemory []byte,
	written *[]string,
) (derivative.Outcome, error) {
	decl, ok := c.owner.VideoDerivatives()[name]
	if !ok {
		return derivative.OutcomeSkipped, derivative.ErrUnknown(name)
	}
	if !v.IsLocal() {
		c.svc.pipeline.IncSkipped(name)
		return derivative.OutcomeSkipped, nil
	}
	if decl.CreateIf != nil && !decl.CreateIf(v) {
		c.svc.pipeline.IncSkipped(name)
		return derivative.OutcomeSkipped, nil
	}
	if !derivative.Applies(decl.meta(), v) {
		c.svc.pipeline.IncSkipped(name)
		return derivative.OutcomeSkipped, nil
	}

	src := inMemory
	if src == nil {
		stored, err := disk.Get(ctx, c.path(v, VariantOriginal, ""))
		if err != nil {
			return derivative.OutcomeSkipped, err
		}
		src = stored
	}

	start := time.Now()
	dstPath := c.path(v, name, decl.Format)

	// same container as the source: nothing to transcode
	if decl.Format == "" || strings.EqualFold(decl.Format, v.FormatValue()) {
		if err := disk.Put(ctx, dstPath, src); err != nil {
			c.svc.pipeline.IncFailed(name)
			return derivative.OutcomeSkipped, err
		}
		record(written, dstPath)
		c.svc.pipeline.IncGenerated(name)
		return derivative.OutcomeCopied, nil
	}

	out, err := c.transcode(ctx, src, v.FormatValue(), decl.Format, decl.Quality)
	if err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}
	if err := disk.Put(ctx, dstPath, out); err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}
	record(written, dstPath)

	if err := c.writeExtraFormats(ctx, disk, v, name, out, decl.Format, written); err != nil {
		c.svc.pipeline.IncFailed(name)
		return derivative.OutcomeSkipped, err
	}

	c.svc.pipeline.ObserveDuration(name, time.Since(start))
	c.svc.pipeline.IncGenerated(name)
	return derivative.OutcomeGenerated, nil
}

// writeExtraFormats emits the configured secondary containers of data at the
// given variant. data is in dataFormat; a container equal to it is skipped,
// as re-wrapping a payload into its own container produces nothing new.
func (c *Collection) writeExtraFormats(
	ctx context.Context,
	disk storage.Disk,
	v *models.Video,
	variant string,
	data []byte,
	dataFormat string,
	written *[]string,
) error {
	for _, ef := range c.extraFormats() {
		if strings.EqualFold(ef.Format, dataFormat) {
			continue
		}
		out, err := c.transcode(ctx, data, dataFormat, ef.Format, ef.Quality)
		if err != nil {
			return err
		}
		path := c.path(v, variant, ef.Format)
		if err := disk.Put(ctx, path, out); err != nil {
			return err
		}
		record(written, path)
	}
	return nil
}

// deleteDerivativeFiles removes one rendition's file plus its extra container
// siblings.
func (c *Collection) deleteDerivativeFiles(ctx context.Context, disk storage.Disk, v *models.Video, name string) error {
	decl := c.owner.VideoDerivatives()[name]
	if err := disk.Delete(ctx, c.path(v, name, decl.Format)); err != nil {
		return err
	}
	for _, ef := range c.extraFormats() {
		if err := disk.Delete(ctx, c.path(v, name, ef.Format)); err != nil {
			return err
		}
	}
	return nil
}

// deleteAssetFiles removes the original, its extra containers and every
// declared rendition of v.
func (c *Collection) deleteAssetFiles(ctx context.Context, disk storage.Disk, v *models.Video) error {
	if err := disk.Delete(ctx, c.path(v, VariantOriginal, "")); err != nil {
		return err
	}
	for _, ef := range c.extraFormats() {
		if err := disk.Delete(ctx, c.path(v, VariantOriginal, ef.Format)); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(c.owner.VideoDerivatives()) {
		if name == VariantOriginal {
			continue
		}
		if err := c.deleteDerivativeFiles(ctx, disk, v, name); err != nil {
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
