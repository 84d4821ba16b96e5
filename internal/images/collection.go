package images

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediakit-go/mediakit/internal/codec"
	"github.com/mediakit-go/mediakit/internal/events"
	"github.com/mediakit-go/mediakit/internal/naming"
	"github.com/mediakit-go/mediakit/internal/source"
	"github.com/mediakit-go/mediakit/internal/storage"
	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/db"
	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/errors"
	"github.com/mediakit-go/mediakit/pkg/logger"
	"github.com/mediakit-go/mediakit/pkg/metrics"
	"gorm.io/gorm"
)

// Fetcher downloads remote originals.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, filename string, err error)
}

// Service carries the shared dependencies of every image collection.
type Service struct {
	db       *db.Client
	disks    *storage.Manager
	codec    *codec.ImageCodec
	fetcher  Fetcher
	cfg      config.MediaConfig
	notify   events.Notifier
	pipeline *metrics.PipelineMetrics
	log      *logger.Logger
}

func NewService(
	dbc *db.Client,
	disks *storage.Manager,
	imageCodec *codec.ImageCodec,
	fetcher Fetcher,
	cfg config.MediaConfig,
	notify events.Notifier,
	pipeline *metrics.PipelineMetrics,
	logg *logger.Logger,
) *Service {
	if imageCodec == nil {
		imageCodec = codec.NewImageCodec(cfg.DefaultQuality)
	}
	if notify == nil {
		notify = events.Noop{}
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "images"})
	}
	return &Service{
		db:       dbc,
		disks:    disks,
		codec:    imageCodec,
		fetcher:  fetcher,
		cfg:      cfg,
		notify:   notify,
		pipeline: pipeline,
		log:      logg,
	}
}

// For binds the service to one owner.
func (s *Service) For(owner Owner) *Collection {
	return &Collection{svc: s, owner: owner}
}

// Collection is the owner-scoped image facade.
type Collection struct {
	svc   *Service
	owner Owner
}

// AddOptions tunes one Add call.
type AddOptions struct {
	// Type tags the asset with an owner-defined category.
	Type string
	// Language scopes the asset to a locale. Unsupported values are
	// stored as NULL ("any language").
	Language string
	// FilenameOverride replaces the source's filename candidate.
	FilenameOverride string
	// SkipDerivatives suppresses rendition generation; extra formats of
	// the original are still produced.
	SkipDerivatives bool
	// Disk overrides the owner's disk for this asset.
	Disk string
}

func (c *Collection) model() string    { return c.owner.ModelName() }
func (c *Collection) objectID() string { return c.owner.ObjectKey() }

func (c *Collection) disk(override string) (storage.Disk, error) {
	name := override
	if name == "" {
		if namer, ok := c.owner.(DiskNamer); ok {
			name = namer.DiskName()
		}
	}
	return c.svc.disks.Disk(name)
}

func (c *Collection) extraFormats() []config.ExtraFormatSpec {
	if ef, ok := c.owner.(ExtraFormatter); ok {
		return ef.ImageExtraFormats()
	}
	return c.svc.cfg.ExtraFormats
}

// normalizeLanguage maps a requested language onto the supported set.
// Unsupported or empty values become NULL.
func (c *Collection) normalizeLanguage(lang string) *string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" || !c.svc.cfg.SupportsLanguage(lang) {
		return nil
	}
	return &lang
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Add stores one image inside a single transaction: name is uniquified, the
// original and its renditions are written, the row is inserted. Any failure
// rolls the row back and deletes every byte written so far.
func (c *Collection) Add(ctx context.Context, src source.Source, opts AddOptions) (*models.Image, error) {
	data := src.Bytes
	candidate := opts.FilenameOverride
	if candidate == "" {
		candidate = src.Filename
	}

	if src.IsRemote() {
		if c.svc.fetcher == nil {
			return nil, errors.New(errors.CodeValidation, "remote sources are not supported without a fetcher")
		}
		fetched, name, err := c.svc.fetcher.Fetch(ctx, src.RemoteURL)
		if err != nil {
			return nil, err
		}
		data = fetched
		if candidate == "" {
			candidate = name
		}
	}
	if len(data) == 0 {
		return nil, errors.New(errors.CodeValidation, "image source is empty")
	}

	override := ""
	if an, ok := c.owner.(AutoNamer); ok && an.AutoNamingEnabled() {
		override = an.AutoName()
	}
	name := naming.Normalize(candidate, override)
	if base, ext := naming.SplitExt(name); ext == "" {
		if sniffed := codec.SniffExtension(data); sniffed != "" {
			name = naming.Join(base, sniffed)
		}
	}

	disk, err := c.disk(opts.Disk)
	if err != nil {
		return nil, err
	}

	var row *models.Image
	var written []string
	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		unique, err := naming.UniqueName(ctx, name, func(ctx context.Context, cand string) (bool, error) {
			return filenameExists(tx, c.model(), c.objectID(), cand)
		})
		if err != nil {
			return err
		}

		_, ext := naming.SplitExt(unique)
		lang := c.normalizeLanguage(opts.Language)
		typ := strPtrOrNil(opts.Type)

		currentMain, err := partitionMain(tx, c.model(), c.objectID(), typ, lang)
		if err != nil {
			return err
		}
		pos, err := maxPosition(tx, c.model(), c.objectID())
		if err != nil {
			return err
		}

		row = &models.Image{
			Model:    c.model(),
			ObjectID: c.objectID(),
			Filename: unique,
			Format:   strPtrOrNil(strings.ToLower(ext)),
			Type:     typ,
			Language: lang,
			Main:     currentMain == nil,
			Position: pos + 1,
		}
		if err := tx.Create(row).Error; err != nil {
			if db.IsUniqueViolation(err, "ux_images_owner_filename") {
				return errors.Wrap(errors.CodeConflict, err, fmt.Sprintf("filename %q already exists", unique))
			}
			return fmt.Errorf("inserting image row: %w", err)
		}

		origPath := c.path(row, VariantOriginal, "")
		if err := disk.Put(ctx, origPath, data); err != nil {
			return err
		}
		written = append(written, origPath)

		if err := c.writeExtraFormats(ctx, disk, row, VariantOriginal, data, &written); err != nil {
			return err
		}

		if !opts.SkipDerivatives {
			if err := c.generateAll(ctx, disk, row, data, &written); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// the rollback removed the row; remove the bytes too
		for _, p := range written {
			_ = disk.Delete(ctx, p)
		}
		return nil, err
	}

	logCtx := c.svc.log.WithAsset(c.svc.log.WithOwner(ctx, c.model(), c.objectID()), row.Filename)
	c.svc.log.Info(logCtx, "image added")

	if err := c.svc.notify.AssetAdded(ctx, events.AssetAdded{
		ID:       events.NewEventID(),
		Kind:     events.KindImage,
		Model:    c.model(),
		ObjectID: c.objectID(),
		AssetID:  row.ID,
		Filename: row.Filename,
	}); err != nil {
		c.svc.log.Warn(logCtx, "asset added notification failed")
	}
	return row, nil
}

// AddMany adds sources sequentially. The batch is not atomic: a failure
// leaves earlier additions committed and returns them alongside the error.
func (c *Collection) AddMany(ctx context.Context, srcs []source.Source, opts AddOptions) ([]*models.Image, error) {
	added := make([]*models.Image, 0, len(srcs))
	for _, src := range srcs {
		row, err := c.Add(ctx, src, opts)
		if err != nil {
			return added, err
		}
		added = append(added, row)
	}
	return added, nil
}

// Set replaces the owner's whole collection with one asset.
func (c *Collection) Set(ctx context.Context, src source.Source, opts AddOptions) (*models.Image, error) {
	if err := c.RemoveAll(ctx); err != nil {
		return nil, err
	}
	return c.Add(ctx, src, opts)
}

// Ref loosely identifies an asset for Remove.
type Ref struct {
	ID       uint
	Filename string
}

func (c *Collection) resolve(ctx context.Context, ref Ref) (*models.Image, error) {
	tx := c.svc.db.DB().WithContext(ctx)
	switch {
	case ref.ID != 0:
		return findByID(tx, c.model(), c.objectID(), ref.ID)
	case ref.Filename != "":
		return findByFilename(tx, c.model(), c.objectID(), ref.Filename)
	default:
		return nil, errors.New(errors.CodeValidation, "asset reference is empty")
	}
}

// Remove deletes one asset: original, every rendition, every extra format
// sibling, then the row. If the asset was main, the partition's first
// remaining asset is promoted.
func (c *Collection) Remove(ctx context.Context, ref Ref) error {
	row, err := c.resolve(ctx, ref)
	if err != nil {
		return err
	}
	disk, err := c.disk("")
	if err != nil {
		return err
	}

	if err := c.deleteAssetFiles(ctx, disk, row); err != nil {
		return err
	}

	var promoted *models.Image
	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Image{}, row.ID).Error; err != nil {
			return fmt.Errorf("deleting image row: %w", err)
		}
		if !row.Main {
			return nil
		}
		next, err := partitionFirst(tx, c.model(), c.objectID(), row.Type, row.Language, row.ID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := tx.Model(next).Update("main", true).Error; err != nil {
			return fmt.Errorf("promoting image %d: %w", next.ID, err)
		}
		next.Main = true
		promoted = next
		return nil
	})
	if err != nil {
		return err
	}

	if promoted != nil {
		if err := c.CreateMainOnlyDerivatives(ctx, promoted); err != nil {
			return err
		}
	}

	c.svc.pipeline.IncRemoved(VariantOriginal)
	logCtx := c.svc.log.WithAsset(c.svc.log.WithOwner(ctx, c.model(), c.objectID()), row.Filename)
	c.svc.log.Info(logCtx, "image removed")

	if err := c.svc.notify.AssetRemoved(ctx, events.AssetRemoved{
		ID:       events.NewEventID(),
		Kind:     events.KindImage,
		Model:    c.model(),
		ObjectID: c.objectID(),
		AssetID:  row.ID,
		Filename: row.Filename,
	}); err != nil {
		c.svc.log.Warn(logCtx, "asset removed notification failed")
	}
	return nil
}

// RemoveAll drops the owner's whole image subtree and bulk-deletes the rows.
// Per-asset rendition bookkeeping is bypassed since the directory goes away
// wholesale.
func (c *Collection) RemoveAll(ctx context.Context) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	if err := disk.DeleteDir(ctx, storage.JoinPath(Kind, c.model(), c.objectID())); err != nil {
		return err
	}

	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		return ownerScope(tx, c.model(), c.objectID()).Delete(&models.Image{}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting image rows: %w", err)
	}

	return c.svc.notify.PositionsChanged(ctx, events.PositionsChanged{
		ID:       events.NewEventID(),
		Kind:     events.KindImage,
		Model:    c.model(),
		ObjectID: c.objectID(),
	})
}

// RemoveContentDir drops the owner's rich-text content scratch directory.
// Content images are uploaded outside collection bookkeeping, so the whole
// subtree goes when the owner does.
func (c *Collection) RemoveContentDir(ctx context.Context) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	return disk.DeleteDir(ctx, storage.JoinPath("contents", c.model(), c.objectID()))
}

// List returns the owner's images ordered by position.
func (c *Collection) List(ctx context.Context) ([]models.Image, error) {
	return listByOwner(c.svc.db.DB().WithContext(ctx), c.model(), c.objectID())
}

// Has reports whether the owner has any image, optionally restricted to a
// type tag.
func (c *Collection) Has(ctx context.Context, typ string) (bool, error) {
	q := ownerScope(c.svc.db.DB().WithContext(ctx).Model(&models.Image{}), c.model(), c.objectID())
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting images: %w", err)
	}
	return count > 0, nil
}

// Main returns the partition's main asset or nil.
func (c *Collection) Main(ctx context.Context, typ, lang string) (*models.Image, error) {
	return partitionMain(
		c.svc.db.DB().WithContext(ctx),
		c.model(), c.objectID(),
		strPtrOrNil(typ), c.normalizeLanguage(lang),
	)
}

// SetMain promotes img to main within its partition, demoting the current
// main and swapping the main-only renditions accordingly. Idempotent.
func (c *Collection) SetMain(ctx context.Context, img *models.Image) error {
	if img.Main {
		return nil
	}

	var demoted *models.Image
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := partitionMain(tx, c.model(), c.objectID(), img.Type, img.Language)
		if err != nil {
			return err
		}
		if current != nil && current.ID != img.ID {
			if err := tx.Model(current).Update("main", false).Error; err != nil {
				return fmt.Errorf("demoting image %d: %w", current.ID, err)
			}
			current.Main = false
			demoted = current
		}
		if err := tx.Model(img).Update("main", true).Error; err != nil {
			return fmt.Errorf("promoting image %d: %w", img.ID, err)
		}
		img.Main = true
		return nil
	})
	if err != nil {
		return err
	}

	if demoted != nil {
		if err := c.RemoveMainOnlyDerivatives(ctx, demoted); err != nil {
			return err
		}
	}
	return c.CreateMainOnlyDerivatives(ctx, img)
}

// SetLanguage moves img into the lang partition. Unsupported languages fall
// back to NULL. Afterwards every non-empty partition of the owner has
// exactly one main asset again.
func (c *Collection) SetLanguage(ctx context.Context, img *models.Image, lang string) error {
	newLang := c.normalizeLanguage(lang)

	var demoted, promoted []*models.Image
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(img).Update("language", newLang).Error; err != nil {
			return fmt.Errorf("updating image language: %w", err)
		}
		img.Language = newLang

		// moving a main asset into a partition that already has one
		// demotes the newcomer
		if img.Main {
			other, err := partitionMain(tx, c.model(), c.objectID(), img.Type, img.Language)
			if err != nil {
				return err
			}
			if other != nil && other.ID != img.ID {
				if err := tx.Model(img).Update("main", false).Error; err != nil {
					return fmt.Errorf("demoting moved image: %w", err)
				}
				img.Main = false
				demoted = append(demoted, img)
			}
		}

		repaired, err := c.repairMains(tx)
		if err != nil {
			return err
		}
		promoted = append(promoted, repaired...)
		return nil
	})
	if err != nil {
		return err
	}

	for _, row := range demoted {
		if err := c.RemoveMainOnlyDerivatives(ctx, row); err != nil {
			return err
		}
	}
	for _, row := range promoted {
		if err := c.CreateMainOnlyDerivatives(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// repairMains promotes the first asset of every partition that lost its
// main. Returns the promoted rows.
func (c *Collection) repairMains(tx *gorm.DB) ([]*models.Image, error) {
	keys, err := ownerPartitions(tx, c.model(), c.objectID())
	if err != nil {
		return nil, err
	}
	var promoted []*models.Image
	for _, key := range keys {
		main, err := partitionMain(tx, c.model(), c.objectID(), key.typ, key.lang)
		if err != nil {
			return nil, err
		}
		if main != nil {
			continue
		}
		first, err := partitionFirst(tx, c.model(), c.objectID(), key.typ, key.lang, 0)
		if err != nil {
			return nil, err
		}
		if first == nil {
			continue
		}
		if err := tx.Model(first).Update("main", true).Error; err != nil {
			return nil, fmt.Errorf("promoting image %d: %w", first.ID, err)
		}
		first.Main = true
		promoted = append(promoted, first)
	}
	return promoted, nil
}

// Reorder rewrites positions to follow ids. Positions land contiguous
// starting at 1; assets not listed keep their rows but sort after the
// listed ones on the next renumber.
func (c *Collection) Reorder(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		// two passes keep the unique position index satisfied mid-update
		for i, id := range ids {
			err := ownerScope(tx.Model(&models.Image{}), c.model(), c.objectID()).
				Where("id = ?", id).
				Update("position", 1_000_000+i).Error
			if err != nil {
				return fmt.Errorf("staging position for image %d: %w", id, err)
			}
		}
		for i, id := range ids {
			err := ownerScope(tx.Model(&models.Image{}), c.model(), c.objectID()).
				Where("id = ?", id).
				Update("position", i+1).Error
			if err != nil {
				return fmt.Errorf("setting position for image %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.svc.notify.PositionsChanged(ctx, events.PositionsChanged{
		ID:       events.NewEventID(),
		Kind:     events.KindImage,
		Model:    c.model(),
		ObjectID: c.objectID(),
		IDs:      ids,
	})
}
