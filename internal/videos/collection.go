package videos

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/mediakit-go/mediakit/internal/codec"
	"github.com/mediakit-go/mediakit/internal/events"
	"github.com/mediakit-go/mediakit/internal/images"
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

// Service carries the shared dependencies of every video collection.
type Service struct {
	db       *db.Client
	disks    *storage.Manager
	video    Transcoder
	images   *images.Service
	cfg      config.MediaConfig
	videoCfg config.VideoConfig
	notify   events.Notifier
	pipeline *metrics.PipelineMetrics
	log      *logger.Logger
}

func NewService(
	dbc *db.Client,
	disks *storage.Manager,
	video Transcoder,
	imageSvc *images.Service,
	cfg config.MediaConfig,
	videoCfg config.VideoConfig,
	notify events.Notifier,
	pipeline *metrics.PipelineMetrics,
	logg *logger.Logger,
) *Service {
	if video == nil {
		video = codec.NewVideoCodec(videoCfg)
	}
	if notify == nil {
		notify = events.Noop{}
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "videos"})
	}
	return &Service{
		db:       dbc,
		disks:    disks,
		video:    video,
		images:   imageSvc,
		cfg:      cfg,
		videoCfg: videoCfg,
		notify:   notify,
		pipeline: pipeline,
		log:      logg,
	}
}

// For binds the service to one owner.
func (s *Service) For(owner Owner) *Collection {
	return &Collection{svc: s, owner: owner}
}

// Collection is the owner-scoped video facade.
type Collection struct {
	svc   *Service
	owner Owner
}

// AddOptions tunes one Add call.
type AddOptions struct {
	Type             string
	Language         string
	FilenameOverride string
	SkipDerivatives  bool
	Disk             string
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
		return ef.VideoExtraFormats()
	}
	return c.svc.cfg.VideoExtraFormats
}

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

// Add stores one video. Remote sources become URL-only rows; local sources
// are written and transcoded inside a single transaction. Any failure rolls
// the row back and deletes every byte written so far.
func (c *Collection) Add(ctx context.Context, src source.Source, opts AddOptions) (*models.Video, error) {
	if src.IsRemote() {
		return c.addRemote(ctx, src.RemoteURL, opts)
	}
	if len(src.Bytes) == 0 {
		return nil, errors.New(errors.CodeValidation, "video source is empty")
	}

	candidate := opts.FilenameOverride
	if candidate == "" {
		candidate = src.Filename
	}
	override := ""
	if an, ok := c.owner.(AutoNamer); ok && an.AutoNamingEnabled() {
		override = an.AutoName()
	}
	name := naming.Normalize(candidate, override)
	if base, ext := naming.SplitExt(name); ext == "" {
		if sniffed := codec.SniffExtension(src.Bytes); sniffed != "" {
			name = naming.Join(base, sniffed)
		}
	}
	return c.insertLocal(ctx, src.Bytes, name, opts)
}

// addRemote records a hosting URL without storing any bytes. The format is
// taken from the URL path when it carries an extension.
func (c *Collection) addRemote(ctx context.Context, rawURL string, opts AddOptions) (*models.Video, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid video url %q", rawURL))
	}

	format := strings.ToLower(strings.TrimPrefix(path.Ext(parsed.Path), "."))
	if IsEmbed(rawURL) {
		format = ""
	}

	var row *models.Video
	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
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

		row = &models.Video{
			Model:    c.model(),
			ObjectID: c.objectID(),
			URL:      &rawURL,
			Format:   strPtrOrNil(format),
			Type:     typ,
			Language: lang,
			Main:     currentMain == nil,
			Position: pos + 1,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("inserting video row: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := c.svc.log.WithOwner(ctx, c.model(), c.objectID())
	c.svc.log.Info(logCtx, "remote video added")

	c.notifyAdded(ctx, row)
	return row, nil
}

// insertLocal runs the transactional insert for local bytes under the given
// unique-candidate name.
func (c *Collection) insertLocal(ctx context.Context, data []byte, name string, opts AddOptions) (*models.Video, error) {
	disk, err := c.disk(opts.Disk)
	if err != nil {
		return nil, err
	}

	var row *models.Video
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

		row = &models.Video{
			Model:    c.model(),
			ObjectID: c.objectID(),
			Filename: &unique,
			Format:   strPtrOrNil(strings.ToLower(ext)),
			Type:     typ,
			Language: lang,
			Main:     currentMain == nil,
			Position: pos + 1,
		}
		if err := tx.Create(row).Error; err != nil {
			if db.IsUniqueViolation(err, "ux_videos_owner_filename") {
				return errors.Wrap(errors.CodeConflict, err, fmt.Sprintf("filename %q already exists", unique))
			}
			return fmt.Errorf("inserting video row: %w", err)
		}

		origPath := c.path(row, VariantOriginal, "")
		if err := disk.Put(ctx, origPath, data); err != nil {
			return err
		}
		written = append(written, origPath)

		if err := c.writeExtraFormats(ctx, disk, row, VariantOriginal, data, row.FormatValue(), &written); err != nil {
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

	logCtx := c.svc.log.WithAsset(c.svc.log.WithOwner(ctx, c.model(), c.objectID()), row.FilenameValue())
	c.svc.log.Info(logCtx, "video added")

	c.notifyAdded(ctx, row)
	return row, nil
}

func (c *Collection) notifyAdded(ctx context.Context, row *models.Video) {
	err := c.svc.notify.AssetAdded(ctx, events.AssetAdded{
		ID:       events.NewEventID(),
		Kind:     events.KindVideo,
		Model:    c.model(),
		ObjectID: c.objectID(),
		AssetID:  row.ID,
		Filename: row.FilenameValue(),
	})
	if err != nil {
		c.svc.log.Warn(ctx, "asset added notification failed")
	}
}

// AddMany adds sources sequentially. Not atomic as a whole: a failure leaves
// earlier additions committed and returns them alongside the error.
func (c *Collection) AddMany(ctx context.Context, srcs []source.Source, opts AddOptions) ([]*models.Video, error) {
	added := make([]*models.Video, 0, len(srcs))
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
func (c *Collection) Set(ctx context.Context, src source.Source, opts AddOptions) (*models.Video, error) {
	if err := c.RemoveAll(ctx); err != nil {
		return nil, err
	}
	return c.Add(ctx, src, opts)
}

// chunkPath is the scratch location one named upload assembles in.
func (c *Collection) chunkPath(filename string) string {
	return storage.JoinPath(Kind, c.model(), c.objectID(), chunkDir, naming.Normalize(filename, ""))
}

// AddChunked appends one chunk to the named upload's scratch file. On the
// last chunk the assembled bytes go through the regular insert flow and the
// scratch directory is dropped. A failure on the last chunk deletes the
// scratch file before returning.
func (c *Collection) AddChunked(ctx context.Context, chunk []byte, last bool, filename string, opts AddOptions) (*models.Video, error) {
	if filename == "" {
		return nil, errors.New(errors.CodeValidation, "chunked upload needs a filename")
	}
	disk, err := c.disk(opts.Disk)
	if err != nil {
		return nil, err
	}

	scratch := c.chunkPath(filename)
	if len(chunk) > 0 {
		if err := storage.AppendTo(ctx, disk, scratch, chunk); err != nil {
			_ = disk.Delete(ctx, scratch)
			return nil, err
		}
	}
	if !last {
		return nil, nil
	}

	data, err := disk.Get(ctx, scratch)
	if err != nil {
		_ = disk.Delete(ctx, scratch)
		return nil, err
	}
	if err := disk.DeleteDir(ctx, storage.JoinPath(Kind, c.model(), c.objectID(), chunkDir)); err != nil {
		_ = disk.Delete(ctx, scratch)
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New(errors.CodeValidation, "chunked upload is empty")
	}

	name := naming.Normalize(filename, "")
	if base, ext := naming.SplitExt(name); ext == "" {
		if sniffed := codec.SniffExtension(data); sniffed != "" {
			name = naming.Join(base, sniffed)
		}
	}
	return c.insertLocal(ctx, data, name, opts)
}

// Ref loosely identifies an asset for Remove.
type Ref struct {
	ID       uint
	Filename string
}

func (c *Collection) resolve(ctx context.Context, ref Ref) (*models.Video, error) {
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

// Remove deletes one asset: files for local videos, then the row. If the
// asset was main, the partition's first remaining asset is promoted.
func (c *Collection) Remove(ctx context.Context, ref Ref) error {
	row, err := c.resolve(ctx, ref)
	if err != nil {
		return err
	}
	disk, err := c.disk("")
	if err != nil {
		return err
	}

	if row.IsLocal() {
		if err := c.deleteAssetFiles(ctx, disk, row); err != nil {
			return err
		}
	}

	var promoted *models.Video
	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Video{}, row.ID).Error; err != nil {
			return fmt.Errorf("deleting video row: %w", err)
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
			return fmt.Errorf("promoting video %d: %w", next.ID, err)
		}
		next.Main = true
		promoted = next
		return nil
	})
	if err != nil {
		return err
	}

	if promoted != nil && promoted.IsLocal() {
		if err := c.CreateMainOnlyDerivatives(ctx, promoted); err != nil {
			return err
		}
	}

	c.svc.pipeline.IncRemoved(VariantOriginal)
	logCtx := c.svc.log.WithAsset(c.svc.log.WithOwner(ctx, c.model(), c.objectID()), row.FilenameValue())
	c.svc.log.Info(logCtx, "video removed")

	err = c.svc.notify.AssetRemoved(ctx, events.AssetRemoved{
		ID:       events.NewEventID(),
		Kind:     events.KindVideo,
		Model:    c.model(),
		ObjectID: c.objectID(),
		AssetID:  row.ID,
		Filename: row.FilenameValue(),
	})
	if err != nil {
		c.svc.log.Warn(logCtx, "asset removed notification failed")
	}
	return nil
}

// RemoveAll drops the owner's whole video subtree and bulk-deletes the rows.
func (c *Collection) RemoveAll(ctx context.Context) error {
	disk, err := c.disk("")
	if err != nil {
		return err
	}
	if err := disk.DeleteDir(ctx, storage.JoinPath(Kind, c.model(), c.objectID())); err != nil {
		return err
	}

	err = c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		return ownerScope(tx, c.model(), c.objectID()).Delete(&models.Video{}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting video rows: %w", err)
	}

	return c.svc.notify.PositionsChanged(ctx, events.PositionsChanged{
		ID:       events.NewEventID(),
		Kind:     events.KindVideo,
		Model:    c.model(),
		ObjectID: c.objectID(),
	})
}

// List returns the owner's videos ordered by position.
func (c *Collection) List(ctx context.Context) ([]models.Video, error) {
	return listByOwner(c.svc.db.DB().WithContext(ctx), c.model(), c.objectID())
}

// Has reports whether the owner has any video, optionally restricted to a
// type tag.
func (c *Collection) Has(ctx context.Context, typ string) (bool, error) {
	q := ownerScope(c.svc.db.DB().WithContext(ctx).Model(&models.Video{}), c.model(), c.objectID())
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting videos: %w", err)
	}
	return count > 0, nil
}

// Main returns the partition's main asset or nil.
func (c *Collection) Main(ctx context.Context, typ, lang string) (*models.Video, error) {
	return partitionMain(
		c.svc.db.DB().WithContext(ctx),
		c.model(), c.objectID(),
		strPtrOrNil(typ), c.normalizeLanguage(lang),
	)
}

// SetMain promotes v to main within its partition, demoting the current main
// and swapping the main-only renditions accordingly. Idempotent.
func (c *Collection) SetMain(ctx context.Context, v *models.Video) error {
	if v.Main {
		return nil
	}

	var demoted *models.Video
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := partitionMain(tx, c.model(), c.objectID(), v.Type, v.Language)
		if err != nil {
			return err
		}
		if current != nil && current.ID != v.ID {
			if err := tx.Model(current).Update("main", false).Error; err != nil {
				return fmt.Errorf("demoting video %d: %w", current.ID, err)
			}
			current.Main = false
			demoted = current
		}
		if err := tx.Model(v).Update("main", true).Error; err != nil {
			return fmt.Errorf("promoting video %d: %w", v.ID, err)
		}
		v.Main = true
		return nil
	})
	if err != nil {
		return err
	}

	if demoted != nil && demoted.IsLocal() {
		if err := c.RemoveMainOnlyDerivatives(ctx, demoted); err != nil {
			return err
		}
	}
	if v.IsLocal() {
		return c.CreateMainOnlyDerivatives(ctx, v)
	}
	return nil
}

// SetLanguage moves v into the lang partition. Unsupported languages fall
// back to NULL. Afterwards every non-empty partition of the owner has exactly
// one main asset again.
func (c *Collection) SetLanguage(ctx context.Context, v *models.Video, lang string) error {
	newLang := c.normalizeLanguage(lang)

	var demoted, promoted []*models.Video
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(v).Update("language", newLang).Error; err != nil {
			return fmt.Errorf("updating video language: %w", err)
		}
		v.Language = newLang

		if v.Main {
			other, err := partitionMain(tx, c.model(), c.objectID(), v.Type, v.Language)
			if err != nil {
				return err
			}
			if other != nil && other.ID != v.ID {
				if err := tx.Model(v).Update("main", false).Error; err != nil {
					return fmt.Errorf("demoting moved video: %w", err)
				}
				v.Main = false
				demoted = append(demoted, v)
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
		if !row.IsLocal() {
			continue
		}
		if err := c.RemoveMainOnlyDerivatives(ctx, row); err != nil {
			return err
		}
	}
	for _, row := range promoted {
		if !row.IsLocal() {
			continue
		}
		if err := c.CreateMainOnlyDerivatives(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// repairMains promotes the first asset of every partition that lost its main.
func (c *Collection) repairMains(tx *gorm.DB) ([]*models.Video, error) {
	keys, err := ownerPartitions(tx, c.model(), c.objectID())
	if err != nil {
		return nil, err
	}
	var promoted []*models.Video
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
			return nil, fmt.Errorf("promoting video %d: %w", first.ID, err)
		}
		first.Main = true
		promoted = append(promoted, first)
	}
	return promoted, nil
}

// Reorder rewrites positions to follow ids, landing contiguous from 1.
func (c *Collection) Reorder(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := c.svc.db.WithTx(ctx, func(tx *gorm.DB) error {
		// two passes keep the unique position index satisfied mid-update
		for i, id := range ids {
			err := ownerScope(tx.Model(&models.Video{}), c.model(), c.objectID()).
				Where("id = ?", id).
				Update("position", 1_000_000+i).Error
			if err != nil {
				return fmt.Errorf("staging position for video %d: %w", id, err)
			}
		}
		for i, id := range ids {
			err := ownerScope(tx.Model(&models.Video{}), c.model(), c.objectID()).
				Where("id = ?", id).
				Update("position", i+1).Error
			if err != nil {
				return fmt.Errorf("setting position for video %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.svc.notify.PositionsChanged(ctx, events.PositionsChanged{
		ID:       events.NewEventID(),
		Kind:     events.KindVideo,
		Model:    c.model(),
		ObjectID: c.objectID(),
		IDs:      ids,
	})
}
