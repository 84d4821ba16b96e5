package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"

	"github.com/mediakit-go/mediakit/internal/images"
	"github.com/mediakit-go/mediakit/internal/storage"
	"github.com/mediakit-go/mediakit/internal/storage/gcs"
	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/db"
	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/logger"
)

// cliOwner stands in for application owner types when iterating assets from
// the maintenance CLI. It declares only what the invoked command needs.
type cliOwner struct {
	model       string
	objectID    string
	derivatives map[string]images.Thumbnail
}

func (o cliOwner) ModelName() string                             { return o.model }
func (o cliOwner) ObjectKey() string                             { return o.objectID }
func (o cliOwner) ImageDerivatives() map[string]images.Thumbnail { return o.derivatives }

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "mediactl"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "", "command: set-format|extra-formats|recreate")
	model := flag.String("model", "", "restrict to one owner model")
	format := flag.String("format", "", "restrict extra-formats to one output format; output format for recreate")
	analyze := flag.Bool("analyze", false, "report extra-format sizes instead of writing")

	name := flag.String("name", "", "derivative name (for recreate)")
	width := flag.Int("width", 0, "bounding width (for recreate)")
	height := flag.Int("height", 0, "bounding height (for recreate)")
	quality := flag.Int("quality", 0, "encode quality 1-100 (for recreate)")

	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "mediactl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	manager, err := buildDisks(ctx, cfg, logg)
	requireResource(ctx, logg, "storage", err)

	svc := images.NewService(dbClient, manager, nil, nil, cfg.Media, nil, nil, logg)

	switch *cmd {
	case "set-format":
		err = setFormat(ctx, dbClient, logg)

	case "extra-formats":
		err = extraFormats(ctx, svc, logg, *model, *format, *analyze)

	case "recreate":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for recreate")
			os.Exit(1)
		}
		err = recreate(ctx, svc, logg, *model, *name, *width, *height, *format, *quality)

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
	if err != nil {
		logg.Error(ctx, "command failed", err)
		os.Exit(1)
	}
}

func buildDisks(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*storage.Manager, error) {
	disks := []storage.Disk{
		storage.NewLocalDisk("public", cfg.Storage.PublicRoot, cfg.Storage.PublicBaseURL),
	}
	if cfg.Storage.GCSBucket != "" {
		gcsDisk, err := gcs.NewDisk(ctx, cfg.Storage.GCSBucket, cfg.GCP, logg)
		if err != nil {
			return nil, err
		}
		disks = append(disks, gcsDisk)
	}
	return storage.NewManager(cfg.Storage.DefaultDisk, disks...)
}

// setFormat backfills NULL format columns from the stored filename's
// extension, for images and local videos alike.
func setFormat(ctx context.Context, dbc *db.Client, logg *logger.Logger) error {
	var imageRows []models.Image
	err := dbc.DB().WithContext(ctx).
		Where("format IS NULL").
		Find(&imageRows).Error
	if err != nil {
		return fmt.Errorf("listing images without format: %w", err)
	}
	updated := 0
	for i := range imageRows {
		ext := extensionOf(imageRows[i].Filename)
		if ext == "" {
			continue
		}
		err := dbc.DB().WithContext(ctx).
			Model(&imageRows[i]).
			Update("format", ext).Error
		if err != nil {
			return fmt.Errorf("backfilling image %d: %w", imageRows[i].ID, err)
		}
		updated++
	}

	var videoRows []models.Video
	err = dbc.DB().WithContext(ctx).
		Where("format IS NULL AND filename IS NOT NULL").
		Find(&videoRows).Error
	if err != nil {
		return fmt.Errorf("listing videos without format: %w", err)
	}
	for i := range videoRows {
		ext := extensionOf(videoRows[i].FilenameValue())
		if ext == "" {
			continue
		}
		err := dbc.DB().WithContext(ctx).
			Model(&videoRows[i]).
			Update("format", ext).Error
		if err != nil {
			return fmt.Errorf("backfilling video %d: %w", videoRows[i].ID, err)
		}
		updated++
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"updated": updated}), "format backfill done")
	return nil
}

func extensionOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// extraFormats regenerates (or sizes up, with analyze) the extra-format files
// of every image, owner by owner.
func extraFormats(ctx context.Context, svc *images.Service, logg *logger.Logger, model, only string, analyze bool) error {
	owners, err := svc.Owners(ctx, model)
	if err != nil {
		return err
	}

	totals := map[string]int64{}
	for _, key := range owners {
		col := svc.For(cliOwner{model: key.Model, objectID: key.ObjectID})
		rows, err := col.List(ctx)
		if err != nil {
			return err
		}
		for i := range rows {
			if analyze {
				sizes, err := col.ExtraFormatSizes(ctx, &rows[i])
				if err != nil {
					return err
				}
				for format, size := range sizes {
					totals[format] += size
				}
				continue
			}
			if err := col.RegenerateExtraFormats(ctx, &rows[i], only); err != nil {
				return err
			}
		}
	}

	if analyze {
		for format, size := range totals {
			fmt.Printf("%s\t%d bytes\n", format, size)
		}
		return nil
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"owners": len(owners)}), "extra formats regenerated")
	return nil
}

// recreate regenerates one named derivative for every owner, using a
// flag-defined bounding-box resize.
func recreate(ctx context.Context, svc *images.Service, logg *logger.Logger, model, name string, width, height int, format string, quality int) error {
	thumb := images.Thumbnail{Format: format, Quality: quality}
	if width > 0 && height > 0 {
		thumb.Transform = func(src image.Image) image.Image {
			return imaging.Fit(src, width, height, imaging.Lanczos)
		}
	}

	owners, err := svc.Owners(ctx, model)
	if err != nil {
		return err
	}
	for _, key := range owners {
		col := svc.For(cliOwner{
			model:       key.Model,
			objectID:    key.ObjectID,
			derivatives: map[string]images.Thumbnail{name: thumb},
		})
		if err := col.RecreateDerivative(ctx, name); err != nil {
			return err
		}
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"owners": len(owners), "derivative": name}), "derivative recreated")
	return nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
