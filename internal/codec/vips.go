package codec

import (
	"bytes"
	"image"
	"strings"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

var (
	vipsInitMutex   sync.Mutex
	vipsInitialized bool
)

// InitVips starts libvips. Call once at startup; Encode falls back to an
// implicit init when the caller skips it.
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return
	}

	vips.LoggingSettings(func(string, vips.LogLevel, string) {}, vips.LogLevelError)
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})
	vipsInitialized = true
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
	}
}

// exportVips re-encodes img into a format imaging cannot produce. The image
// crosses into vips as PNG bytes.
func exportVips(img image.Image, format string, quality int) ([]byte, error) {
	InitVips()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(errors.CodeCodec, err, "encoding intermediate png")
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.CodeCodec, err, "loading image into vips")
	}
	defer ref.Close()

	switch strings.ToLower(format) {
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		out, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "exporting webp")
		}
		return out, nil
	case "avif":
		params := vips.NewAvifExportParams()
		params.Quality = quality
		out, _, err := ref.ExportAvif(params)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "exporting avif")
		}
		return out, nil
	default:
		return nil, errors.New(errors.CodeCodec, "unsupported vips export format "+format)
	}
}
