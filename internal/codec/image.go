// Package codec wraps the image and video encoders behind small types the
// asset pipeline consumes. Raster work goes through imaging, webp/avif
// exports through libvips, video work through ffmpeg.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/mediakit-go/mediakit/pkg/errors"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
)

// Formats that must never be decoded. Their bytes are copied verbatim to
// every derivative path.
var nonTransformableFormats = map[string]bool{
	"svg": true,
}

var nonTransformableMIMEs = map[string]bool{
	"image/svg+xml": true,
}

// Transformable reports whether an original with the given extension may be
// decoded and re-encoded. When the extension is inconclusive the sniffed
// MIME of data decides.
func Transformable(format string, data []byte) bool {
	if nonTransformableFormats[strings.ToLower(format)] {
		return false
	}
	if len(data) == 0 {
		return true
	}
	return !nonTransformableMIMEs[Sniff(data)]
}

// Sniff returns the detected MIME type of data, without parameters.
func Sniff(data []byte) string {
	mime := mimetype.Detect(data)
	base, _, _ := strings.Cut(mime.String(), ";")
	return strings.TrimSpace(base)
}

// SniffExtension returns the canonical extension for data, without the dot,
// or "" when unknown.
func SniffExtension(data []byte) string {
	ext := mimetype.Detect(data).Extension()
	return strings.TrimPrefix(ext, ".")
}

// SameFormat reports whether two format names refer to the same encoding.
// jpg/jpeg and tif/tiff are aliases.
func SameFormat(a, b string) bool {
	return canonicalFormat(a) == canonicalFormat(b)
}

func canonicalFormat(format string) string {
	switch f := strings.ToLower(format); f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	default:
		return f
	}
}

// ImageCodec decodes and encodes raster images.
type ImageCodec struct {
	// DefaultQuality applies when a rendition does not set its own.
	DefaultQuality int
}

func NewImageCodec(defaultQuality int) *ImageCodec {
	if defaultQuality <= 0 {
		defaultQuality = 90
	}
	return &ImageCodec{DefaultQuality: defaultQuality}
}

// Decode parses data into an image plus the detected format name.
func (c *ImageCodec) Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeCodec, err, "decoding image")
	}
	return img, format, nil
}

// Encode serializes img into the requested format. Lossy formats are
// flattened onto a white canvas first so transparency does not turn black.
func (c *ImageCodec) Encode(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = c.DefaultQuality
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		if err := imaging.Encode(&buf, Flatten(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "encoding jpeg")
		}
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "encoding png")
		}
	case "gif":
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "encoding gif")
		}
	case "bmp":
		if err := imaging.Encode(&buf, img, imaging.BMP); err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "encoding bmp")
		}
	case "tif", "tiff":
		if err := imaging.Encode(&buf, img, imaging.TIFF); err != nil {
			return nil, errors.Wrap(errors.CodeCodec, err, "encoding tiff")
		}
	case "webp":
		return exportVips(img, "webp", quality)
	case "avif":
		return exportVips(img, "avif", quality)
	default:
		return nil, errors.New(errors.CodeCodec, fmt.Sprintf("unsupported image format %q", format))
	}
	return buf.Bytes(), nil
}

// Flatten composites img onto an opaque white canvas.
func Flatten(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), image.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// PadLegacyWebp appends a trailing null byte to odd-length webp payloads.
// Works around a libwebp 0.x decoder that rejects odd stream lengths.
func PadLegacyWebp(data []byte) []byte {
	if len(data)%2 == 0 {
		return data
	}
	return append(data, 0x00)
}
