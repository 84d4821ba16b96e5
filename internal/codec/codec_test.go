package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewImageCodec(90)
	src := pngBytes(t, 4, 4, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	img, format, err := c.Decode(src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" {
		t.Fatalf("format = %q, want png", format)
	}

	out, err := c.Encode(img, "jpeg", 80)
	if err != nil {
		t.Fatalf("Encode jpeg: %v", err)
	}
	if _, back, err := c.Decode(out); err != nil || back != "jpeg" {
		t.Fatalf("re-decode = %q, %v", back, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	c := NewImageCodec(90)
	_, _, err := c.Decode([]byte("definitely not an image"))
	if !errors.Is(err, errors.CodeCodec) {
		t.Fatalf("expected codec failure, got %v", err)
	}
}

func TestEncodeRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	c := NewImageCodec(90)
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if _, err := c.Encode(img, "xcf", 80); !errors.Is(err, errors.CodeCodec) {
		t.Fatalf("expected codec failure, got %v", err)
	}
}

func TestFlattenProducesOpaquePixels(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	// fully transparent source
	flat := Flatten(img)
	_, _, _, a := flat.At(0, 0).RGBA()
	if a != 0xffff {
		t.Fatalf("alpha = %d, want opaque", a)
	}
	r, g, b, _ := flat.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("expected white background, got %d %d %d", r, g, b)
	}
}

func TestTransformable(t *testing.T) {
	t.Parallel()

	if Transformable("svg", nil) {
		t.Fatal("svg must not be transformable")
	}
	if Transformable("SVG", nil) {
		t.Fatal("svg check must be case-insensitive")
	}
	if !Transformable("png", pngBytes(t, 1, 1, color.White)) {
		t.Fatal("png must be transformable")
	}
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	if Transformable("", svg) {
		t.Fatal("sniffed svg must not be transformable")
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	if got := Sniff(pngBytes(t, 1, 1, color.White)); got != "image/png" {
		t.Fatalf("Sniff = %q", got)
	}
	if got := SniffExtension(pngBytes(t, 1, 1, color.White)); got != "png" {
		t.Fatalf("SniffExtension = %q", got)
	}
}

func TestPadLegacyWebp(t *testing.T) {
	t.Parallel()

	odd := []byte{1, 2, 3}
	padded := PadLegacyWebp(odd)
	if len(padded) != 4 || padded[3] != 0 {
		t.Fatalf("padded = %v", padded)
	}

	even := []byte{1, 2}
	if got := PadLegacyWebp(even); len(got) != 2 {
		t.Fatalf("even payload must be untouched, got %v", got)
	}
}

func TestCrfFromQuality(t *testing.T) {
	t.Parallel()

	if got := crfFromQuality(100); got != 0 {
		t.Fatalf("crf(100) = %d", got)
	}
	if got := crfFromQuality(1); got != 51 {
		t.Fatalf("crf(1) = %d", got)
	}
	if low, high := crfFromQuality(-5), crfFromQuality(500); low != 51 || high != 0 {
		t.Fatalf("clamping failed: %d %d", low, high)
	}
}

func TestFormatOffset(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0s":     "00:00:00",
		"1s":     "00:00:01",
		"90s":    "00:01:30",
		"3661s":  "01:01:01",
		"-5s":    "00:00:00",
	}
	for in, want := range cases {
		d, err := time.ParseDuration(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := formatOffset(d); got != want {
			t.Fatalf("formatOffset(%s) = %q, want %q", in, got, want)
		}
	}
}
