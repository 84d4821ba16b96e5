package naming

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		base string
		want string
	}{
		{"plain", "photo.png", "", "photo.png"},
		{"uppercase base", "My Photo.PNG", "", "my-photo.PNG"},
		{"traversal stripped", "../../etc/passwd.png", "", "passwd.png"},
		{"windows separators", `C:\Users\pic.jpg`, "", "pic.jpg"},
		{"punctuation collapsed", "a__b  (final!!).jpg", "", "a-b-final.jpg"},
		{"unicode dropped", "héllo wörld.png", "", "hllo-wrld.png"},
		{"no extension", "README", "", "readme"},
		{"override base", "DSC0001.jpg", "red-sofa", "red-sofa.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.raw, tc.base); got != tc.want {
				t.Fatalf("Normalize(%q, %q) = %q, want %q", tc.raw, tc.base, got, tc.want)
			}
		})
	}
}

func TestNormalizeTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcdefghij", 30)

	got := Normalize(long+".png", "")
	if len(got) > MaxFilenameLen {
		t.Fatalf("normalized length = %d, over cap %d", len(got), MaxFilenameLen)
	}
	if !strings.HasSuffix(got, ".png") {
		t.Fatalf("extension lost in %q", got)
	}

	// a later "-N" uniqueness suffix must still fit under the cap
	base, ext := SplitExt(got)
	suffixed := Join(base+"-99", ext)
	if len(suffixed) > MaxFilenameLen {
		t.Fatalf("suffixed length = %d, over cap %d", len(suffixed), MaxFilenameLen)
	}
}

func TestNormalizeKeepsMultiByteExtension(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcdefghij", 30)
	got := Normalize(long+".日本語", "")
	if !strings.HasSuffix(got, ".日本語") {
		t.Fatalf("extension mangled in %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("invalid utf-8 in %q", got)
	}
	if len(got) > MaxFilenameLen {
		t.Fatalf("normalized length = %d, over cap %d", len(got), MaxFilenameLen)
	}
}

func TestUniqueName(t *testing.T) {
	t.Parallel()

	taken := map[string]bool{
		"image.png":   true,
		"image-2.png": true,
	}
	exists := func(_ context.Context, name string) (bool, error) {
		return taken[name], nil
	}

	got, err := UniqueName(context.Background(), "image.png", exists)
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if got != "image-3.png" {
		t.Fatalf("got %q, want %q", got, "image-3.png")
	}

	got, err = UniqueName(context.Background(), "fresh.png", exists)
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if got != "fresh.png" {
		t.Fatalf("got %q, want %q", got, "fresh.png")
	}
}

func TestUniqueNameSuffixedUpload(t *testing.T) {
	t.Parallel()

	// An upload already named image-2.png must not collide with the
	// suffixes generated for later uploads of image.png.
	taken := map[string]bool{"image-2.png": true}
	exists := func(_ context.Context, name string) (bool, error) {
		return taken[name], nil
	}

	got, err := UniqueName(context.Background(), "image.png", exists)
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if got != "image.png" {
		t.Fatalf("got %q, want %q", got, "image.png")
	}

	taken["image.png"] = true
	got, err = UniqueName(context.Background(), "image.png", exists)
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if got != "image-3.png" {
		t.Fatalf("got %q, want %q", got, "image-3.png")
	}
}

func TestFormatFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		filename string
		original string
		target   string
		want     string
	}{
		{"photo.png", "png", "webp", "photo.webp"},
		{"photo.png", "png", "", "photo.png"},
		{"archive.tar.gz", "gz", "webp", "archive.tar.webp"},
		{"photo", "", "webp", "photo.webp"},
		{"photo.jpeg", "", "avif", "photo.avif"},
	}
	for _, tc := range cases {
		if got := FormatFilename(tc.filename, tc.original, tc.target); got != tc.want {
			t.Fatalf("FormatFilename(%q, %q, %q) = %q, want %q",
				tc.filename, tc.original, tc.target, got, tc.want)
		}
	}
}
