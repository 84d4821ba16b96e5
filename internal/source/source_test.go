package source

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestFromStringDataURI(t *testing.T) {
	t.Parallel()

	payload := []byte("fake image payload!!")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	src, err := FromString(uri)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if string(src.Bytes) != string(payload) {
		t.Fatalf("bytes = %q", src.Bytes)
	}
	if src.MIME != "image/png" {
		t.Fatalf("mime = %q", src.MIME)
	}
	if src.IsRemote() {
		t.Fatal("data uri must not be remote")
	}
}

func TestFromStringRejectsMalformedDataURI(t *testing.T) {
	t.Parallel()

	if _, err := FromString("data:image/png;base64"); err == nil {
		t.Fatal("expected error for missing payload")
	}
	if _, err := FromString("data:image/png,rawdata"); err == nil {
		t.Fatal("expected error for non-base64 data uri")
	}
}

func TestFromStringURL(t *testing.T) {
	t.Parallel()

	src, err := FromString("https://cdn.example.com/cat.png")
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if !src.IsRemote() || src.RemoteURL != "https://cdn.example.com/cat.png" {
		t.Fatalf("src = %+v", src)
	}
}

func TestFromStringBareBase64(t *testing.T) {
	t.Parallel()

	payload := []byte("some binary-ish payload bytes")
	encoded := base64.StdEncoding.EncodeToString(payload)

	src, err := FromString(encoded)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if string(src.Bytes) != string(payload) {
		t.Fatalf("bytes = %q", src.Bytes)
	}
}

func TestFromStringLocalPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte("file bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := FromString(path)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if string(src.Bytes) != "file bytes" || src.Filename != "photo.png" {
		t.Fatalf("src = %+v", src)
	}
}

func TestFromStringMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := FromString("/nonexistent/path/photo.png"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeBase64RejectsShortOrPlainStrings(t *testing.T) {
	t.Parallel()

	if _, ok := decodeBase64("abcd"); ok {
		t.Fatal("short strings must not be treated as base64")
	}
	if _, ok := decodeBase64("photo-name.png"); ok {
		t.Fatal("filenames must not be treated as base64")
	}
}
