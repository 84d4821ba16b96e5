package storage

import (
	"context"
	"testing"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

func TestJoinPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"images", "products", "7", "original", "a.png"}, "images/products/7/original/a.png"},
		{[]string{"images/", "/products/", "a.png"}, "images/products/a.png"},
		{[]string{"", "a.png"}, "a.png"},
	}
	for _, tc := range cases {
		if got := JoinPath(tc.in...); got != tc.want {
			t.Fatalf("JoinPath(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestObjectDir(t *testing.T) {
	t.Parallel()

	got := ObjectDir("images", "products", "42", "thumb")
	if got != "images/products/42/thumb" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalDiskRoundTrip(t *testing.T) {
	t.Parallel()

	disk := NewLocalDisk("public", t.TempDir(), "https://cdn.example.com/media")
	ctx := context.Background()

	if err := disk.Put(ctx, "images/products/1/original/a.png", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := disk.Exists(ctx, "images/products/1/original/a.png")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	size, err := disk.Size(ctx, "images/products/1/original/a.png")
	if err != nil || size != int64(len("payload")) {
		t.Fatalf("Size = %d, %v", size, err)
	}

	data, err := disk.Get(ctx, "images/products/1/original/a.png")
	if err != nil || string(data) != "payload" {
		t.Fatalf("Get = %q, %v", data, err)
	}

	if got := disk.URL("images/products/1/original/a.png"); got != "https://cdn.example.com/media/images/products/1/original/a.png" {
		t.Fatalf("URL = %q", got)
	}

	if err := disk.DeleteDir(ctx, "images/products/1"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}
	ok, err = disk.Exists(ctx, "images/products/1/original/a.png")
	if err != nil || ok {
		t.Fatalf("object survived DeleteDir")
	}
}

func TestLocalDiskRejectsTraversal(t *testing.T) {
	t.Parallel()

	disk := NewLocalDisk("public", t.TempDir(), "")
	err := disk.Put(context.Background(), "../outside.png", []byte("x"))
	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLocalDiskDeleteMissingIsNoop(t *testing.T) {
	t.Parallel()

	disk := NewLocalDisk("public", t.TempDir(), "")
	if err := disk.Delete(context.Background(), "images/none.png"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if err := disk.DeleteDir(context.Background(), "images/none"); err != nil {
		t.Fatalf("DeleteDir missing: %v", err)
	}
}

func TestAppendTo(t *testing.T) {
	t.Parallel()

	disk := NewLocalDisk("public", t.TempDir(), "")
	ctx := context.Background()

	if err := AppendTo(ctx, disk, "videos/chunks/a.mp4", []byte("part-1;")); err != nil {
		t.Fatalf("AppendTo: %v", err)
	}
	if err := AppendTo(ctx, disk, "videos/chunks/a.mp4", []byte("part-2")); err != nil {
		t.Fatalf("AppendTo: %v", err)
	}
	data, err := disk.Get(ctx, "videos/chunks/a.mp4")
	if err != nil || string(data) != "part-1;part-2" {
		t.Fatalf("Get = %q, %v", data, err)
	}
}

func TestManagerDefaultAndLookup(t *testing.T) {
	t.Parallel()

	public := NewLocalDisk("public", t.TempDir(), "")
	private := NewLocalDisk("private", t.TempDir(), "")

	m, err := NewManager("public", public, private)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Default() != public {
		t.Fatal("default disk mismatch")
	}
	d, err := m.Disk("private")
	if err != nil || d != private {
		t.Fatalf("Disk(private) = %v, %v", d, err)
	}
	if _, err := m.Disk("nope"); err == nil {
		t.Fatal("expected error for unknown disk")
	}

	if _, err := NewManager("missing", public); err == nil {
		t.Fatal("expected error for unregistered default")
	}
}
