package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

// LocalDisk stores objects under a root directory on the local filesystem.
type LocalDisk struct {
	name    string
	root    string
	baseURL string
}

func NewLocalDisk(name, root, baseURL string) *LocalDisk {
	return &LocalDisk{
		name:    name,
		root:    filepath.Clean(root),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (d *LocalDisk) Name() string { return d.name }

func (d *LocalDisk) abs(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.New(errors.CodeValidation, fmt.Sprintf("invalid object path %q", path))
	}
	return filepath.Join(d.root, clean), nil
}

func (d *LocalDisk) Put(_ context.Context, path string, data []byte) error {
	target, err := d.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, "creating object directory")
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, fmt.Sprintf("writing %s", path))
	}
	return nil
}

func (d *LocalDisk) Append(_ context.Context, path string, data []byte) error {
	target, err := d.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, "creating object directory")
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, fmt.Sprintf("opening %s for append", path))
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, fmt.Sprintf("appending to %s", path))
	}
	return nil
}

func (d *LocalDisk) Get(_ context.Context, path string) ([]byte, error) {
	target, err := d.abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("object %s not found", path))
		}
		return nil, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("reading %s", path))
	}
	return data, nil
}

func (d *LocalDisk) Exists(_ context.Context, path string) (bool, error) {
	target, err := d.abs(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("stat %s", path))
	}
	return !info.IsDir(), nil
}

func (d *LocalDisk) Size(_ context.Context, path string) (int64, error) {
	target, err := d.abs(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.New(errors.CodeNotFound, fmt.Sprintf("object %s not found", path))
		}
		return 0, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("stat %s", path))
	}
	return info.Size(), nil
}

func (d *LocalDisk) Delete(_ context.Context, path string) error {
	target, err := d.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.CodeStorageDelete, err, fmt.Sprintf("deleting %s", path))
	}
	return nil
}

func (d *LocalDisk) DeleteDir(_ context.Context, prefix string) error {
	target, err := d.abs(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrap(errors.CodeStorageDelete, err, fmt.Sprintf("deleting directory %s", prefix))
	}
	return nil
}

func (d *LocalDisk) URL(path string) string {
	if d.baseURL == "" {
		return ""
	}
	return d.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Walk visits every object under prefix, relative paths forward-slashed.
// Used by maintenance commands that re-derive whole owners.
func (d *LocalDisk) Walk(prefix string, fn func(path string) error) error {
	target, err := d.abs(prefix)
	if err != nil {
		return err
	}
	return filepath.WalkDir(target, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, p)
		if relErr != nil {
			return relErr
		}
		return fn(filepath.ToSlash(rel))
	})
}
