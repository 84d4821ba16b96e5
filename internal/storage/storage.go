// Package storage abstracts the byte stores derivatives are written to.
// Object paths are forward-slash joined and relative to a disk root.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

// Disk is a flat namespace of objects addressed by relative paths.
type Disk interface {
	Name() string
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	Delete(ctx context.Context, path string) error
	// DeleteDir removes every object under prefix. Missing prefixes are
	// not an error.
	DeleteDir(ctx context.Context, prefix string) error
	// URL returns the public URL for path, or "" when the disk is not
	// publicly addressable.
	URL(path string) string
}

// Appender is implemented by disks that support appending to an object.
// Chunked uploads fall back to read-concat-write on disks without it.
type Appender interface {
	Append(ctx context.Context, path string, data []byte) error
}

// AppendTo appends data to the object at path, using the disk's native
// append when available.
func AppendTo(ctx context.Context, d Disk, path string, data []byte) error {
	if appender, ok := d.(Appender); ok {
		return appender.Append(ctx, path, data)
	}
	existing, err := d.Get(ctx, path)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return err
	}
	return d.Put(ctx, path, append(existing, data...))
}

// JoinPath joins non-empty segments with forward slashes.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ObjectDir returns the directory that holds one variant of one owner's
// assets: <kind>/<model>/<objectID>/<variant>.
func ObjectDir(kind, model, objectID, variant string) string {
	return JoinPath(kind, model, objectID, variant)
}

// Manager is a registry of named disks with a default.
type Manager struct {
	disks       map[string]Disk
	defaultDisk string
}

func NewManager(defaultDisk string, disks ...Disk) (*Manager, error) {
	m := &Manager{disks: make(map[string]Disk, len(disks)), defaultDisk: defaultDisk}
	for _, d := range disks {
		m.disks[d.Name()] = d
	}
	if _, ok := m.disks[defaultDisk]; !ok {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("default disk %q is not registered", defaultDisk))
	}
	return m, nil
}

func (m *Manager) Default() Disk {
	return m.disks[m.defaultDisk]
}

func (m *Manager) Disk(name string) (Disk, error) {
	if name == "" {
		return m.Default(), nil
	}
	d, ok := m.disks[name]
	if !ok {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("unknown disk %q", name))
	}
	return d, nil
}
