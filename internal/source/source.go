// Package source normalizes the accepted upload inputs (raw bytes, local
// files, base64 payloads, remote URLs) into one shape the collections
// consume.
package source

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

// Source is one upload input. Exactly one of Bytes or RemoteURL is set.
type Source struct {
	Bytes    []byte
	Filename string
	// MIME is set when the input carried its own content type (data URIs).
	MIME string
	// RemoteURL marks a URL-sourced asset. The collection decides whether
	// to fetch it or store it as a remote reference.
	RemoteURL string
}

// IsRemote reports whether the source references a URL instead of bytes.
func (s Source) IsRemote() bool { return s.RemoteURL != "" }

// FromBytes wraps an in-memory payload.
func FromBytes(data []byte, filename string) Source {
	return Source{Bytes: data, Filename: filename}
}

// FromFile reads a local file into a source.
func FromFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, errors.Wrap(errors.CodeValidation, err, fmt.Sprintf("reading source file %s", path))
	}
	return Source{Bytes: data, Filename: filepath.Base(path)}, nil
}

// FromURL wraps a remote reference.
func FromURL(rawURL string) Source {
	return Source{RemoteURL: rawURL}
}

// FromString inspects raw and returns the matching source kind: a data URI
// or bare base64 payload is decoded eagerly, an http(s) URL becomes a remote
// source, anything else is treated as a local path.
func FromString(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "data:"):
		return fromDataURI(raw)
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return FromURL(raw), nil
	default:
		if data, ok := decodeBase64(raw); ok {
			return Source{Bytes: data}, nil
		}
		return FromFile(raw)
	}
}

// fromDataURI parses data:<mime>;base64,<payload>.
func fromDataURI(raw string) (Source, error) {
	rest := strings.TrimPrefix(raw, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Source{}, errors.New(errors.CodeValidation, "malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return Source{}, errors.New(errors.CodeValidation, "data uri is not base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Source{}, errors.Wrap(errors.CodeValidation, err, "decoding data uri payload")
	}
	return Source{Bytes: data, MIME: mime}, nil
}

// decodeBase64 reports whether raw is a self-consistent base64 payload. The
// decoded bytes must re-encode to the same text, which rules out plain
// filenames that happen to be valid base64 alphabets.
func decodeBase64(raw string) ([]byte, bool) {
	if len(raw) < 16 || len(raw)%4 != 0 {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	if base64.StdEncoding.EncodeToString(data) != raw {
		return nil, false
	}
	return data, true
}
