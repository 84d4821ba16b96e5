// Package naming implements filename normalization, uniqueness and the
// format-substitution rules used for derivative paths.
package naming

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// MaxFilenameLen bounds a normalized filename, extension included.
const MaxFilenameLen = 200

// suffixHeadroom reserves bytes under MaxFilenameLen for the "-N" suffix
// UniqueName may append.
const suffixHeadroom = 8

// SplitExt splits a filename into base and extension. The extension is
// returned without the leading dot and verbatim (case preserved). Filenames
// without a dot round-trip with an empty extension.
func SplitExt(filename string) (base, ext string) {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 {
		return filename, ""
	}
	return filename[:idx], filename[idx+1:]
}

// Join recombines a base name and extension.
func Join(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Normalize strips any path component from raw, slugifies the base name and
// preserves the original extension verbatim. When overrideBase is non-empty
// it replaces the base name before slugification (owner auto-naming). Over
// MaxFilenameLen only the base is cut, never the extension, leaving room
// for a uniqueness suffix.
func Normalize(raw, overrideBase string) string {
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if clean == "." || clean == "/" {
		clean = ""
	}

	base, ext := SplitExt(clean)
	if overrideBase != "" {
		base = overrideBase
	}

	// the slug is plain ASCII, so byte slicing cannot split a rune
	slug := Slugify(base)
	max := MaxFilenameLen - suffixHeadroom
	if ext != "" {
		max -= len(ext) + 1
	}
	if max < 1 {
		max = 1
	}
	if len(slug) > max {
		slug = strings.TrimRight(slug[:max], "-")
	}
	return Join(slug, ext)
}

// Slugify lowercases s and reduces it to ASCII letters, digits and hyphens.
// Whitespace and punctuation collapse into single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || unicode.IsPunct(r):
			pendingHyphen = true
		default:
			// non-ASCII and control runes are dropped
		}
	}
	return b.String()
}

// ExistsFunc reports whether a filename is already taken within the owner
// scope. The enclosing transaction plus the DB unique constraint act as the
// final backstop against races.
type ExistsFunc func(ctx context.Context, filename string) (bool, error)

// UniqueName returns candidate unchanged when free, otherwise the first
// "base-N.ext" (N starting at 2) that is not taken.
func UniqueName(ctx context.Context, candidate string, exists ExistsFunc) (string, error) {
	base, ext := SplitExt(candidate)

	name := candidate
	for n := 2; ; n++ {
		taken, err := exists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("checking filename %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
		name = Join(fmt.Sprintf("%s-%d", base, n), ext)
	}
}

// FormatFilename substitutes the trailing original format extension with
// target. When the original format is unknown the base name is derived from
// the filename itself. An empty target returns the filename untouched.
func FormatFilename(filename, originalFormat, target string) string {
	if target == "" {
		return filename
	}
	if originalFormat == "" {
		base, _ := SplitExt(filename)
		return Join(base, target)
	}
	suffix := "." + originalFormat
	if strings.HasSuffix(filename, suffix) {
		return filename[:len(filename)-len(suffix)] + "." + target
	}
	return Join(filename, target)
}
