// Package pathname computes collision-free, length-bounded file paths ahead
// of a write. Nothing is created on disk; the caller owns the window between
// resolution and write (single-writer usage is assumed).
package pathname

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/utils"
)

var (
	// ErrPathTooLong means the directory and extension alone leave no room
	// for any filename under the configured ceiling.
	ErrPathTooLong = errors.New("path exceeds maximum length")

	// ErrPathNotUnique means no suffixed candidate fits under the ceiling.
	ErrPathNotUnique = errors.New("cannot make path unique")
)

// SuffixStyle selects how collision counters are rendered.
type SuffixStyle int

const (
	// SuffixTilde renders "name~3.ext" (whole-item export).
	SuffixTilde SuffixStyle = iota
	// SuffixParens renders "name (3).ext" (body export).
	SuffixParens
)

func (s SuffixStyle) render(counter int) string {
	if s == SuffixParens {
		return fmt.Sprintf(" (%d)", counter)
	}
	return fmt.Sprintf("~%d", counter)
}

// Resolver computes unique paths within a directory. The zero MaxPath falls
// back to base.DefaultMaxPath.
type Resolver struct {
	MaxPath int
	Style   SuffixStyle
	FS      utils.FileManager
	Logger  *slog.Logger
}

// Resolve joins directory, baseName and extension into a path that does not
// exist and whose length stays under the ceiling, truncating the base name
// and appending a numeric suffix as needed. The directory must already
// exist. Truncation and suffixing are warning-level advisories, not errors.
func (r *Resolver) Resolve(directory, baseName, extension string) (string, error) {
	ceiling := r.MaxPath
	if ceiling == 0 {
		ceiling = base.DefaultMaxPath
	}
	// Leave room for the terminator.
	maxPath := ceiling - 1

	// Directory plus "." plus extension with no base name at all.
	if len(directory)+len(string(filepath.Separator))+1+len(extension) >= maxPath {
		return "", errors.Wrapf(ErrPathTooLong, "directory %q with extension %q", directory, extension)
	}

	maxBaseLen := maxPath - len(extension) - 1
	joined := filepath.Join(directory, baseName)
	if len(joined) > maxBaseLen {
		cut := maxBaseLen - len(joined) + len(baseName)
		baseName = strings.TrimRight(cutString(baseName, cut), " ")
		joined = filepath.Join(directory, baseName)
		if r.Logger != nil {
			r.Logger.Warn("truncated file name to fit path ceiling",
				slog.String("directory", directory),
				slog.String("baseName", baseName),
			)
		}
	}

	candidate := joined + "." + extension
	if !r.FS.PathExists(candidate) {
		return candidate, nil
	}

	for counter := 1; ; counter++ {
		suffix := r.Style.render(counter)
		name := baseName
		if overflow := len(joined) + len(suffix) - maxBaseLen; overflow > 0 {
			if overflow >= len(name) {
				// Even an empty base name with this suffix does not fit.
				if len(filepath.Join(directory, suffix))+1+len(extension) > maxPath {
					return "", errors.Wrapf(ErrPathNotUnique, "directory %q", directory)
				}
				name = ""
			} else {
				name = strings.TrimRight(cutString(name, len(name)-overflow), " ")
			}
		}
		candidate = filepath.Join(directory, name+suffix) + "." + extension
		if !r.FS.PathExists(candidate) {
			if r.Logger != nil {
				r.Logger.Warn("appended suffix to make path unique",
					slog.String("path", candidate),
					slog.Int("counter", counter),
				)
			}
			return candidate, nil
		}
	}
}

// cutString shortens s to at most n bytes, backing off to a rune boundary so
// a multibyte character is never split.
func cutString(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
