// Package locate finds an existing shared library in an ordered list of
// candidate directories.
package locate

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/goplus/libstage/internal/platform"
)

// Inputs are the environment-derived sources of a search path.
type Inputs struct {
	// Prefix is an installation prefix whose runtime library
	// directories are searched first.
	Prefix string
	// LibraryPath is the raw value of the override path variable.
	LibraryPath string
	// Fallback is the in-source directory holding previously staged artifacts.
	Fallback string
}

// SearchPaths returns the canonical search order: installation prefix
// directories, then override path entries, then the in-source fallback.
// Duplicate directories keep their first position.
func SearchPaths(p platform.Platform, in Inputs) []string {
	var dirs []string
	dirs = append(dirs, p.LibDirs(in.Prefix)...)
	dirs = append(dirs, p.SplitList(in.LibraryPath)...)
	if in.Fallback != "" {
		dirs = append(dirs, in.Fallback)
	}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		key := filepath.Clean(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// Locator searches directories for a platform-qualified library file.
type Locator struct {
	Platform platform.Platform
	Log      zerolog.Logger

	// Stat is used to inspect candidates. Defaults to os.Stat.
	Stat func(name string) (fs.FileInfo, error)
}

// New returns a Locator for p.
func New(p platform.Platform) *Locator {
	return &Locator{Platform: p}
}

// Locate returns the first regular file named after name in dirs.
// Directories that do not exist, or that hold something other than a
// regular file under that name, do not match. found is false when no
// directory matches; that is not an error.
func (l *Locator) Locate(name string, dirs []string) (path string, found bool) {
	fileName := l.Platform.FileName(name)
	stat := l.Stat
	if stat == nil {
		stat = os.Stat
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, fileName)
		info, err := stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			l.Log.Trace().Str("candidate", candidate).Msg("no match")
			continue
		}
		l.Log.Debug().Str("path", candidate).Msg("found library")
		return candidate, true
	}
	l.Log.Debug().Str("file", fileName).Strs("dirs", dirs).Msg("library not found")
	return "", false
}
