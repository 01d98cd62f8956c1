// Package loader opens the staged shared library for a consumer. Loading
// happens only when Open is called, so a missing or broken library is an
// ordinary error rather than a failure at program start.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/libstage/internal/platform"
)

// ErrClosed is returned when using a closed Library.
var ErrClosed = errors.New("library closed")

// Error reports a library that could not be found or loaded.
type Error struct {
	Name        string
	Path        string
	OverrideEnv string
	Err         error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, os.ErrNotExist) {
		return fmt.Sprintf("could not find %s. Rebuild the project or set %s to its location", e.Path, e.OverrideEnv)
	}
	return fmt.Sprintf("failed to load %s. Rebuild the project or set %s: %v", e.Path, e.OverrideEnv, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tells Open where the library lives.
type Options struct {
	Platform platform.Platform
	// Dir is the designated directory holding the staged library.
	Dir string
	// Override, when set, replaces Dir.
	Override string
	// OverrideEnv names the variable Override was read from, for messages.
	OverrideEnv string
}

// Library is a loaded shared library.
type Library struct {
	Path   string
	handle uintptr
}

// Path returns where Open would look for the named library.
func Path(name string, opts Options) string {
	dir := opts.Dir
	if opts.Override != "" {
		dir = opts.Override
	}
	return filepath.Join(dir, opts.Platform.FileName(name))
}

// Open finds and loads the named library.
func Open(name string, opts Options) (*Library, error) {
	path := Path(name, opts)
	fail := func(err error) error {
		return &Error{Name: name, Path: path, OverrideEnv: opts.OverrideEnv, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fail(err)
	}
	if !info.Mode().IsRegular() {
		return nil, fail(fmt.Errorf("%s is not a regular file", path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fail(err)
	}
	h, err := dlopen(abs)
	if err != nil {
		return nil, fail(err)
	}
	return &Library{Path: abs, handle: h}, nil
}

// Symbol returns the address of the named symbol.
func (l *Library) Symbol(name string) (uintptr, error) {
	if l.handle == 0 {
		return 0, ErrClosed
	}
	return dlsym(l.handle, name)
}

// Close unloads the library.
func (l *Library) Close() error {
	if l.handle == 0 {
		return ErrClosed
	}
	err := dlclose(l.handle)
	l.handle = 0
	return err
}
