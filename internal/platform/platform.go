// Package platform maps the host operating system to the shared library
// naming rules used when locating, building and staging an artifact.
package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifies a supported host operating system.
type Platform string

const (
	Linux   Platform = "linux"
	MacOS   Platform = "macos"
	Windows Platform = "windows"
)

// suffixes is the per-OS shared library suffix table.
var suffixes = map[Platform]string{
	Linux:   ".so",
	MacOS:   ".dylib",
	Windows: ".dll",
}

// Host returns the platform of the running process.
// It panics on an operating system without a shared library suffix.
func Host() Platform {
	p, err := FromGOOS(runtime.GOOS)
	if err != nil {
		panic(err)
	}
	return p
}

// FromGOOS converts a GOOS value into a Platform.
func FromGOOS(goos string) (Platform, error) {
	switch goos {
	case "linux", "freebsd", "netbsd", "openbsd":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	case "windows":
		return Windows, nil
	}
	return "", fmt.Errorf("platform: unsupported operating system %q", goos)
}

// Suffix returns the shared library suffix, including the leading dot.
func (p Platform) Suffix() string {
	return suffixes[p]
}

// FileName returns the platform-qualified file name of the logical library name.
// Unix platforms use the "lib" prefix; Windows does not.
func (p Platform) FileName(name string) string {
	if p == Windows {
		return name + p.Suffix()
	}
	return "lib" + name + p.Suffix()
}

// ListSeparator returns the separator used by PATH-style variables.
func (p Platform) ListSeparator() string {
	if p == Windows {
		return ";"
	}
	return ":"
}

// SplitList splits a PATH-style value, dropping empty entries.
func (p Platform) SplitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, p.ListSeparator()) {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LibDirs returns the standard runtime library directories below an
// installation prefix. An empty prefix yields no directories.
func (p Platform) LibDirs(prefix string) []string {
	if prefix == "" {
		return nil
	}
	if p == Windows {
		return []string{
			filepath.Join(prefix, "bin"),
			filepath.Join(prefix, "Library", "bin"),
		}
	}
	return []string{filepath.Join(prefix, "lib")}
}

func (p Platform) String() string { return string(p) }

