// Package env provides the default per-user locations used by libstage.
package env

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// WorkDir returns the default build work directory for the named library.
func WorkDir(name string) string {
	return filepath.Join(xdg.CacheHome, "libstage", name)
}

// LogFile returns the log file path, creating its parent directory.
func LogFile() (string, error) {
	return xdg.StateFile(filepath.Join("libstage", "libstage.log"))
}
