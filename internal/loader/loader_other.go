//go:build !(darwin || linux || windows)

package loader

import (
	"fmt"
	"runtime"
)

func dlopen(path string) (uintptr, error) {
	return 0, fmt.Errorf("loading shared libraries is not supported on %s", runtime.GOOS)
}

func dlsym(handle uintptr, name string) (uintptr, error) {
	return 0, fmt.Errorf("loading shared libraries is not supported on %s", runtime.GOOS)
}

func dlclose(handle uintptr) error { return nil }
