//go:build windows

package loader

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func dlopen(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("LoadLibrary: %w", err)
	}
	return uintptr(h), nil
}

func dlsym(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func dlclose(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}
