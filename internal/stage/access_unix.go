//go:build unix

package stage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// writable reports whether dir, or the ancestor it would be created
// under, accepts new files.
func writable(dir string) error {
	existing, err := nearestExisting(dir)
	if err != nil {
		return err
	}
	if err := unix.Access(existing, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", existing, err)
	}
	return nil
}
