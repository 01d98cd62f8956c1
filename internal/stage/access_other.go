//go:build !unix

package stage

// writable only checks that dir can be created; write permission is
// left to the copy itself.
func writable(dir string) error {
	_, err := nearestExisting(dir)
	return err
}
