// Package stage copies an artifact into every directory that downstream
// packaging and import logic reads it from.
package stage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// Op names the staging step that failed.
type Op string

const (
	OpPreflight Op = "preflight"
	OpMkdir     Op = "mkdir"
	OpCopy      Op = "copy"
	OpVerify    Op = "verify"
)

// Error reports a failed staging step.
type Error struct {
	Op  Op
	Src string
	Dst string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s %s -> %s: %v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Digest is the BLAKE3 digest of a file's content.
type Digest [32]byte

func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// HashFile computes the digest of the file at path, streaming its content.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Stager copies artifacts into target directories.
type Stager struct {
	Log zerolog.Logger
}

// Result describes a completed staging run.
type Result struct {
	Digest Digest
	Paths  []string
}

// Stage copies src into each of dirs under the name fileName, creating
// directories as needed. Every target is checked for write access first.
// On the first failing target staging stops; targets already written are
// left in place.
func (s *Stager) Stage(src string, dirs []string, fileName string) (*Result, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, &Error{Op: OpCopy, Src: src, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Op: OpCopy, Src: src, Err: errors.New("not a regular file")}
	}
	want, err := HashFile(src)
	if err != nil {
		return nil, &Error{Op: OpCopy, Src: src, Err: err}
	}

	for _, dir := range dirs {
		if err := writable(dir); err != nil {
			return nil, &Error{Op: OpPreflight, Src: src, Dst: dir, Err: err}
		}
	}

	res := &Result{Digest: want}
	for _, dir := range dirs {
		dst := filepath.Join(dir, fileName)
		if err := s.stageOne(src, info, dst, want); err != nil {
			return nil, err
		}
		res.Paths = append(res.Paths, dst)
	}
	return res, nil
}

func (s *Stager) stageOne(src string, srcInfo os.FileInfo, dst string, want Digest) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &Error{Op: OpMkdir, Src: src, Dst: dst, Err: err}
	}
	if dstInfo, err := os.Stat(dst); err == nil {
		if os.SameFile(srcInfo, dstInfo) {
			s.Log.Debug().Str("path", dst).Msg("artifact already in place")
			return nil
		}
		if got, err := HashFile(dst); err == nil && got == want {
			s.Log.Debug().Str("path", dst).Msg("staged copy up to date")
			return nil
		}
	}
	if err := copyFile(src, dst, srcInfo.Mode().Perm()); err != nil {
		return &Error{Op: OpCopy, Src: src, Dst: dst, Err: err}
	}
	got, err := HashFile(dst)
	if err != nil {
		return &Error{Op: OpVerify, Src: src, Dst: dst, Err: err}
	}
	if got != want {
		return &Error{Op: OpVerify, Src: src, Dst: dst, Err: fmt.Errorf("digest %s, want %s", got, want)}
	}
	s.Log.Info().Str("src", src).Str("dst", dst).Msg("staged artifact")
	return nil
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, so a reader never observes a half-written library.
func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// nearestExisting returns dir or its closest existing ancestor.
func nearestExisting(dir string) (string, error) {
	dir = filepath.Clean(dir)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", dir)
			}
			return dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		dir = parent
	}
}
