package build

import (
	"fmt"
	"strings"
)

// ParallelismError reports a parallelism hint that is not a positive integer.
type ParallelismError struct {
	Value string
}

func (e *ParallelismError) Error() string {
	return fmt.Sprintf("invalid parallelism %q: must be a positive integer", e.Value)
}

// ToolError reports a toolchain step that exited with a non-zero status.
type ToolError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("toolchain command failed with exit code %d: %s", e.ExitCode, e.Command)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ArtifactMissingError reports a successful toolchain run that did not
// produce the expected artifact.
type ArtifactMissingError struct {
	Path     string
	Searched []string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("toolchain succeeded but artifact %s is missing (looked in %s)",
		e.Path, strings.Join(e.Searched, ", "))
}

// ToolchainVersionError reports a toolchain older than the configured minimum.
type ToolchainVersionError struct {
	Have string
	Want string
}

func (e *ToolchainVersionError) Error() string {
	return fmt.Sprintf("cmake %s is older than the required %s", e.Have, e.Want)
}
