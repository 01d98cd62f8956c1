package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"

	"github.com/goplus/libstage/x/cmake"
)

// Request describes one toolchain run.
type Request struct {
	SourceDir string
	WorkDir   string
	Targets   []string

	// Parallelism is the raw parallelism hint. Empty means all cores.
	Parallelism string

	// FileName is the platform-qualified artifact file name.
	FileName string
	// OutputSubdir is where the artifact lands, relative to WorkDir.
	// Defaults to the first target.
	OutputSubdir string
}

// Options configures a Builder.
type Options struct {
	CMake      string // cmake binary; defaults to "cmake"
	Generator  string
	BuildType  string
	MinVersion string // minimum cmake version, e.g. "3.15"
	Defines    map[string]string

	Runner cmake.Runner // nil runs the real binary
	Stdout io.Writer
	Stderr io.Writer
	Log    zerolog.Logger
}

// Builder produces an artifact by driving cmake.
type Builder struct {
	opts Options
}

// New returns a Builder.
func New(opts Options) *Builder {
	if opts.Runner == nil {
		opts.Runner = cmake.ExecRunner{}
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{opts: opts}
}

// ParseParallelism validates a parallelism hint and returns the job count.
// An empty hint selects every available core.
func ParseParallelism(hint string) (int, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(hint)
	if err != nil || n <= 0 {
		return 0, &ParallelismError{Value: hint}
	}
	return n, nil
}

// Build configures the work directory if needed, builds the requested
// targets and returns the path of the produced artifact.
func (b *Builder) Build(ctx context.Context, req Request) (string, error) {
	jobs, err := ParseParallelism(req.Parallelism)
	if err != nil {
		return "", err
	}
	if len(req.Targets) == 0 {
		return "", errors.New("build: no target requested")
	}
	if req.FileName == "" {
		return "", errors.New("build: no artifact file name")
	}

	c := cmake.New(req.SourceDir, req.WorkDir, b.opts.Runner)
	c.Binary(b.opts.CMake)
	c.Generator(b.opts.Generator)
	c.BuildType(b.opts.BuildType)
	c.Output(b.opts.Stdout, b.opts.Stderr)
	for k, v := range b.opts.Defines {
		c.Define(k, v)
	}

	if err := b.checkVersion(ctx, c); err != nil {
		return "", err
	}

	if c.Configured() {
		b.opts.Log.Debug().Str("workDir", req.WorkDir).Msg("work directory already configured")
	} else {
		b.opts.Log.Info().Str("source", req.SourceDir).Str("workDir", req.WorkDir).Msg("configuring")
		if err := c.Configure(ctx); err != nil {
			return "", toolError(err)
		}
	}

	b.opts.Log.Info().Strs("targets", req.Targets).Int("jobs", jobs).Msg("building")
	if err := c.Build(ctx, req.Targets, jobs); err != nil {
		return "", toolError(err)
	}
	return b.artifact(req)
}

func (b *Builder) checkVersion(ctx context.Context, c *cmake.CMake) error {
	if b.opts.MinVersion == "" {
		return nil
	}
	have, err := c.Version(ctx)
	if err != nil {
		return toolError(err)
	}
	if semver.Compare(canonical(have), canonical(b.opts.MinVersion)) < 0 {
		return &ToolchainVersionError{Have: have, Want: b.opts.MinVersion}
	}
	b.opts.Log.Debug().Str("version", have).Msg("cmake version accepted")
	return nil
}

// artifact returns the produced artifact. Multi-config generators put
// outputs below a per-configuration directory, which is checked second.
func (b *Builder) artifact(req Request) (string, error) {
	subdir := req.OutputSubdir
	if subdir == "" {
		subdir = req.Targets[0]
	}
	dir := filepath.Join(req.WorkDir, subdir)
	candidates := []string{filepath.Join(dir, req.FileName)}
	if b.opts.BuildType != "" {
		candidates = append(candidates, filepath.Join(dir, b.opts.BuildType, req.FileName))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", &ArtifactMissingError{Path: candidates[0], Searched: candidates}
}

func toolError(err error) error {
	var exitErr *cmake.ExitError
	if errors.As(err, &exitErr) {
		return &ToolError{Command: exitErr.Command, ExitCode: exitErr.ExitCode, Err: err}
	}
	return fmt.Errorf("running cmake: %w", err)
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
