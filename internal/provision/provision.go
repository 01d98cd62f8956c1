// Package provision makes sure a shared library exists in every staging
// directory, reusing a prebuilt copy when one can be found and driving
// the build toolchain otherwise.
package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goplus/libstage/internal/build"
	"github.com/goplus/libstage/internal/locate"
	"github.com/goplus/libstage/internal/platform"
	"github.com/goplus/libstage/internal/stage"
)

// Stage names the step of a provisioning run.
type Stage string

const (
	StageSearch    Stage = "reuse search"
	StageToolchain Stage = "toolchain invocation"
	StageStaging   Stage = "staging"
)

// Error reports which step of a provisioning run failed.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Builder produces an artifact and reports its path.
type Builder interface {
	Build(ctx context.Context, req build.Request) (string, error)
}

// Request describes one provisioning run.
type Request struct {
	// Name is the logical library name the toolchain produces.
	Name string
	// StageAs renames the staged artifact. Empty keeps Name.
	StageAs string

	SearchPaths []string
	Build       build.Request
	Targets     []string // staging directories
}

// StagedName returns the logical name staged artifacts carry.
func (r *Request) StagedName() string {
	if r.StageAs != "" {
		return r.StageAs
	}
	return r.Name
}

// Result describes a successful run.
type Result struct {
	Source string   `json:"source" yaml:"source"`
	Reused bool     `json:"reused" yaml:"reused"`
	Staged []string `json:"staged" yaml:"staged"`
	Digest string   `json:"blake3" yaml:"blake3"`
}

// Provisioner orchestrates locate, build and stage.
type Provisioner struct {
	Platform platform.Platform
	Locator  *locate.Locator
	Builder  Builder
	Stager   *stage.Stager
	Log      zerolog.Logger
}

// New returns a Provisioner for p that builds with b.
func New(p platform.Platform, b Builder, log zerolog.Logger) *Provisioner {
	return &Provisioner{
		Platform: p,
		Locator:  &locate.Locator{Platform: p, Log: log},
		Builder:  b,
		Stager:   &stage.Stager{Log: log},
		Log:      log,
	}
}

// Provision reuses the first artifact found on the search path, or builds
// one, and copies it into every staging directory. A failed build stages
// nothing. A staging failure stops at the failing directory.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	if req.Name == "" {
		return nil, &Error{Stage: StageSearch, Err: fmt.Errorf("no library name")}
	}
	stagedName := req.StagedName()
	fileName := p.Platform.FileName(stagedName)

	res := &Result{}
	if path, found := p.Locator.Locate(stagedName, req.SearchPaths); found {
		p.Log.Info().Str("path", path).Msg("reusing prebuilt library")
		res.Source, res.Reused = path, true
	} else {
		p.Log.Info().Str("library", req.Name).Msg("no prebuilt library found, building")
		br := req.Build
		if br.FileName == "" {
			br.FileName = p.Platform.FileName(req.Name)
		}
		if len(br.Targets) == 0 {
			br.Targets = []string{req.Name}
		}
		path, err := p.Builder.Build(ctx, br)
		if err != nil {
			return nil, &Error{Stage: StageToolchain, Err: err}
		}
		res.Source = path
	}

	staged, err := p.Stager.Stage(res.Source, req.Targets, fileName)
	if err != nil {
		return nil, &Error{Stage: StageStaging, Err: err}
	}
	res.Staged = staged.Paths
	res.Digest = staged.Digest.String()
	return res, nil
}
