// Package config resolves the run configuration once, from built-in
// defaults, an optional libstage.toml, LIBSTAGE_ environment variables and
// command line overrides, in that order.
//
// Load is the only place that reads the process environment. Everything
// downstream receives the resolved Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/mod/semver"

	"github.com/goplus/libstage/internal/build"
	lsenv "github.com/goplus/libstage/internal/env"
	"github.com/goplus/libstage/internal/locate"
	"github.com/goplus/libstage/internal/platform"
)

// goos is the operating system Load resolves the platform from.
var goos = runtime.GOOS

// FileName is the project configuration file looked up in the source root.
const FileName = "libstage.toml"

// EnvPrefix prefixes environment overrides, e.g. LIBSTAGE_BUILD__PARALLEL.
const EnvPrefix = "LIBSTAGE_"

// Library names the artifact.
type Library struct {
	Name         string `koanf:"name" json:"name" yaml:"name"`
	Target       string `koanf:"target" json:"target" yaml:"target"`
	StageAs      string `koanf:"stage_as" json:"stage_as,omitempty" yaml:"stage_as,omitempty"`
	OutputSubdir string `koanf:"output_subdir" json:"output_subdir" yaml:"output_subdir"`
}

// Source locates the source tree.
type Source struct {
	Root        string `koanf:"root" json:"root" yaml:"root"`
	FallbackDir string `koanf:"fallback_dir" json:"fallback_dir" yaml:"fallback_dir"`
}

// Stage lists staging directories besides the in-source fallback.
type Stage struct {
	PackageDir string `koanf:"package_dir" json:"package_dir,omitempty" yaml:"package_dir,omitempty"`
}

// Build configures the toolchain.
type Build struct {
	WorkDir    string            `koanf:"work_dir" json:"work_dir" yaml:"work_dir"`
	Parallel   string            `koanf:"parallel" json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Generator  string            `koanf:"generator" json:"generator,omitempty" yaml:"generator,omitempty"`
	BuildType  string            `koanf:"build_type" json:"build_type" yaml:"build_type"`
	CMake      string            `koanf:"cmake" json:"cmake" yaml:"cmake"`
	MinVersion string            `koanf:"min_version" json:"min_version,omitempty" yaml:"min_version,omitempty"`
	Defines    map[string]string `koanf:"defines" json:"defines,omitempty" yaml:"defines,omitempty"`
}

// Search configures the search path.
type Search struct {
	Prefix  string `koanf:"prefix" json:"prefix,omitempty" yaml:"prefix,omitempty"`
	PathEnv string `koanf:"path_env" json:"path_env" yaml:"path_env"`
}

// Config is the resolved configuration of one run.
type Config struct {
	Library Library `koanf:"library" json:"library" yaml:"library"`
	Source  Source  `koanf:"source" json:"source" yaml:"source"`
	Stage   Stage   `koanf:"stage" json:"stage" yaml:"stage"`
	Build   Build   `koanf:"build" json:"build" yaml:"build"`
	Search  Search  `koanf:"search" json:"search" yaml:"search"`

	// LibraryPath is the value of the Search.PathEnv variable.
	LibraryPath string `koanf:"-" json:"library_path,omitempty" yaml:"library_path,omitempty"`
	// File is the configuration file that was loaded, if any.
	File string `koanf:"-" json:"-" yaml:"-"`

	Platform platform.Platform `koanf:"-" json:"platform" yaml:"platform"`
}

// Options controls Load.
type Options struct {
	// File is an explicit configuration file; it must exist.
	File string
	// Dir is where source root discovery starts. Defaults to the working directory.
	Dir string
	// Overrides are dotted keys set from the command line.
	Overrides map[string]any
	// Platform defaults to the host.
	Platform platform.Platform
}

func defaults() map[string]any {
	return map[string]any{
		"library.name":        "",
		"source.fallback_dir": ".",
		"build.build_type":    "Release",
		"build.cmake":         "cmake",
		"build.min_version":   "3.15",
		"search.path_env":     "CH_LIBRARY_PATH",
	}
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := opts.File
	if path == "" {
		path = findFile(dir)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = path
	cfg.Platform = opts.Platform
	if cfg.Platform == "" {
		p, err := platform.FromGOOS(goos)
		if err != nil {
			return nil, err
		}
		cfg.Platform = p
	}

	base := dir
	if path != "" {
		base = filepath.Dir(path)
	}
	if cfg.Source.Root == "" {
		cfg.Source.Root = base
	} else if !filepath.IsAbs(cfg.Source.Root) {
		cfg.Source.Root = filepath.Join(base, cfg.Source.Root)
	}
	if cfg.Search.Prefix == "" {
		cfg.Search.Prefix = firstEnv("CONDA_PREFIX", "VIRTUAL_ENV")
	}
	if cfg.Search.PathEnv != "" {
		cfg.LibraryPath = os.Getenv(cfg.Search.PathEnv)
	}
	if cfg.Build.WorkDir == "" && cfg.Library.Name != "" {
		cfg.Build.WorkDir = lsenv.WorkDir(cfg.Library.Name)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps LIBSTAGE_BUILD__WORK_DIR to build.work_dir. Names below
// build.defines keep their case since cmake variables are case-sensitive.
func envKey(s string) string {
	parts := strings.Split(strings.TrimPrefix(s, EnvPrefix), "__")
	if len(parts) < 2 {
		return ""
	}
	for i := range parts {
		if i >= 2 && parts[0] == "build" && parts[1] == "defines" {
			break
		}
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, ".")
}

// findFile walks up from dir to the first directory holding FileName.
func findFile(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, FileName)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) resolve() error {
	root, err := filepath.Abs(c.Source.Root)
	if err != nil {
		return err
	}
	c.Source.Root = root
	c.Source.FallbackDir = c.abs(c.Source.FallbackDir)
	c.Stage.PackageDir = c.abs(c.Stage.PackageDir)
	c.Build.WorkDir = c.abs(c.Build.WorkDir)
	if c.Library.Target == "" {
		c.Library.Target = c.Library.Name
	}
	if c.Library.OutputSubdir == "" {
		c.Library.OutputSubdir = c.Library.Target
	}
	return nil
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Source.Root, p)
}

// Validate reports the first invalid setting, naming its key.
func (c *Config) Validate() error {
	if c.Library.Name == "" {
		return errors.New("config: library.name is required")
	}
	if strings.ContainsAny(c.Library.Name, `/\`) {
		return fmt.Errorf("config: library.name %q must not contain path separators", c.Library.Name)
	}
	if strings.ContainsAny(c.Library.StageAs, `/\`) {
		return fmt.Errorf("config: library.stage_as %q must not contain path separators", c.Library.StageAs)
	}
	if c.Build.Parallel != "" {
		if _, err := build.ParseParallelism(c.Build.Parallel); err != nil {
			return fmt.Errorf("config: build.parallel: %w", err)
		}
	}
	if v := c.Build.MinVersion; v != "" && !semver.IsValid("v"+strings.TrimPrefix(v, "v")) {
		return fmt.Errorf("config: build.min_version %q is not a version", v)
	}
	return nil
}

// SearchPaths returns the ordered directories searched for a prebuilt artifact.
func (c *Config) SearchPaths() []string {
	return locate.SearchPaths(c.Platform, locate.Inputs{
		Prefix:      c.Search.Prefix,
		LibraryPath: c.LibraryPath,
		Fallback:    c.Source.FallbackDir,
	})
}

// StagingTargets returns the directories that receive the artifact: the
// in-source directory used by editable imports, then the package
// directory of the build output tree.
func (c *Config) StagingTargets() []string {
	targets := []string{c.Source.FallbackDir}
	if c.Stage.PackageDir != "" && filepath.Clean(c.Stage.PackageDir) != filepath.Clean(c.Source.FallbackDir) {
		targets = append(targets, c.Stage.PackageDir)
	}
	return targets
}

// StagedFileName returns the platform file name of the staged artifact.
func (c *Config) StagedFileName() string {
	name := c.Library.StageAs
	if name == "" {
		name = c.Library.Name
	}
	return c.Platform.FileName(name)
}
