// Package cmake wraps the cmake configure/build workflow.
package cmake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CacheFile is the file cmake writes into a configured build directory.
const CacheFile = "CMakeCache.txt"

type defineValue struct {
	value    string
	typeName string
}

// Invocation is a single run of the cmake binary.
type Invocation struct {
	Bin    string
	Args   []string
	Env    []string // nil inherits the process environment
	Stdout io.Writer
	Stderr io.Writer
}

// String returns the command line.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Bin}, inv.Args...), " ")
}

// Runner executes cmake invocations.
type Runner interface {
	// Run executes inv, streaming its output.
	Run(ctx context.Context, inv Invocation) error
	// Output executes inv and returns its standard output.
	Output(ctx context.Context, inv Invocation) ([]byte, error)
}

// ExitError reports a cmake process that exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// ExecRunner runs cmake as a child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := command(ctx, inv)
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	return exitError(inv, cmd.Run())
}

func (ExecRunner) Output(ctx context.Context, inv Invocation) ([]byte, error) {
	cmd := command(ctx, inv)
	cmd.Stderr = inv.Stderr
	out, err := cmd.Output()
	return out, exitError(inv, err)
}

func command(ctx context.Context, inv Invocation) *exec.Cmd {
	cmd := exec.CommandContext(ctx, inv.Bin, inv.Args...)
	cmd.Env = inv.Env
	return cmd
}

func exitError(inv Invocation, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: inv.String(), ExitCode: exitErr.ExitCode()}
	}
	return err
}

// CMake drives CMake-based builds.
type CMake struct {
	bin       string
	sourceDir string
	buildDir  string
	generator string
	buildType string
	defines   map[string]defineValue
	env       map[string]string
	runner    Runner
	stdout    io.Writer
	stderr    io.Writer
}

// New returns a ready-to-use CMake. A nil runner runs the real binary.
func New(sourceDir, buildDir string, runner Runner) *CMake {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CMake{
		bin:       "cmake",
		sourceDir: sourceDir,
		buildDir:  buildDir,
		defines:   make(map[string]defineValue),
		runner:    runner,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// Binary overrides the cmake executable.
func (c *CMake) Binary(path string) {
	if path != "" {
		c.bin = path
	}
}

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Output redirects the streamed output of configure and build.
func (c *CMake) Output(stdout, stderr io.Writer) {
	c.stdout, c.stderr = stdout, stderr
}

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// Env sets a variable for every cmake process started by c.
func (c *CMake) Env(key, value string) {
	if c.env == nil {
		c.env = make(map[string]string)
	}
	c.env[key] = value
}

// Configured reports whether the build directory already carries a
// cmake configuration.
func (c *CMake) Configured() bool {
	info, err := os.Stat(filepath.Join(c.buildDir, CacheFile))
	return err == nil && info.Mode().IsRegular()
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.runner.Run(ctx, c.invocation(cmakeArgs))
}

// Build runs "cmake --build <build>" restricted to targets, using jobs
// parallel workers when jobs > 0.
func (c *CMake) Build(ctx context.Context, targets []string, jobs int, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	for _, t := range targets {
		cmakeArgs = append(cmakeArgs, "--target", t)
	}
	if jobs > 0 {
		cmakeArgs = append(cmakeArgs, "--parallel", fmt.Sprint(jobs))
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.runner.Run(ctx, c.invocation(cmakeArgs))
}

var versionRE = regexp.MustCompile(`cmake version (\d+\.\d+(?:\.\d+)?)`)

// Version returns the cmake version, e.g. "3.27.4".
func (c *CMake) Version(ctx context.Context) (string, error) {
	inv := c.invocation([]string{"--version"})
	inv.Stdout = nil
	out, err := c.runner.Output(ctx, inv)
	if err != nil {
		return "", err
	}
	m := versionRE.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("cmake: cannot parse version from %q", strings.TrimSpace(string(out)))
	}
	return string(m[1]), nil
}

func (c *CMake) invocation(args []string) Invocation {
	inv := Invocation{
		Bin:    c.bin,
		Args:   args,
		Stdout: c.stdout,
		Stderr: c.stderr,
	}
	if len(c.env) > 0 {
		inv.Env = mergeEnv(os.Environ(), c.env)
	}
	return inv
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
