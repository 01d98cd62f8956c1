package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/goplus/libstage/internal/build"
	"github.com/goplus/libstage/internal/loader"
	"github.com/goplus/libstage/internal/platform"
	"github.com/goplus/libstage/internal/provision"
)

const projectConfig = `
[library]
name = "Widgets"
stage_as = "WidgetsFoo"

[source]
fallback_dir = "python"

[stage]
package_dir = "_build/pkg"

[build]
work_dir = "_work"
`

// newProject writes a project rooted in a temp dir and isolates the
// command from the caller's environment.
func newProject(t *testing.T) string {
	t.Helper()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	xdg.Reload()
	for _, key := range []string{"CONDA_PREFIX", "VIRTUAL_ENV", "CH_LIBRARY_PATH"} {
		t.Setenv(key, "")
	}
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "libstage.toml"), []byte(projectConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func prebuilt(t *testing.T, root string, data string) string {
	t.Helper()
	dir := filepath.Join(root, "python")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, platform.Host().FileName("WidgetsFoo"))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// resetFlags clears flag values left over from a previous execution.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func execute(args ...string) (string, error) {
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProvisionReusesPrebuilt(t *testing.T) {
	root := newProject(t)
	src := prebuilt(t, root, "prebuilt")

	out, err := execute("provision", "--root", root, "--format", "json")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	var res provision.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.Reused || res.Source != src {
		t.Errorf("result = %+v", res)
	}
	staged := filepath.Join(root, "_build", "pkg", filepath.Base(src))
	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("package copy: %v", err)
	}
	if string(data) != "prebuilt" {
		t.Errorf("package copy = %q", data)
	}
}

func TestProvisionTextOutput(t *testing.T) {
	root := newProject(t)
	src := prebuilt(t, root, "prebuilt")

	out, err := execute("provision", "--root", root)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !strings.HasPrefix(out, "reused "+src+"\n") || !strings.Contains(out, "blake3 ") {
		t.Errorf("output = %q", out)
	}
}

func TestProvisionInvalidParallel(t *testing.T) {
	root := newProject(t)

	_, err := execute("provision", "--root", root, "--parallel", "0")
	var pe *build.ParallelismError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParallelismError", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(root, "_work")); len(entries) != 0 {
		t.Errorf("work dir touched: %v", entries)
	}
}

func TestLocate(t *testing.T) {
	root := newProject(t)

	out, err := execute("locate", "--root", root)
	if err == nil {
		t.Fatal("locate succeeded without a library")
	}
	if !strings.Contains(out, filepath.Join(root, "python")) {
		t.Errorf("search path not printed: %q", out)
	}

	src := prebuilt(t, root, "x")
	out, err = execute("locate", "--root", root)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if !strings.Contains(out, "found "+src) {
		t.Errorf("output = %q", out)
	}
}

func TestConfigJSON(t *testing.T) {
	root := newProject(t)

	if _, err := execute("config", "--root", root, "--stage-as", "ignored"); err == nil {
		t.Fatal("config accepted a provision flag")
	}

	out, err := execute("config", "--root", root, "--format", "json")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var got struct {
		Library struct {
			Name    string `json:"name"`
			StageAs string `json:"stage_as"`
		} `json:"library"`
		Build struct {
			WorkDir string `json:"work_dir"`
		} `json:"build"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Library.Name != "Widgets" || got.Library.StageAs != "WidgetsFoo" {
		t.Errorf("library = %+v", got.Library)
	}
	if got.Build.WorkDir != filepath.Join(root, "_work") {
		t.Errorf("work_dir = %q", got.Build.WorkDir)
	}
}

func TestCheckMissing(t *testing.T) {
	root := newProject(t)

	_, err := execute("check", "--root", root)
	var le *loader.Error
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want loader.Error", err)
	}
	if le.OverrideEnv != "CH_LIBRARY_PATH" {
		t.Errorf("OverrideEnv = %q", le.OverrideEnv)
	}
	if filepath.Dir(le.Path) != filepath.Join(root, "python") {
		t.Errorf("Path = %q", le.Path)
	}
}

func TestWriteReport(t *testing.T) {
	v := map[string]int{"a": 1}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "plain\n")
		return err
	}
	tests := []struct {
		format string
		want   string
	}{
		{"text", "plain\n"},
		{"", "plain\n"},
		{"yaml", "a: 1\n"},
		{"json", "{\n  \"a\": 1\n}\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeReport(&buf, tt.format, v, text); err != nil {
			t.Fatalf("%q: %v", tt.format, err)
		}
		if buf.String() != tt.want {
			t.Errorf("%q: got %q, want %q", tt.format, buf.String(), tt.want)
		}
	}
	if err := writeReport(io.Discard, "xml", v, text); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestWorkDirFlagRelativeToWorkingDir(t *testing.T) {
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWD) })
	resetFlags()
	t.Cleanup(resetFlags)
	if err := provisionCmd.Flags().Set("work-dir", "w"); err != nil {
		t.Fatal(err)
	}

	m, err := overrides(provisionCmd)
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}
	want, err := filepath.Abs("w")
	if err != nil {
		t.Fatal(err)
	}
	if got := m["build.work_dir"]; got != want {
		t.Errorf("build.work_dir = %v, want %s", got, want)
	}
}
