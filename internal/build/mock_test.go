package build

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goplus/libstage/x/cmake"
)

// mockRunner implements cmake.Runner without spawning processes.
type mockRunner struct {
	calls   []cmake.Invocation
	version string

	// produce is written to artifact on a successful --build.
	artifact string
	produce  []byte

	// failOn makes the invocation whose first argument matches exit with code.
	failOn string
	code   int
}

func (m *mockRunner) Run(ctx context.Context, inv cmake.Invocation) error {
	m.calls = append(m.calls, inv)
	if len(inv.Args) == 0 {
		return nil
	}
	if inv.Args[0] == m.failOn {
		return &cmake.ExitError{Command: inv.String(), ExitCode: m.code}
	}
	switch inv.Args[0] {
	case "-S":
		// configure leaves a cache behind like the real tool
		buildDir := inv.Args[3]
		if err := os.MkdirAll(buildDir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(buildDir, cmake.CacheFile), nil, 0o644)
	case "--build":
		if m.artifact == "" {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(m.artifact), 0o755); err != nil {
			return err
		}
		return os.WriteFile(m.artifact, m.produce, 0o755)
	}
	return nil
}

func (m *mockRunner) Output(ctx context.Context, inv cmake.Invocation) ([]byte, error) {
	m.calls = append(m.calls, inv)
	if m.failOn == "--version" {
		return nil, &cmake.ExitError{Command: inv.String(), ExitCode: m.code}
	}
	v := m.version
	if v == "" {
		v = "3.27.4"
	}
	return []byte("cmake version " + v + "\n"), nil
}

func (m *mockRunner) count(firstArg string) int {
	n := 0
	for _, c := range m.calls {
		if len(c.Args) > 0 && c.Args[0] == firstArg {
			n++
		}
	}
	return n
}
