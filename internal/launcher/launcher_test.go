package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/sandboxd/internal/cage"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// TestMain doubles as the Unix re-exec shim's entry point. The cage
// spawns os.Executable() (this test binary, under `go test`) with the
// hidden cage.ShimArg sentinel — exactly like cmd/sandboxd's real
// main() does — so the test binary must recognize and handle it before
// the testing package's own flag parsing ever runs. This mirrors the
// long-standing os/exec "helper process" testing idiom.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == cage.ShimArg {
		if err := cage.RunShim(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	goleak.VerifyTestMain(m)
}

// requirePython skips a test when no guest interpreter is available on
// the host running it, rather than failing the whole package.
func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		if _, err := exec.LookPath("python"); err != nil {
			t.Skip("no python3/python interpreter on PATH")
		}
	}
}

func TestEvaluate_SimpleExpression(t *testing.T) {
	requirePython(t)
	result, err := New().Evaluate(context.Background(), "print(2 + 2)", sandbox.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseExecution, result.Phase)
	assert.Equal(t, "4\n", result.Stdout)
	assert.Equal(t, "", result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
}

func TestEvaluate_NoOutput(t *testing.T) {
	requirePython(t)
	result, err := New().Evaluate(context.Background(), "x = 42", sandbox.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseExecution, result.Phase)
	assert.Equal(t, "", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestEvaluate_SyntaxError(t *testing.T) {
	result, err := New().Evaluate(context.Background(), "print(2 +", sandbox.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseSyntaxCheck, result.Phase)
	require.NotNil(t, result.SyntaxReport)
	assert.False(t, result.SyntaxReport.Valid)
	assert.Equal(t, 1, result.SyntaxReport.Line)
}

func TestEvaluate_DangerousFunctionBlocked(t *testing.T) {
	result, err := New().Evaluate(context.Background(), "eval('2+2')", sandbox.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseSecurityCheck, result.Phase)
	assert.Contains(t, result.Violations, "Call to dangerous function: eval")
}

func TestEvaluate_ImportBlocked(t *testing.T) {
	result, err := New().Evaluate(context.Background(), "import os", sandbox.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseSecurityCheck, result.Phase)
	assert.Contains(t, result.Violations, "Import of dangerous module: os")
}

func TestEvaluate_Timeout(t *testing.T) {
	requirePython(t)
	limits := sandbox.Limits{WallTimeoutSeconds: 1.0, CPUSeconds: 5.0, AddressSpaceMB: 100}
	start := time.Now()
	result, err := New().Evaluate(context.Background(), "x = 0\nwhile True:\n    x += 1", limits)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, sandbox.PhaseExecution, result.Phase)
	assert.Equal(t, 124, result.ExitCode)
	assert.Contains(t, result.Stderr, "timed out")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestEvaluate_RejectsNonPositiveWallTimeout(t *testing.T) {
	_, err := New().Evaluate(context.Background(), "x = 1", sandbox.Limits{WallTimeoutSeconds: 0})
	assert.Error(t, err)
}

func TestEvaluate_TempFileRemovedAfterRun(t *testing.T) {
	requirePython(t)
	dir := t.TempDir()
	l := New()
	l.TempDir = dir

	_, err := l.Evaluate(context.Background(), "print('hi')", sandbox.DefaultLimits())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp script must be deleted before Evaluate returns")
}

// TestEvaluate_NoSharedStateUnderConcurrency exercises several
// concurrent Evaluate calls and asserts none interferes with another's
// result, per spec.md §5's "no shared mutable state between calls".
func TestEvaluate_NoSharedStateUnderConcurrency(t *testing.T) {
	requirePython(t)
	l := New()

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		n := i
		g.Go(func() error {
			code := "print(" + string(rune('0'+n)) + ")"
			result, err := l.Evaluate(context.Background(), code, sandbox.DefaultLimits())
			if err != nil {
				return err
			}
			if result.Phase != sandbox.PhaseExecution || result.ExitCode != 0 || result.Stdout != fmt.Sprintf("%d\n", n) {
				t.Errorf("unexpected result for n=%d: %+v", n, result)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
