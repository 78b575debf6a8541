// Package launcher implements the Sandbox Launcher: it orchestrates one
// evaluate(code, limits) call end to end — static analysis, rendering
// the Inner Runtime Template to a temp file, spawning the guest
// interpreter under a resource cage, enforcing the wall-clock deadline,
// and parsing the child's JSON result (or framing a containment
// failure). See spec.md §4.3.
package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/nextlevelbuilder/sandboxd/internal/analyzer"
	"github.com/nextlevelbuilder/sandboxd/internal/cage"
	"github.com/nextlevelbuilder/sandboxd/internal/logging"
	"github.com/nextlevelbuilder/sandboxd/internal/runtimetpl"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// Launcher ties the pipeline's stages together. It holds no per-call
// state; one Launcher is shared safely across concurrent Evaluate calls
// (each call builds its own analyzer, temp file, and cage).
type Launcher struct {
	// Interpreter overrides interpreter discovery when non-empty.
	Interpreter string

	// TempDir overrides os.TempDir() for the rendered script, when
	// non-empty.
	TempDir string

	newCage func() cage.Cage
}

// New returns a Launcher using the platform's default ResourceCage.
func New() *Launcher {
	return &Launcher{newCage: cage.New}
}

// CheckSyntax runs the Static Analyzer's syntax check alone, exposed for
// the `sandboxd check` CLI operation of spec.md §6.
func (l *Launcher) CheckSyntax(code string) (sandbox.SyntaxReport, error) {
	a := analyzer.New()
	return a.CheckSyntax(code)
}

// Evaluate runs the full pipeline for one piece of source, per spec.md
// §4.3's numbered steps. It never returns a non-nil error for ordinary
// sandboxing outcomes (syntax, policy, timeout, containment failure are
// all encoded in the returned ExecutionResult) — a non-nil error means
// an internal failure (kind 7 of spec.md §7) that aborted the
// evaluation before a record could be constructed.
func (l *Launcher) Evaluate(ctx context.Context, code string, limits sandbox.Limits) (*sandbox.ExecutionResult, error) {
	if limits.WallTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("launcher: wall_timeout_seconds must be positive, got %v", limits.WallTimeoutSeconds)
	}

	a := analyzer.New()

	report, err := a.CheckSyntax(code)
	if err != nil {
		return nil, fmt.Errorf("launcher: %w", err)
	}
	if !report.Valid {
		return &sandbox.ExecutionResult{
			Phase:        sandbox.PhaseSyntaxCheck,
			Stderr:       renderSyntaxReport(report),
			ExitCode:     1,
			SyntaxReport: &report,
		}, nil
	}

	violations, err := a.Scan(code)
	if err != nil {
		return nil, fmt.Errorf("launcher: %w", err)
	}
	if len(violations) > 0 {
		logging.LauncherDebug("evaluation blocked by security scan: %d violation(s)", len(violations))
		return &sandbox.ExecutionResult{
			Phase:      sandbox.PhaseSecurityCheck,
			Stderr:     renderViolations(violations),
			ExitCode:   1,
			Violations: violations,
		}, nil
	}

	return l.runChild(ctx, code, limits)
}

// runChild performs spec.md §4.3 steps 3-8: render, spawn, wait,
// collect.
func (l *Launcher) runChild(ctx context.Context, code string, limits sandbox.Limits) (result *sandbox.ExecutionResult, err error) {
	rendered, err := runtimetpl.Render(code)
	if err != nil {
		return nil, fmt.Errorf("launcher: render template: %w", err)
	}

	scriptPath, err := writeTempScript(l.TempDir, rendered)
	if err != nil {
		return nil, fmt.Errorf("launcher: write temp script: %w", err)
	}
	defer func() {
		// Deletion is unconditional, per I2 — a missing file here is not
		// an error.
		_ = os.Remove(scriptPath)
	}()

	interpreter, err := l.findInterpreter()
	if err != nil {
		return nil, fmt.Errorf("launcher: locate interpreter: %w", err)
	}

	selfPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("launcher: locate own binary: %w", err)
	}

	env := cleanEnvironment(os.Environ())

	c := l.newCage()
	defer c.Release()

	deadline := time.Duration(limits.WallTimeoutSeconds * float64(time.Second))
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd, err := c.Command(runCtx, selfPath, interpreter, scriptPath, limits, env)
	if err != nil {
		return nil, fmt.Errorf("launcher: configure cage: %w", err)
	}
	cmd.Stdin = nil

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launcher: start interpreter: %w", err)
	}

	if err := c.Attach(cmd); err != nil {
		// Attach failures still leave a running child; fall through to
		// the wait below so it is always reaped.
		logging.LauncherWarn("cage attach failed: %v", err)
	}

	// exec.CommandContext kills the child itself once runCtx's deadline
	// fires; Wait then lets the output-copying goroutines drain whatever
	// the child had already written, for at most cmd.WaitDelay (one
	// second) before it closes the pipes — the brief drain after kill,
	// with no separate kill/drain step here.
	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return &sandbox.ExecutionResult{
			Phase:        sandbox.PhaseExecution,
			Stderr:       fmt.Sprintf("Execution timed out after %v seconds", limits.WallTimeoutSeconds),
			ExitCode:     124,
			PlatformNote: c.PlatformNote(),
		}, nil
	}

	return parseChildResult(stdoutBuf.Bytes(), stderrBuf.String(), waitErr, c.PlatformNote()), nil
}

// parseChildResult implements spec.md §4.3 step 8's happy/containment
// split.
func parseChildResult(stdout []byte, stderr string, waitErr error, platformNote string) *sandbox.ExecutionResult {
	var record sandbox.ChildRecord
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &record); err != nil {
		logging.LauncherWarn("child produced no valid JSON envelope: %v", err)
		exitCode := 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok && exitErr.ExitCode() != 0 {
			exitCode = exitErr.ExitCode()
		}
		return &sandbox.ExecutionResult{
			Phase:        sandbox.PhaseExecution,
			Stdout:       string(stdout),
			Stderr:       stderr,
			ExitCode:     exitCode,
			PlatformNote: platformNote,
		}
	}

	return &sandbox.ExecutionResult{
		Phase:        sandbox.PhaseExecution,
		Stdout:       record.Stdout,
		Stderr:       record.Stderr,
		ExitCode:     record.ExitCode,
		PlatformNote: platformNote,
	}
}

func renderSyntaxReport(r sandbox.SyntaxReport) string {
	if r.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d): %s", r.Message, r.Line, r.Column, r.ContextLine)
	}
	return r.Message
}

func renderViolations(v sandbox.ViolationList) string {
	return strings.Join(v, "; ")
}

// writeTempScript materializes the rendered template to a new,
// uniquely-named file with a .py suffix. dir == "" uses os.TempDir().
func writeTempScript(dir, contents string) (string, error) {
	f, err := os.CreateTemp(dir, "sandboxd-*.py")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(contents); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// findInterpreter locates the guest interpreter binary, per spec.md
// §4.3 step 4: prefer a configured override, otherwise look up "python3"
// on PATH, and on Windows normalize a no-console (pythonw.exe) variant
// to its console counterpart so the JSON envelope has a working stdout.
func (l *Launcher) findInterpreter() (string, error) {
	if l.Interpreter != "" {
		return l.Interpreter, nil
	}

	path, err := exec.LookPath("python3")
	if err != nil {
		path, err = exec.LookPath("python")
		if err != nil {
			return "", fmt.Errorf("no guest interpreter found on PATH: %w", err)
		}
	}

	if runtime.GOOS == "windows" {
		base := filepath.Base(path)
		if strings.EqualFold(base, "pythonw.exe") {
			consolePath := filepath.Join(filepath.Dir(path), "python.exe")
			if _, statErr := os.Stat(consolePath); statErr == nil {
				return consolePath, nil
			}
		}
	}

	return path, nil
}

// cleanEnvironment implements spec.md §4.3 step 5: copy the full process
// environment, strip anything that extends the guest language's module
// search path, and force unbuffered I/O.
func cleanEnvironment(base []string) []string {
	out := make([]string, 0, len(base)+1)
	for _, kv := range base {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if strings.EqualFold(key, "PYTHONPATH") {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "PYTHONUNBUFFERED=1")
	return out
}
