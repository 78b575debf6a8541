//go:build !windows

package cage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/nextlevelbuilder/sandboxd/internal/logging"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// unixCage enforces limits via a re-exec shim. Go's os/exec has no
// equivalent of Python's preexec_fn — no hook runs in the forked child
// before the target binary's image replaces it — so instead of spawning
// the guest interpreter directly, the cage spawns its own binary with
// the ShimArg sentinel. The shim (RunShim, invoked from cmd/sandboxd's
// main before anything else runs) sets rlimits on itself and then execs
// the real interpreter in place, so the limits persist across the
// execve exactly as POSIX rlimits do. See spec.md §9.
//
// CPU-time truncation is to whole seconds (rlimit granularity), per the
// spec's documented Unix/Windows asymmetry — not normalized.
type unixCage struct {
	statusR, statusW *os.File
	note             string
}

// New returns the Unix ResourceCage.
func New() Cage {
	return &unixCage{}
}

func (c *unixCage) Command(ctx context.Context, selfPath, interpreter, scriptPath string, limits sandbox.Limits, env []string) (*exec.Cmd, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("cage: create status pipe: %w", err)
	}
	c.statusR, c.statusW = r, w

	cpuArg := strconv.FormatFloat(limits.CPUSeconds, 'f', -1, 64)
	memArg := strconv.Itoa(limits.AddressSpaceMB)

	cmd := exec.CommandContext(ctx, selfPath, ShimArg, cpuArg, memArg, interpreter, scriptPath)
	cmd.Env = env
	cmd.Stdin = nil // reads from the null device, per spec.md §5
	cmd.ExtraFiles = []*os.File{w}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logging.CageDebug("unix cage: spawning shim for %s %s (cpu=%s mem=%sMB)", interpreter, scriptPath, cpuArg, memArg)
	return cmd, nil
}

func (c *unixCage) Attach(cmd *exec.Cmd) error {
	// Our copy of the write end must be closed so the read below sees
	// EOF once (and only once) the shim closes its own duplicate.
	_ = c.statusW.Close()

	buf := make([]byte, 1)
	n, _ := c.statusR.Read(buf)
	_ = c.statusR.Close()

	if n == 0 || buf[0] != statusOK {
		c.note = "rlimit setup degraded or failed in sandbox shim; resource limits may not be fully enforced"
		logging.CageWarn("unix cage: %s", c.note)
	}
	return nil
}

func (c *unixCage) Release() {
	if c.statusR != nil {
		_ = c.statusR.Close()
	}
	if c.statusW != nil {
		_ = c.statusW.Close()
	}
}

func (c *unixCage) PlatformNote() string { return c.note }

const (
	statusOK      byte = '1'
	statusDegrade byte = '0'
)

// RunShim is the entry point cmd/sandboxd dispatches to when its argv[1]
// is ShimArg, before any other initialization (including flag parsing)
// runs. args is os.Args[2:]: [cpuSeconds, addressSpaceMB, interpreter,
// scriptPath]. RunShim never returns on success — it replaces the
// current process image with the interpreter via execve.
func RunShim(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("cage shim: expected 4 arguments, got %d", len(args))
	}
	cpuSeconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("cage shim: bad cpu-seconds %q: %w", args[0], err)
	}
	addressSpaceMB, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("cage shim: bad address-space-mb %q: %w", args[1], err)
	}
	interpreter := args[2]
	scriptPath := args[3]

	status := statusOK
	if cpuSeconds > 0 {
		cpuLimit := uint64(cpuSeconds) // floor, per spec.md §4.3 and §9
		rlimit := syscall.Rlimit{Cur: cpuLimit, Max: cpuLimit}
		if err := syscall.Setrlimit(syscall.RLIMIT_CPU, &rlimit); err != nil {
			status = statusDegrade
		}
	}
	if addressSpaceMB > 0 {
		memBytes := uint64(addressSpaceMB) * 1024 * 1024
		rlimit := syscall.Rlimit{Cur: memBytes, Max: memBytes}
		if err := syscall.Setrlimit(syscall.RLIMIT_AS, &rlimit); err != nil {
			status = statusDegrade
		}
	}

	statusFile := os.NewFile(3, "cage-status")
	if statusFile != nil {
		_, _ = statusFile.Write([]byte{status})
		_ = statusFile.Close()
	}

	argv := []string{interpreter, scriptPath}
	return syscall.Exec(interpreter, argv, os.Environ())
}
