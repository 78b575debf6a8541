// Package cage implements ResourceCage: the platform-abstracted facility
// that applies CPU-time and address-space caps to the guest interpreter
// process. See spec.md §4.3 "Platform-specific limit application" and
// §9's Design Notes, which call for exactly this trait/interface split
// selected by compile-time platform feature.
package cage

import (
	"context"
	"os/exec"

	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// ShimArg is the hidden argv[1] sentinel a Unix cage uses to re-exec its
// own binary as a setrlimit-then-exec shim. cmd/sandboxd must check for
// this before doing anything else in main(), including before Cobra
// parses flags — see RunShim.
const ShimArg = "__cage_exec"

// Cage applies resource limits to a not-yet-started command that will
// run the guest interpreter on scriptPath, and reports whatever
// isolation it actually achieved.
type Cage interface {
	// Command builds the *exec.Cmd to run, configured so that, once
	// started (and Attach is called), limits are enforced on it. ctx
	// bounds the command's lifetime; the caller still owns the wall-clock
	// deadline separately (§5: the deadline wait is the launcher's job,
	// not the cage's).
	Command(ctx context.Context, selfPath, interpreter, scriptPath string, limits sandbox.Limits, env []string) (*exec.Cmd, error)

	// Attach performs any setup that can only happen after Start (e.g.
	// assigning a suspended Windows process to a Job Object, then
	// resuming it). A no-op where Command fully configures enforcement.
	Attach(cmd *exec.Cmd) error

	// Release frees any OS handle acquired by Command/Attach. Idempotent;
	// always called once per evaluation, even on the error/timeout paths.
	Release()

	// PlatformNote is non-empty when isolation was reduced because a
	// platform facility was unavailable (spec.md invariant I4). Must be
	// read only after Command and Attach have run; both the Unix and the
	// Windows cage set it in Attach.
	PlatformNote() string
}
