// Package sandbox defines the shared data model of the snippet-execution
// pipeline: the request (Limits), the three possible phases an evaluation
// can reach, and the records each phase produces.
package sandbox

// Phase indicates how far an evaluation advanced before producing a result.
type Phase string

const (
	PhaseSyntaxCheck   Phase = "syntax_check"
	PhaseSecurityCheck Phase = "security_check"
	PhaseExecution     Phase = "execution"
)

// Limits bounds one evaluation. A zero value for CPUSeconds or
// AddressSpaceMB means "do not enforce that bound". WallTimeoutSeconds must be
// strictly positive; the launcher refuses a non-positive value.
type Limits struct {
	WallTimeoutSeconds float64
	CPUSeconds         float64
	AddressSpaceMB     int
}

// DefaultLimits mirrors spec.md §6's stated defaults.
func DefaultLimits() Limits {
	return Limits{
		WallTimeoutSeconds: 15.0,
		CPUSeconds:         10.0,
		AddressSpaceMB:     100,
	}
}

// SyntaxReport is the outcome of parsing a candidate source string.
type SyntaxReport struct {
	Valid       bool
	Message     string // only set when !Valid
	Line        int    // 1-indexed; 0 if unknown
	Column      int    // 1-indexed; 0 if unknown
	ContextLine string // offending line, whitespace-trimmed; "" if unrecoverable
}

// Violation is one disallowed call or import found by the security scan,
// rendered as a human-readable string in source order.
type Violation = string

// ViolationList is the ordered sequence the security scan returns.
// Duplicates are preserved; order matches source order of appearance.
type ViolationList = []Violation

// ChildRecord is the JSON object the inner runtime template writes to its
// own stdout — the only legitimate bytes the child may emit there.
type ChildRecord struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ExecutionResult is the reply of one evaluate() call.
type ExecutionResult struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	Phase         Phase
	PlatformNote  string
	SyntaxReport  *SyntaxReport // set when Phase == PhaseSyntaxCheck
	Violations    []Violation   // set when Phase == PhaseSecurityCheck
}
