package analyzer

// DangerousNames is the closed set of built-in identifiers the security
// scan rejects when called as a bare name. See spec.md §4.1.
var DangerousNames = map[string]bool{
	"open":        true,
	"__import__":  true,
	"eval":        true,
	"exec":        true,
	"compile":     true,
	"getattr":     true,
	"setattr":     true,
	"globals":     true,
	"locals":      true,
	"input":       true,
	"help":        true,
	"dir":         true,
	"vars":        true,
	"breakpoint":  true,
	"memoryview":  true,
}

// DangerousModules is the closed set of top-level package names the
// security scan rejects on import. See spec.md §4.1.
var DangerousModules = map[string]bool{
	"os":         true,
	"sys":        true,
	"subprocess": true,
	"shutil":     true,
	"socket":     true,
	"requests":   true,
	"urllib":     true,
	"pathlib":    true,
	"inspect":    true,
	"types":      true,
	"ctypes":     true,
	"pickle":     true,
	"marshal":    true,
	"builtins":   true,
	"platform":   true,
	"resource":   true,
	"signal":     true,
}
