// Package runtimetpl renders the Inner Runtime Template: the fixed
// program the guest interpreter actually executes as a subordinate
// process. It embeds the caller's source as a string literal value,
// never as spliced syntax, and evaluates it inside an attenuated
// environment before emitting a single JSON envelope to its own
// stdout. See spec.md §4.2.
//
// The body of the template is the Go re-expression of
// _examples/original_source/python_code_sandbox/safe_executor.py's
// _generate_sandbox_script: same environment-attenuation steps, same
// closed sets (adjusted per the rendering contract), same ordering.
package runtimetpl

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/nextlevelbuilder/sandboxd/internal/analyzer"
)

// templateDangerousNames is the analyzer's DangerousNames set minus
// open/input, which the template shadows with direct bindings instead
// of relying on their absence from SAFE_BUILTINS.
func templateDangerousNames() []string {
	var out []string
	for name := range analyzer.DangerousNames {
		if name == "open" || name == "input" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// templateDangerousModules is the analyzer's DangerousModules set plus
// getpass and os, minus sys and platform — sys is required by the
// template's own preamble (see spec.md §9's second Open Question) and
// platform is never referenced by the rendered script at all.
func templateDangerousModules() []string {
	var out []string
	for name := range analyzer.DangerousModules {
		if name == "sys" || name == "platform" {
			continue
		}
		out = append(out, name)
	}
	out = append(out, "getpass", "os")
	return out
}

// pyStringLiteral renders s as a double-quoted Python string literal,
// using Go's %q escaping (a superset-compatible escaping scheme for the
// ASCII control characters and quote/backslash that matter here) so the
// user's source is embedded as data, never as code tokens.
func pyStringLiteral(s string) string {
	return fmt.Sprintf("%q", s)
}

// pyListLiteral renders a Go string slice as a Python list-of-strings
// literal.
func pyListLiteral(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pyStringLiteral(n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var tpl = template.Must(template.New("sandbox").Parse(sandboxScriptSource))

// data is the template's two holes plus the embedded user source, all
// pre-rendered into Python literal text by Render so the template itself
// performs pure textual substitution.
type data struct {
	DangerousNames   string
	DangerousModules string
	UserCode         string
}

// Render produces the full Inner Runtime Template source for one
// evaluation of code, ready to be written to a temp file and handed to
// the guest interpreter.
func Render(code string) (string, error) {
	var b strings.Builder
	err := tpl.Execute(&b, data{
		DangerousNames:   pyListLiteral(templateDangerousNames()),
		DangerousModules: pyListLiteral(templateDangerousModules()),
		UserCode:         pyStringLiteral(code),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

const sandboxScriptSource = `import sys

# Neutralize tracing/debugging before anything else runs.
sys.settrace(None)
if hasattr(sys, 'gettrace') and sys.gettrace() is not None:
    sys.settrace(None)
for _mod in list(sys.modules):
    if _mod.startswith(('debugpy', 'pydevd', '_pydev')):
        del sys.modules[_mod]

import json
import io
import builtins

_DANGEROUS_NAMES = {{.DangerousNames}}
_DANGEROUS_MODULES = {{.DangerousModules}}

for _mod in _DANGEROUS_MODULES:
    if _mod in sys.modules:
        del sys.modules[_mod]

SAFE_BUILTINS = {
    name: getattr(builtins, name)
    for name in dir(builtins)
    if name not in _DANGEROUS_NAMES and not name.startswith('_')
}


def _restricted_import(name, globals=None, locals=None, fromlist=(), level=0):
    raise ImportError("All imports disabled in sandbox")


def _disabled_open(*args, **kwargs):
    raise OSError("open() disabled in sandbox")


_stdout_buffer = io.StringIO()
_stderr_buffer = io.StringIO()


def _safe_print(*args, **kwargs):
    kwargs['file'] = _stdout_buffer
    kwargs['flush'] = True
    print(*args, **kwargs)


safe_globals = {
    '__builtins__': SAFE_BUILTINS,
    '__import__': _restricted_import,
    'open': _disabled_open,
    'print': _safe_print,
}

_exit_code = 0
try:
    exec({{.UserCode}}, safe_globals)
except BaseException as _e:
    _stderr_buffer.write(f"{type(_e).__name__}: {_e}")
    _exit_code = 1
finally:
    _result = {
        "stdout": _stdout_buffer.getvalue(),
        "stderr": _stderr_buffer.getvalue(),
        "exit_code": _exit_code,
    }
    sys.stdout.write(json.dumps(_result))
    sys.stdout.flush()
`
