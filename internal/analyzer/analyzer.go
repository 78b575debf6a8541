// Package analyzer implements the static analysis stage of the sandbox
// pipeline: syntax validation and the security scan for disallowed calls
// and imports, both operating on a tree-sitter parse of the candidate
// source. Neither operation has side effects or touches the filesystem.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/nextlevelbuilder/sandboxd/internal/logging"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// Analyzer wraps a tree-sitter parser configured for the guest grammar.
// It is not safe for concurrent use by multiple goroutines — callers
// needing concurrency should construct one Analyzer per goroutine (or
// per evaluation), which is cheap: New only allocates a parser.
type Analyzer struct {
	parser *sitter.Parser
}

// New returns an Analyzer ready to check and scan source.
func New() *Analyzer {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Analyzer{parser: p}
}

// CheckSyntax parses code as a module of the guest grammar and reports
// the first syntax error found, if any. It never panics.
func (a *Analyzer) CheckSyntax(code string) (report sandbox.SyntaxReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Internal syntax checker error: %v", r)
		}
	}()

	tree, parseErr := a.parser.ParseCtx(context.Background(), nil, []byte(code))
	if parseErr != nil {
		return sandbox.SyntaxReport{}, fmt.Errorf("Internal syntax checker error: %w", parseErr)
	}
	defer tree.Close()

	errNode := firstErrorNode(tree.RootNode())
	if errNode == nil {
		return sandbox.SyntaxReport{Valid: true}, nil
	}

	lines := strings.Split(code, "\n")
	point := errNode.StartPoint()
	line := int(point.Row) + 1
	column := int(point.Column) + 1

	contextLine := ""
	if line-1 >= 0 && line-1 < len(lines) {
		contextLine = strings.TrimSpace(lines[line-1])
	}

	logging.AnalyzerDebug("syntax error at %d:%d", line, column)
	return sandbox.SyntaxReport{
		Valid:       false,
		Message:     "invalid syntax",
		Line:        line,
		Column:      column,
		ContextLine: contextLine,
	}, nil
}

// firstErrorNode returns the first ERROR or MISSING node in the tree, in
// source (pre-)order, or nil if the parse is clean.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsMissing() {
		return n
	}
	if n.Type() == "ERROR" {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// Scan walks the AST of already-parsed code and returns every disallowed
// call or import, in source order, duplicates included. It assumes code
// is parseable; if called on unparseable code it reports a single
// sentinel violation rather than inspecting a broken tree.
func (a *Analyzer) Scan(code string) (sandbox.ViolationList, error) {
	tree, err := a.parser.ParseCtx(context.Background(), nil, []byte(code))
	if err != nil {
		return nil, fmt.Errorf("Internal syntax checker error: %w", err)
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return sandbox.ViolationList{"Syntax error (should have been caught earlier)"}, nil
	}

	src := []byte(code)
	var violations sandbox.ViolationList
	walk(tree.RootNode(), src, &violations)
	return violations, nil
}

func walk(n *sitter.Node, src []byte, violations *sandbox.ViolationList) {
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			name := dottedModuleName(child, src)
			if name == "" {
				continue
			}
			if top := topPackage(name); DangerousModules[top] {
				*violations = append(*violations, "Import of dangerous module: "+top)
			}
		}

	case "import_from_statement":
		moduleNode := n.ChildByFieldName("module_name")
		if moduleNode != nil {
			name := string(src[moduleNode.StartByte():moduleNode.EndByte()])
			if top := topPackage(name); DangerousModules[top] {
				*violations = append(*violations, "Import from dangerous module: "+top)
			}
		}

	case "call":
		fn := n.ChildByFieldName("function")
		if fn != nil && fn.Type() == "identifier" {
			name := string(src[fn.StartByte():fn.EndByte()])
			if DangerousNames[name] {
				*violations = append(*violations, "Call to dangerous function: "+name)
			}
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), src, violations)
	}
}

// dottedModuleName extracts the imported dotted name from a child of an
// import_statement, which is either a bare dotted_name or an
// aliased_import ("x.y as z") wrapping one.
func dottedModuleName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "dotted_name":
		return string(src[n.StartByte():n.EndByte()])
	case "aliased_import":
		name := n.ChildByFieldName("name")
		if name == nil {
			return ""
		}
		return string(src[name.StartByte():name.EndByte()])
	default:
		return ""
	}
}

// topPackage returns the substring of a dotted name before its first dot.
func topPackage(dotted string) string {
	if idx := strings.IndexByte(dotted, '.'); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}
