package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/sandboxd/internal/launcher"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

var checkFile string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a source snippet for syntax errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readSource(checkFile)
		if err != nil {
			return err
		}

		report, err := newLauncher().CheckSyntax(code)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}

		return json.NewEncoder(os.Stdout).Encode(syntaxReply(report))
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkFile, "file", "", "Read source from this file instead of stdin")
}

// checkReply is the JSON shape of spec.md §6's check_syntax reply.
type checkReply struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Line    *int   `json:"line,omitempty"`
	Offset  *int   `json:"offset,omitempty"`
	Context string `json:"context,omitempty"`
}

func syntaxReply(r sandbox.SyntaxReport) checkReply {
	if r.Valid {
		return checkReply{Valid: true}
	}
	reply := checkReply{
		Valid:   false,
		Error:   r.Message,
		Context: r.ContextLine,
	}
	if r.Line > 0 {
		line := r.Line
		reply.Line = &line
	}
	if r.Column > 0 {
		col := r.Column
		reply.Offset = &col
	}
	return reply
}

// readSource reads source code from path, or stdin when path is empty.
func readSource(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
