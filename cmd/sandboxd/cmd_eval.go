package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/sandboxd/internal/logging"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

var (
	evalFile           string
	wallTimeoutSeconds float64
	cpuSeconds         float64
	addressSpaceMB     int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a source snippet in the sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readSource(evalFile)
		if err != nil {
			return err
		}

		applyConfigDefaults(cmd)

		limits := sandbox.Limits{
			WallTimeoutSeconds: wallTimeoutSeconds,
			CPUSeconds:         cpuSeconds,
			AddressSpaceMB:     addressSpaceMB,
		}

		requestID := uuid.NewString()
		logging.LauncherDebug("eval request %s starting", requestID)

		result, err := newLauncher().Evaluate(context.Background(), code, limits)
		if err != nil {
			return fmt.Errorf("eval: %w", err)
		}

		reply := evalReply(result)
		if err := json.NewEncoder(os.Stdout).Encode(reply); err != nil {
			return fmt.Errorf("eval: encode reply: %w", err)
		}
		os.Exit(result.ExitCode)
		return nil
	},
}

func init() {
	defaults := sandbox.DefaultLimits()
	evalCmd.Flags().StringVar(&evalFile, "file", "", "Read source from this file instead of stdin")
	evalCmd.Flags().Float64Var(&wallTimeoutSeconds, "wall-timeout", defaults.WallTimeoutSeconds, "Wall-clock timeout in seconds")
	evalCmd.Flags().Float64Var(&cpuSeconds, "cpu-seconds", defaults.CPUSeconds, "CPU time limit in seconds (0 disables)")
	evalCmd.Flags().IntVar(&addressSpaceMB, "address-space-mb", defaults.AddressSpaceMB, "Address space limit in MB (0 disables)")
}

// applyConfigDefaults lets appConfig.DefaultLimits win over this
// command's baked-in flag defaults for any flag the caller did not set
// explicitly; an explicit --wall-timeout/--cpu-seconds/--address-space-mb
// always wins over config.
func applyConfigDefaults(cmd *cobra.Command) {
	if appConfig == nil {
		return
	}
	d := appConfig.DefaultLimits
	if !cmd.Flags().Changed("wall-timeout") && d.WallTimeoutSeconds > 0 {
		wallTimeoutSeconds = d.WallTimeoutSeconds
	}
	if !cmd.Flags().Changed("cpu-seconds") {
		cpuSeconds = d.CPUSeconds
	}
	if !cmd.Flags().Changed("address-space-mb") {
		addressSpaceMB = d.AddressSpaceMB
	}
}

// evalReply renders an ExecutionResult into spec.md §6's three reply
// shapes, keyed off Phase.
func evalReply(r *sandbox.ExecutionResult) map[string]interface{} {
	switch r.Phase {
	case sandbox.PhaseSyntaxCheck:
		reply := map[string]interface{}{
			"valid": false,
			"phase": string(sandbox.PhaseSyntaxCheck),
		}
		if r.SyntaxReport != nil {
			sr := syntaxReply(*r.SyntaxReport)
			reply["error"] = sr.Error
			reply["line"] = sr.Line
			reply["offset"] = sr.Offset
			reply["context"] = sr.Context
		}
		return reply

	case sandbox.PhaseSecurityCheck:
		return map[string]interface{}{
			"valid":            false,
			"phase":            string(sandbox.PhaseSecurityCheck),
			"violations":       r.Violations,
			"platform_warning": r.PlatformNote,
		}

	default:
		return map[string]interface{}{
			"stdout":           r.Stdout,
			"stderr":           r.Stderr,
			"exit_code":        r.ExitCode,
			"phase":            string(sandbox.PhaseExecution),
			"platform_warning": r.PlatformNote,
		}
	}
}
