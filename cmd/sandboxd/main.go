// Package main is the entry point for sandboxd, the CLI that realizes
// the sandboxed-evaluation service's two operations (check_syntax,
// evaluate) over flags/stdin/stdout. See SPEC_FULL.md §6.
//
// File index:
//   - main.go        - entry point, rootCmd, global flags, zap wiring
//   - cmd_check.go   - `sandboxd check`
//   - cmd_eval.go    - `sandboxd eval`
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nextlevelbuilder/sandboxd/internal/cage"
	"github.com/nextlevelbuilder/sandboxd/internal/config"
	"github.com/nextlevelbuilder/sandboxd/internal/launcher"
	"github.com/nextlevelbuilder/sandboxd/internal/logging"
)

var (
	verbose    bool
	configPath string

	logger    *zap.Logger
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sandboxd",
	Short: "Sandboxed execution service for untrusted source snippets",
	Long: `sandboxd statically analyzes a candidate source snippet and, if it
passes syntax and security checks, executes it in a resource-capped
subordinate interpreter process, returning captured stdout, stderr, and
an exit status.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logging.Init(logger)

		path := configPath
		if path == "" {
			path = "sandboxd.yaml"
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a sandboxd config YAML file")

	rootCmd.AddCommand(checkCmd, evalCmd)
}

// newLauncher builds a launcher.Launcher honoring any interpreter/
// temp-dir override from appConfig. appConfig is always non-nil once
// PersistentPreRunE has run.
func newLauncher() *launcher.Launcher {
	l := launcher.New()
	if appConfig != nil {
		l.Interpreter = appConfig.Interpreter
		l.TempDir = appConfig.TempDir
	}
	return l
}

func main() {
	// The Unix resource cage re-execs this same binary with a hidden
	// sentinel argv to apply rlimits on itself before replacing its own
	// image with the guest interpreter. This must be intercepted before
	// Cobra (or any other initialization) runs — Cobra flag parsing,
	// logger setup, and config loading all happen too late and would
	// leave the wrong things inherited across the exec.
	if len(os.Args) > 1 && os.Args[1] == cage.ShimArg {
		if err := cage.RunShim(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		// RunShim only returns on failure; syscall.Exec never returns on
		// success.
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
