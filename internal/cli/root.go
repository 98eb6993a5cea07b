// Package cli wires the session core into the stepwise command line.
//
// Commands are built around an [App] that carries every dependency, so tests
// can execute the root command in-process with a buffered printer, a scripted
// console, and a fixed clock.
//
// Commands:
//   - run:    drive a session of a catalog from an interactive console
//   - check:  validate a catalog and list its steps
//   - report: print the summary of a saved session snapshot
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stepwise/internal/config"
	"stepwise/internal/output"
)

// App holds the dependencies shared by all commands.
type App struct {
	// Config is the loaded configuration.
	Config *config.Config

	// Printer renders session output.
	Printer *output.Printer

	// In is the console input of the run command.
	In io.Reader

	// Logger overrides the logger built from Config.Log when set.
	Logger *slog.Logger

	// Now overrides time.Now when set.
	Now func() time.Time
}

// NewApp creates an App for cfg reading commands from stdin and printing to
// stdout.
func NewApp(cfg *config.Config) *App {
	return &App{
		Config:  cfg,
		Printer: output.NewPrinter(),
		In:      os.Stdin,
	}
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stepwise",
		Short: "Guided, timed, step-by-step procedure runner",
		Long: `stepwise walks an operator through an ordered catalog of steps.

Each step has a time budget, an optional measurement or pass/fail verdict,
and a recorded result. Progress is written continuously to a JSON report.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(
		newRunCommand(app),
		newCheckCommand(app),
		newReportCommand(app),
	)

	return cmd
}

// ExecuteResult is the outcome of running the command tree.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig executes the command tree with os.Args against cfg and
// converts the result to an exit code without exiting.
func RunWithConfig(cfg *config.Config) ExecuteResult {
	rootCmd := NewRootCommand(NewApp(cfg))
	if err := rootCmd.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{}
}

// Execute loads configuration, runs the command tree, and exits the process
// with the resulting code.
func Execute() {
	_ = godotenv.Load()

	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	result := RunWithConfig(cfg)
	os.Exit(result.ExitCode)
}
