package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stepwise/internal/export"
	"stepwise/internal/session"
	"stepwise/internal/snapshot"
)

func newReportCommand(app *App) *cobra.Command {
	var (
		strict bool
		csvOut string
	)

	cmd := &cobra.Command{
		Use:   "report <snapshot>",
		Short: "Print the summary of a saved session",
		Long: `Read a session report written by run and print its step table.
Reports ending in .csv are read as CSV tables, anything else as JSON.

With --csv the report is also converted to a CSV table at the given path.

With --strict the exit code reflects the session verdict the same way run
does: 2 if any step failed, 3 if any step has no result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readReport(args[0])
			if err != nil {
				return err
			}
			app.Printer.Summary(snap)

			if csvOut != "" {
				if err := export.WriteFile(csvOut, snap); err != nil {
					return err
				}
				app.Printer.Info("report written to %s", csvOut)
			}

			if !strict {
				return nil
			}
			err = verdict(snap)
			if _, ok := IsExitError(err); ok {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero unless every step passed")
	cmd.Flags().StringVar(&csvOut, "csv", "", "also write the report as a CSV table to this path")

	return cmd
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

// readReport loads a JSON snapshot or a CSV report, chosen by extension.
func readReport(path string) (session.Snapshot, error) {
	if !isCSV(path) {
		return snapshot.Read(path)
	}
	r, err := export.ReadFromFile(path)
	if err != nil {
		return session.Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// writeReport writes snap as JSON or CSV, chosen by extension.
func writeReport(path string, snap session.Snapshot) error {
	if isCSV(path) {
		return export.WriteFile(path, snap)
	}
	return snapshot.WriteTo(path, snap)
}
