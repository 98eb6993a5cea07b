package cli

import (
	"github.com/spf13/cobra"

	"stepwise/internal/catalog"
)

func newCheckCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check <catalog>",
		Short: "Validate a catalog and list its steps",
		Long: `Load a catalog file, validate every step definition, and list the steps
with their time budgets and input kinds. Exits non-zero if the catalog is
invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			app.Printer.Catalog(cat)
			return nil
		},
	}
}
