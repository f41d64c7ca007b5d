package main

import (
	"fmt"

	"github.com/aretw0/actdata/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [document...]",
	Short: "Check the type table and stored documents for consistency",
	Long: `Without arguments, checks the configured type table and every stored document.
Documents are converted to the current version, hydrated, and checked for ill-formed
Parameters, failing type validators and dependency cycles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return runValidate(cmd, app, args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, app *cli.App, ids []string) error {
	out := cli.NewPrinter(cmd.OutOrStdout())
	ctx := cmd.Context()

	if app.Table != nil {
		out.Success("types: %d types at version %d", len(app.Table.Types), app.Table.Version)
	}

	if len(ids) == 0 {
		var err error
		if ids, err = app.Sessions.List(ctx); err != nil {
			return err
		}
	}

	failed := 0
	for _, id := range ids {
		doc, err := app.Sessions.Open(ctx, id)
		if err == nil {
			err = doc.Validate()
		}
		if err != nil {
			failed++
			out.Failure("%s: %v", id, err)
			continue
		}
		out.Success("%s: valid", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents invalid", failed, len(ids))
	}
	return nil
}
