package main

import (
	"fmt"

	"github.com/aretw0/actdata/internal/cli"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [document...]",
	Short: "Upgrade stored documents to the current type layout",
	Long: `Runs the registered conversion routines on stored documents (all of them when none is
named). Nothing is stored unless --write is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		write, _ := cmd.Flags().GetBool("write")
		diff, _ := cmd.Flags().GetBool("diff")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return runConvert(cmd, app, args, write, diff)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().BoolP("write", "w", false, "Store the converted documents")
	convertCmd.Flags().BoolP("diff", "d", false, "Print the parameter changes of each conversion")
}

func runConvert(cmd *cobra.Command, app *cli.App, ids []string, write, diff bool) error {
	out := cli.NewPrinter(cmd.OutOrStdout())
	ctx := cmd.Context()
	if len(ids) == 0 {
		var err error
		if ids, err = app.Sessions.List(ctx); err != nil {
			return err
		}
	}

	failed := 0
	for _, id := range ids {
		res, err := app.Engine.Convert(ctx, id, write)
		if err != nil {
			if cli.IsInterrupted(err) {
				return err
			}
			failed++
			out.Failure("%s: %v", id, err)
			continue
		}
		if !res.Converted() {
			out.System("%s: up to date (version %d)", id, res.To)
			continue
		}
		for _, step := range res.Steps {
			out.System("%s: %d -> %d %s", id, step.From, step.To, step.Description)
		}
		if diff {
			out.Diff(res.Diff)
		}
		if res.Written {
			out.Success("%s: stored at version %d", id, res.To)
		} else {
			out.Success("%s: converts to version %d (not stored)", id, res.To)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to convert", failed, len(ids))
	}
	return nil
}
