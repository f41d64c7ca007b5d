package main

import (
	"fmt"

	"github.com/aretw0/actdata/internal/presentation/graph"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <document>",
	Short: "Export the dependency graph visualization",
	Long: `Outputs a Mermaid flowchart of the Tree Functions of a stored document and the
Parameters they share. With --run every function is re-executed in a transaction that is
never saved, and the nodes are coloured by outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, _ := cmd.Flags().GetBool("run")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		doc, err := app.Sessions.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		g, err := doc.Graph()
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if run {
			if overlay, err = dryRun(cmd, doc); err != nil {
				return err
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("run", false, "Execute every function and colour the graph by outcome")
}

// dryRun touches every function host, commits to obtain a report and discards the result.
func dryRun(cmd *cobra.Command, doc *document.Document) (*graph.GraphOverlay, error) {
	if err := doc.Open("graph --run"); err != nil {
		return nil, err
	}
	for _, f := range doc.Functions() {
		p, err := doc.Parameter(f.Host)
		if err != nil {
			_ = doc.Abort()
			return nil, err
		}
		if err := p.Touch(); err != nil {
			_ = doc.Abort()
			return nil, err
		}
	}
	report, err := doc.Commit(cmd.Context())
	if report == nil {
		return nil, err
	}
	return graph.OverlayFromReport(report), nil
}
