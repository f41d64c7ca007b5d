package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/actdata/internal/cli"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <document> [node...]",
	Short: "Print the Parameter values of a stored document",
	Long: `Prints every Node of a stored document (or only the named ones, e.g. Box:1) with its
Parameter values. Stale Parameters are marked with '*'. --json prints the converted snapshot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		doc, err := app.Sessions.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc.Snapshot())
		}

		var nodes []*document.Node
		if len(args) > 1 {
			for _, s := range args[1:] {
				id, err := domain.ParseNodeID(s)
				if err != nil {
					return err
				}
				node, err := doc.Node(id)
				if err != nil {
					return err
				}
				nodes = append(nodes, node)
			}
		} else {
			for _, part := range doc.Partitions() {
				nodes = append(nodes, part.Nodes()...)
			}
		}

		out := cli.NewPrinter(cmd.OutOrStdout())
		out.System("%s: version %d, %d node(s)", doc.ID(), doc.Version(), len(nodes))
		for _, node := range nodes {
			printNode(cmd.OutOrStdout(), node)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
}

func printNode(w io.Writer, node *document.Node) {
	title := node.ID().String()
	if name := node.Name(); name != "" {
		title += " (" + name + ")"
	}
	fmt.Fprintln(w, title)
	for _, p := range node.Parameters() {
		mark := " "
		if p.IsStale() {
			mark = "*"
		}
		value := "<unset>"
		if v, err := p.GetValue(); err == nil {
			value = v.String()
		}
		line := fmt.Sprintf(" %s #%-3d %-16s %-14s %s", mark, p.GID().Param, p.Name(), p.Kind(), value)
		if eval, err := p.Evaluation(); err == nil && eval != nil {
			line += "  = " + eval.Expression
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
