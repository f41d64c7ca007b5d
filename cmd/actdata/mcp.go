package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/actdata/internal/cli"
	"github.com/aretw0/actdata/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the stored documents as MCP tools, so agents can inspect Nodes,
write Parameters and read dependency graphs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		if transport != "stdio" && transport != "sse" {
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}

		// Logs go to stderr; stdout carries JSON-RPC under stdio.
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Sessions, mcp.WithLogger(app.Logger))

		if transport == "stdio" {
			app.Logger.Info("starting actdata MCP server (stdio)")
			return srv.ServeStdio()
		}

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		app.Logger.Info("starting actdata MCP server (SSE)", "port", port)
		if err := srv.ServeSSE(sc, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		app.Logger.Info("MCP server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
