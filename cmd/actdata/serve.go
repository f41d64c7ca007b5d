package main

import (
	"context"
	"errors"
	"net/http"

	httpAdapter "github.com/aretw0/actdata/internal/adapters/http"
	"github.com/aretw0/actdata/internal/cli"
	"github.com/aretw0/actdata/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the stored documents over a JSON API with Server-Sent Events for commits and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		cfg := app.Config.HTTP
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}

		handler := httpAdapter.NewHandler(app.Sessions,
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithMetrics(app.Metrics),
		)
		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
		}

		out := cli.NewPrinter(cmd.OutOrStdout())
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.OutOrStdout())
		}
		go func() {
			out.System("Starting actdata server on %s (store: %s)", srv.Addr, app.Config.Store.Type)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-sc.Done():
			out.System("Start shutdown... Signal: %v", sc.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				out.Failure("Graceful shutdown did not complete in %v: %v", cfg.ShutdownTimeout, err)
				return srv.Close()
			}
			out.Success("actdata server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address overriding http.addr")
	serveCmd.Flags().BoolP("quiet", "q", false, "Skip the startup banner")
}
