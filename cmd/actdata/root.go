package main

import (
	"fmt"
	"os"

	"github.com/aretw0/actdata/internal/cli"
	"github.com/aretw0/actdata/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "actdata",
	Short:         "actdata keeps parametric documents consistent",
	Long:          `actdata stores typed Node documents whose Parameters are linked by Tree Functions, and re-runs the affected functions on every commit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.NewPrinter(os.Stderr).Failure("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().String("types", "", "Type table overriding the configured one")
}

// openApp loads the configuration named by the flags and wires the application.
// Callers must Close the returned App.
func openApp(cmd *cobra.Command) (*cli.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if types, _ := cmd.Flags().GetString("types"); types != "" {
		cfg.Types = types
	}
	app, err := cli.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return app, nil
}
