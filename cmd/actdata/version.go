package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/actdata"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of actdata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "actdata version %s\n", strings.TrimSpace(actdata.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
