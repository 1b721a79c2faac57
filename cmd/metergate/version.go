package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Overridden through -ldflags at release build time; "dev" marks a
// local build.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("metergate %s (commit %s, built %s)\n", version, commit, buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
