package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metergate",
	Short: "Metered usage and credit accounting for billable generation actions",
	Long: `Metergate tracks billable actions (violation letters, walkthrough
videos) against plan quotas, deducts pay-per-use credits atomically, and
reconciles subscription changes from the billing provider.

Quick start:
  metergate serve     # Start the HTTP service

Management:
  metergate accounts  # Manage accounts
  metergate validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "metergate.yaml", "config file path")
}
