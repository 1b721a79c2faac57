package main

import (
	"fmt"

	"github.com/hoaworks/metergate/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.

Checks syntax, required fields and quota override entries. Exits
non-zero if the configuration would be rejected at startup.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("Configuration %s is valid\n", cfgFile)
	fmt.Printf("  server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  database: %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
	fmt.Printf("  billing:  %s\n", cfg.Billing.Mode)
	if len(cfg.Quotas) > 0 {
		fmt.Printf("  quota overrides: %d\n", len(cfg.Quotas))
	}
	return nil
}
