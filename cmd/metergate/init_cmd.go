package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Initialize metergate with a starter configuration file.

Examples:
  metergate init
  metergate init --config /etc/metergate/metergate.yaml --renderer-url http://renderer:7000`,
	RunE: runInit,
}

var (
	initDatabase    string
	initRendererURL string
	initForce       bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDatabase, "database", "metergate.db", "database file path")
	initCmd.Flags().StringVar(&initRendererURL, "renderer-url", "http://localhost:7000", "generation backend URL")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", cfgFile)
	}

	content := generateConfig(initDatabase, initRendererURL)
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", cfgFile)
	fmt.Println("Next steps:")
	fmt.Println("  1. Review the quota overrides and credit grants")
	fmt.Println("  2. Set billing.mode to \"paddle\" and add the webhook secret to go live")
	fmt.Println("  3. Start the server: metergate serve")
	return nil
}

func generateConfig(database, rendererURL string) string {
	return fmt.Sprintf(`# metergate configuration
server:
  host: 0.0.0.0
  port: 8080

database:
  driver: sqlite
  dsn: %s

renderer:
  url: %s
  # api_key: ${METERGATE_RENDERER_KEY}
  timeout: 60s

billing:
  mode: none
  # mode: paddle
  # webhook_secret: ${PADDLE_WEBHOOK_SECRET}

# Monthly allowances layered on the built-in defaults.
# A limit of -1 means unlimited.
quotas:
  - tier: pro
    feature: violation_letters
    limit: 200
  - tier: pro
    feature: video_generations
    limit: 50

# Credits granted on subscription upgrade, per tier.
credit_grants:
  pro: 20
  agency: 100
  enterprise: 500

logging:
  level: info
  format: json

metrics:
  enabled: true
  path: /metrics
`, database, rendererURL)
}
