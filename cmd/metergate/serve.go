package main

import (
	"fmt"
	"os"

	"github.com/hoaworks/metergate/bootstrap"
	"github.com/hoaworks/metergate/config"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering service",
	Long: `Start the metergate HTTP service.

The server will:
  - Load configuration from metergate.yaml (or --config)
  - Connect to the database and run pending migrations
  - Serve the gate, credit and webhook endpoints

Environment variables:
  METERGATE_PORT          - Server port (default: 8080)
  METERGATE_DSN           - Database path (default: metergate.db)
  METERGATE_LOG_LEVEL     - Log level: debug, info, warn, error
  METERGATE_RENDERER_URL  - Generation backend URL

Examples:
  metergate serve
  metergate serve --config /etc/metergate/config.yaml
  metergate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg := config.Default()
		if hasConfigFile {
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
		}
		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
