package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/bootstrap"
	"github.com/artpar/dataforge/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the dataforge HTTP server.

The server will:
  - Load configuration from dataforge.yaml (or --config)
  - Or load configuration from DATAFORGE_* environment variables
  - Serve the meta file under /meta, reloading it when meta.watch is set
  - Serve the data directory under /data
  - Store meta snapshots under /snapshots

Environment variables:
  DATAFORGE_META_FILE       - Meta file to serve
  DATAFORGE_DATA_DIR        - Directory served as a data tree
  DATAFORGE_DATABASE_DSN    - Snapshot database (default: dataforge.db)
  DATAFORGE_SERVER_PORT     - Server port (default: 8080)
  DATAFORGE_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  dataforge serve
  dataforge serve --config /etc/dataforge/config.yaml
  DATAFORGE_META_FILE=run.yaml dataforge serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Run blocks until shutdown
	return app.Run(cmd.Context())
}
