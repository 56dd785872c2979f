package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SignalEngine/internal/di"
	"SignalEngine/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, Kafka consumers and notification workers",
	Long: `Run the engine until SIGINT or SIGTERM. Kafka, Redis and ClickHouse are
used only when enabled in the config file or through the environment:

  SIGNALENGINE_ENV, LOG_LEVEL, HTTP_PORT, KAFKA_BROKERS, REDIS_ADDR, CLICKHOUSE_HOST`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
