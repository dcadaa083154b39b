package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/logging"
)

var (
	configFile string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collector-mock",
		Short: "Local development collector",
		Long:  "collector-mock accepts events, user descriptions, heartbeats and settings requests and keeps them in memory",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Listen port (overrides collector.port)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog("collector-mock")

			cfg, err := loadConfig()
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}
			if port > 0 {
				cfg.Collector.Port = port
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Collector stopped with error", "error", err)
				return err
			}
			return nil
		},
	}
}

// loadConfig falls back to built-in defaults when no file is given.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}
