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
	apiKey     string
	serverURL  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "courier",
		Short:        "Event reporting client",
		Long:         "courier captures errors, logs, feature usage and sessions and delivers them to a collector",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (falls back to CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (overrides client.api_key)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "Collector URL (overrides client.server_url)")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(flushCmd())
	rootCmd.AddCommand(submitSyncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and the logger shared by every command.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog("courier")

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	var cfg *config.Config
	if configFile == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(configFile)
		if err != nil {
			earlyLog.Error("Failed to load config: %v", err)
			return nil, nil, err
		}
		cfg = loaded
	}

	if apiKey != "" {
		cfg.Client.APIKey = apiKey
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
		cfg.Client.ConfigServerURL = serverURL
		cfg.Client.HeartbeatServerURL = serverURL
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log.ForService("courier"), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
