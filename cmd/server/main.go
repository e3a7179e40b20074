package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pricescout/backend/config"
	httpDelivery "github.com/pricescout/backend/internal/delivery/http"
	"github.com/pricescout/backend/internal/infrastructure/logger"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pricescout",
		Short:         "PriceScout price acquisition service",
		Long:          `Look up current product prices across search providers with fallback, caching and rate limiting.`,
		Version:       httpDelivery.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newSearchCmd(),
		newNormalizeCmd(),
		newParsePriceCmd(),
	)
	return cmd
}

// loadConfig reads the configuration and initializes the global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init("pricescout", cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
