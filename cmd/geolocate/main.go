// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the geolocate CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/secrets"
	"github.com/pdiddy/geolocate/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Secret file names under .secrets/.
const (
	secretGoogle    = "google-maps-api-key"
	secretAnthropic = "anthropic-api-key"
	secretRedis     = "redis-password"
	secretPostgres  = "postgres-dsn"
)

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Set

	// appConfig is the validated configuration for this invocation.
	appConfig types.Config

	log *slog.Logger
)

// rootCmd is the base command for the geolocate CLI.
var rootCmd = &cobra.Command{
	Use:   "geolocate",
	Short: "Find where a photo of a building was taken",
	Long: `geolocate locates the building in a photo by searching street-level imagery
around a starting point. Candidates come from place search and a coordinate
grid, are ranked by visual similarity to the photo, and the leaders are checked
by a vision model. The search widens through the configured radii until one
candidate is confident enough, or reports that none was.

API keys are read from .secrets/ (google-maps-api-key, anthropic-api-key) or
from GOOGLE_MAPS_API_KEY and ANTHROPIC_API_KEY.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg
		log = logger.Setup(cfg.Log, os.Stderr)
		if keys := s.Keys(); len(keys) > 0 {
			log.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./geolocate.yaml or ~/.config/geolocate/geolocate.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("geolocate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "geolocate"))
		}
	}

	configureEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
