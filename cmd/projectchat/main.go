package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/config"
	logpkg "github.com/vovakirdan/projectchat-server/internal/log"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "projectchat",
	Short:         "Real-time group and direct messaging for project workspaces",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default ./config.yaml)")
}

// loadConfig resolves configuration for cmd and builds the logger it asks for.
func loadConfig(cmd *cobra.Command) (config.Config, *zerolog.Logger, error) {
	boot := logpkg.New("info")
	cfg, path, err := config.Load(boot, configFile, cmd.Flags())
	if err != nil {
		return cfg, boot, err
	}

	logger := logpkg.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}
