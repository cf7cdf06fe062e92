package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(&cfg, logger)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting projectchat server")
		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("server exited with error: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", "", "HTTP listen address")
	flags.Duration("read-header-timeout", 0, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("database-path", "", "SQLite database file")
	flags.Bool("allow-query-token", false, "accept ?access_token= on the WebSocket handshake")
	flags.Int("rate-limit-per-minute", 0, "inbound frames allowed per connection per minute")
}
