package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.DatabasePath, err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema up to date")
		return st.Close()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("database-path", "", "SQLite database file")
}
