package main

import (
	"github.com/spf13/cobra"

	"gallery/internal/config"
	"gallery/internal/database"
	"gallery/internal/log"
)

func newMigrateCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(cfg.Environment, cfg.Logging.Level)

			version, err := database.Migrate(cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			logger.Info().Uint("version", version).Msg("database migrated")
			return nil
		},
	}
}
