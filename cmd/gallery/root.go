package main

import (
	"github.com/spf13/cobra"

	"gallery/internal/config"
)

func newRootCmd(cfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gallery",
		Short:         "Image upload and gallery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(cfg),
		newWorkerCmd(cfg),
		newMigrateCmd(cfg),
		newSweepCmd(cfg),
	)

	return cmd
}
