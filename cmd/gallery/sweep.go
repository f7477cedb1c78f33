package main

import (
	"github.com/spf13/cobra"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/queue"
)

func newSweepCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Ask the worker to remove orphaned objects now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cache.NewRedisClient(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			return queue.NewPublisher(client, cfg.Reconcile.Stream).Enqueue(cmd.Context(), queue.Task{Type: queue.TaskSweep})
		},
	}
}
