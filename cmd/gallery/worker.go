package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/database"
	"gallery/internal/jobs"
	"gallery/internal/log"
	"gallery/internal/metrics"
	"gallery/internal/queue"
	"gallery/internal/repository"
	"gallery/internal/storage"
	"gallery/internal/tasks"
)

func newWorkerCmd(cfg *config.AppConfig) *cobra.Command {
	var consumer string
	var schedule bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process reconcile tasks and run periodic orphan sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if consumer != "" {
				cfg.Reconcile.Consumer = consumer
			}
			return runWorker(cmd.Context(), cfg, schedule, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name within the group (defaults to reconcile.consumer)")
	cmd.Flags().BoolVar(&schedule, "schedule", true, "enqueue sweeps on reconcile.sweepschedule")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.AppConfig, schedule bool, metricsAddr string) error {
	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		return err
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis(logger, redisClient)

	registry := prometheus.NewRegistry()
	processor := tasks.NewProcessor(
		objectStore,
		repository.NewImageRepository(dbPool),
		cfg.Reconcile.OrphanGrace,
		logger,
		metrics.MustNewMetrics(registry),
	)
	consumerLoop := queue.NewConsumer(
		redisClient,
		cfg.Reconcile.Stream,
		cfg.Reconcile.Group,
		cfg.Reconcile.Consumer,
		cfg.Reconcile.ClaimInterval,
		cfg.Reconcile.MaxDeliveries,
		logger,
		processor,
	)

	var scheduler *jobs.Scheduler
	if schedule {
		scheduler = jobs.NewScheduler(queue.NewPublisher(redisClient, cfg.Reconcile.Stream), cfg.Reconcile.SweepSchedule, logger)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumerLoop.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if metricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", metricsAddr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("worker stopped")
	return err
}
