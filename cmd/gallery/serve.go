package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/database"
	"gallery/internal/handlers"
	"gallery/internal/log"
	"gallery/internal/metrics"
	"gallery/internal/queue"
	"gallery/internal/repository"
	"gallery/internal/server"
	"gallery/internal/service"
	"gallery/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg *config.AppConfig) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and serve the client bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, cfg *config.AppConfig, migrate bool) error {
	logger := log.New(cfg.Environment, cfg.Logging.Level)

	if migrate {
		version, err := database.Migrate(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		logger.Info().Uint("version", version).Msg("database migrated")
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		return err
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	checks := map[string]handlers.Pinger{
		"database": dbPool,
		"storage":  objectStore,
	}

	var publisher *queue.Publisher
	if cfg.Reconcile.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer closeRedis(logger, redisClient)

		publisher = queue.NewPublisher(redisClient, cfg.Reconcile.Stream)
		checks["queue"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(registry)

	deps := service.Deps{
		Blobs:      objectStore,
		Records:    repository.NewImageRepository(dbPool),
		Compensate: cfg.Reconcile.Enabled,
		Policy:     service.NewUploadPolicy(cfg.Upload),
		Log:        logger,
		Metrics:    m,
	}
	if publisher != nil {
		deps.Reconciler = publisher
	}
	gallery := service.NewGalleryService(deps)

	handlerSet := handlers.NewHandlerSet(logger, cfg, gallery, checks)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, m, registry)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server exited cleanly")
	return nil
}

func closeRedis(logger zerolog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}
}
