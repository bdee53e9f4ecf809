package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sungwon/newsletter-dispatch/internal/api"
	"github.com/sungwon/newsletter-dispatch/internal/bootstrap"
	"github.com/sungwon/newsletter-dispatch/internal/config"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
	"github.com/sungwon/newsletter-dispatch/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := bootstrap.Logger(cfg)
	log.Info().Msg("starting delivery worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool.
	db, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Build the email transport. A failing health check is only a warning:
	// sends are retried with backoff anyway.
	sender, err := bootstrap.Provider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build email provider")
	}
	healthCtx, cancelHealth := context.WithTimeout(ctx, 10*time.Second)
	if err := sender.HealthCheck(healthCtx); err != nil {
		log.Warn().Err(err).Str("provider", sender.GetName()).Msg("provider health check failed")
	} else {
		log.Info().Str("provider", sender.GetName()).Msg("provider healthy")
	}
	cancelHealth()

	// Wake idle loops on publish when Redis is configured.
	wake := queue.NewWakeup()
	redisNotifier, closeRedis, err := bootstrap.Notifier(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRedis()
	if redisNotifier != nil {
		if err := redisNotifier.Listen(ctx, wake); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to publish notifications")
		}
	}

	queueCfg := bootstrap.QueueConfig(cfg)
	queueRepo := storage.NewQueueRepository()

	w := worker.NewWorker(
		db,
		queueRepo,
		storage.NewIssueRepository(),
		sender,
		queue.NewRetryStrategy(queueCfg.MaxRetries, queueCfg.RetryBase, queueCfg.RetryMax),
		wake,
		cfg.Provider.From,
		queueCfg,
		logger.WithComponent(log, "worker"),
	)

	pool := worker.NewPool(w, queueCfg.Concurrency, queueCfg.ShutdownTimeout, log)
	pool.Start(ctx)
	log.Info().
		Int("workers", queueCfg.Concurrency).
		Str("provider", sender.GetName()).
		Msg("delivery worker pool started")

	stats := worker.NewStatsRefresher(db.Pool, db.Pool, queueRepo, cfg.Worker.StatsInterval, logger.WithComponent(log, "stats"))
	go stats.Run(ctx)

	// Admin listener for health checks and metrics scraping.
	admin := chi.NewRouter()
	admin.Get("/healthz", api.HealthzHandler())
	admin.Get("/readyz", api.ReadyzHandler(db))
	admin.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{Addr: cfg.Worker.AdminAddr, Handler: admin, ReadHeaderTimeout: 5 * time.Second}
	if cfg.Worker.AdminAddr != "" {
		go func() {
			log.Info().Str("addr", cfg.Worker.AdminAddr).Msg("admin listener started")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin listener failed")
			}
		}()
	}

	// Wait for interrupt signal for graceful shutdown.
	<-ctx.Done()
	log.Info().Msg("shutting down delivery worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), queueCfg.ShutdownTimeout+5*time.Second)
	defer cancel()

	pool.Stop(shutdownCtx)
	if cfg.Worker.AdminAddr != "" {
		_ = adminSrv.Shutdown(shutdownCtx)
	}

	log.Info().Msg("delivery worker stopped")
}
