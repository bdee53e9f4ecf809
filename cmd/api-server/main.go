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

	"github.com/sungwon/newsletter-dispatch/internal/api"
	"github.com/sungwon/newsletter-dispatch/internal/bootstrap"
	"github.com/sungwon/newsletter-dispatch/internal/config"
	"github.com/sungwon/newsletter-dispatch/internal/idempotency"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := bootstrap.Logger(cfg)
	log.Info().Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("database connection established")

	jwtService := bootstrap.JWTService(cfg, log)

	redisNotifier, closeRedis, err := bootstrap.Notifier(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRedis()
	notifier := bootstrap.AsNotifier(redisNotifier)

	queueRepo := storage.NewQueueRepository()
	idempotencyRepo := storage.NewIdempotencyRepository()

	publisher := newsletter.NewPublisher(
		db,
		storage.NewIssueRepository(),
		queueRepo,
		idempotencyRepo,
		notifier,
		logger.WithComponent(log, "publisher"),
	)

	janitor := idempotency.NewJanitor(
		db.Pool,
		idempotencyRepo,
		cfg.Idempotency.Retention,
		cfg.Idempotency.SweepInterval,
		logger.WithComponent(log, "janitor"),
	)
	go janitor.Run(ctx)

	router := api.NewRouter(api.RouterDeps{
		DB:        db.Pool,
		Ready:     db,
		JWT:       jwtService,
		Publisher: publisher,
		Queue:     queueRepo,
		Notifier:  notifier,
		Log:       log,
	})

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
