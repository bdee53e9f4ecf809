// Package bootstrap turns loaded configuration into the shared runtime
// pieces every binary starts from.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/auth"
	"github.com/sungwon/newsletter-dispatch/internal/config"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
	"github.com/sungwon/newsletter-dispatch/migrations"
)

const defaultSigningKey = "dev-signing-key-change-me-in-production"

// Logger builds the process logger.
func Logger(cfg *config.Config) zerolog.Logger {
	return logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
}

// Database connects the pgx pool.
func Database(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	return storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
}

// Migrate applies the embedded schema. It is safe on every startup.
func Migrate(ctx context.Context, db *storage.DB, log zerolog.Logger) error {
	applied, err := migrations.Up(ctx, db.Pool)
	if err != nil {
		return err
	}
	log.Info().Strs("files", applied).Msg("schema migrated")
	return nil
}

// JWTService builds the token service and warns about the shipped dev key.
func JWTService(cfg *config.Config, log zerolog.Logger) *auth.JWTService {
	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == defaultSigningKey {
		log.Warn().Msg("JWT signing key is not set or using default value; set NEWSLETTER_AUTH_SIGNING_KEY in production")
	}
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey:        cfg.Auth.SigningKey,
		AccessTokenExpiry: cfg.Auth.AccessTokenExpiry,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
	})
}

// QueueConfig maps the worker section onto the delivery loop settings.
func QueueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		Concurrency:     cfg.Worker.Concurrency,
		IdleWait:        cfg.Worker.IdleWait,
		ErrorWait:       cfg.Worker.ErrorWait,
		SendTimeout:     cfg.Worker.SendTimeout,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		MaxRetries:      cfg.Worker.MaxRetries,
		RetryBase:       cfg.Worker.RetryBase,
		RetryMax:        cfg.Worker.RetryMax,
	}
}

// ProviderConfig maps the provider section onto the transport settings.
func ProviderConfig(cfg *config.Config) provider.ProviderConfig {
	p := cfg.Provider
	return provider.ProviderConfig{
		Type:         p.Type,
		APIKey:       p.APIKey,
		Endpoint:     p.Endpoint,
		Timeout:      p.Timeout,
		Region:       p.Region,
		Domain:       p.Domain,
		OutputDir:    p.FilePath,
		SMTPHost:     p.SMTP.Host,
		SMTPPort:     p.SMTP.Port,
		SMTPUsername: p.SMTP.Username,
		SMTPPassword: p.SMTP.Password,
	}
}

// Provider builds the configured email transport.
func Provider(cfg *config.Config) (provider.Provider, error) {
	pc := ProviderConfig(cfg)
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = queue.DefaultConfig().SendTimeout
	}
	return provider.NewProvider(pc, provider.NewHTTPClient(timeout))
}

// Notifier connects the Redis wake-up channel. With no redis.addr it
// returns a nil *RedisNotifier and a no-op close.
func Notifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*queue.RedisNotifier, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("redis not configured, workers poll on idle_wait only")
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
	}
	closeFn := func() { _ = client.Close() }
	return queue.NewRedisNotifier(client, cfg.Redis.Channel, logger.WithComponent(log, "notifier")), closeFn, nil
}

// AsNotifier returns n as a queue.Notifier, substituting a no-op for nil.
func AsNotifier(n *queue.RedisNotifier) queue.Notifier {
	if n == nil {
		return queue.NopNotifier{}
	}
	return n
}

// Archive opens the disabled-task export store.
func Archive(ctx context.Context, cfg *config.Config, log zerolog.Logger) (archive.Store, error) {
	return archive.New(ctx, archive.Config{
		Type:       cfg.Archive.Type,
		Path:       cfg.Archive.Path,
		S3Bucket:   cfg.Archive.S3Bucket,
		S3Prefix:   cfg.Archive.S3Prefix,
		S3Endpoint: cfg.Archive.S3Endpoint,
		S3Region:   cfg.Archive.S3Region,
	}, log)
}
