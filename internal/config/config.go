package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// WorkerConfig controls the delivery worker loops.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	IdleWait        time.Duration `mapstructure:"idle_wait"`
	ErrorWait       time.Duration `mapstructure:"error_wait"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	StatsInterval   time.Duration `mapstructure:"stats_interval"`
	AdminAddr       string        `mapstructure:"admin_addr"`
}

// ProviderConfig selects and configures the email transport.
type ProviderConfig struct {
	Type     string        `mapstructure:"type"`
	From     string        `mapstructure:"from"`
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Region   string        `mapstructure:"region"`
	Domain   string        `mapstructure:"domain"`
	FilePath string        `mapstructure:"file_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
}

// SMTPConfig holds upstream SMTP relay settings for the smtp transport.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds the wake-up notifier connection. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// IdempotencyConfig controls retention of saved publish responses.
type IdempotencyConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	SigningKey        string        `mapstructure:"signing_key"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// ArchiveConfig holds the disabled-task export destination.
type ArchiveConfig struct {
	Type       string `mapstructure:"type"`
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory. A ".env" file
// in the working directory, when present, is loaded into the environment
// first. Environment variables with prefix NEWSLETTER_ override file values.
// For example, NEWSLETTER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("NEWSLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.idle_wait", 10*time.Second)
	v.SetDefault("worker.error_wait", time.Second)
	v.SetDefault("worker.send_timeout", 30*time.Second)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)
	v.SetDefault("worker.max_retries", 10)
	v.SetDefault("worker.retry_base", 30*time.Second)
	v.SetDefault("worker.retry_max", time.Hour)
	v.SetDefault("worker.stats_interval", 30*time.Second)
	v.SetDefault("redis.channel", "newsletter:issues")
	v.SetDefault("idempotency.retention", 72*time.Hour)
	v.SetDefault("idempotency.sweep_interval", time.Hour)
	v.SetDefault("archive.type", "local")
	v.SetDefault("archive.path", filepath.Join(os.TempDir(), "newsletter-archive"))
}

// Validate checks the fields every binary depends on.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Worker.RetryBase <= 0 || c.Worker.RetryMax < c.Worker.RetryBase {
		return fmt.Errorf("worker retry window invalid: base=%s max=%s", c.Worker.RetryBase, c.Worker.RetryMax)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"worker.idle_wait", c.Worker.IdleWait},
		{"worker.error_wait", c.Worker.ErrorWait},
		{"worker.send_timeout", c.Worker.SendTimeout},
		{"worker.stats_interval", c.Worker.StatsInterval},
		{"idempotency.retention", c.Idempotency.Retention},
		{"idempotency.sweep_interval", c.Idempotency.SweepInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}
