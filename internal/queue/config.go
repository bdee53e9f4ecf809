package queue

import "time"

// Config holds the polling and retry settings shared by delivery workers.
type Config struct {
	Concurrency     int           `mapstructure:"concurrency"`
	IdleWait        time.Duration `mapstructure:"idle_wait"`
	ErrorWait       time.Duration `mapstructure:"error_wait"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		IdleWait:        10 * time.Second,
		ErrorWait:       1 * time.Second,
		SendTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      10,
		RetryBase:       30 * time.Second,
		RetryMax:        1 * time.Hour,
	}
}
