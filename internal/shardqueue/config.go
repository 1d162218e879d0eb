package shardqueue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Config tunes a ShardExecutor. LoadConfig reads it from AQUA_SQ_*
// variables, e.g. AQUA_SQ_QUEUE_SIZE=64.
type Config struct {
	// Name labels log lines and metrics. Defaults to "default".
	Name string `envconfig:"NAME"`

	Shards         int           `envconfig:"SHARDS"          default:"1"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"64"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"1"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"100ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"5s"`

	// Retryable reports whether a failed attempt may be repeated. Nil
	// retries everything except errors wrapped with backoff.Permanent.
	Retryable func(error) bool `envconfig:"-"`

	// ErrorHandler receives the final error of every job that did not
	// succeed, including ctx.Err() for jobs skipped after cancellation.
	// It runs on the worker goroutine.
	ErrorHandler func(error) `envconfig:"-"`

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger `envconfig:"-"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("AQUA_SQ", &c)
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Shards <= 0 {
		c.Shards = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.Retryable == nil {
		c.Retryable = isTransient
	}
	return c
}
