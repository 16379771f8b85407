package jobqueue

import (
	"time"

	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

// Config holds the queue and sweep scheduling settings
type Config struct {
	Workers         int
	MaxRetries      int
	RetryBackoff    time.Duration // multiplied by the attempt number
	JobTimeout      time.Duration
	PromoteInterval time.Duration // how often due delayed jobs are moved to the queue
	StuckMaxAge     time.Duration
	StuckInterval   time.Duration
	SweepInterval   time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:         5,
		MaxRetries:      DefaultMaxRetries,
		RetryBackoff:    time.Minute,
		JobTimeout:      5 * time.Minute,
		PromoteInterval: time.Second,
		StuckMaxAge:     10 * time.Minute,
		StuckInterval:   time.Minute,
		SweepInterval:   15 * time.Minute,
	}
}

// LoadConfig reads overrides from environment variables
func LoadConfig() *Config {
	d := DefaultConfig()
	cfg := &Config{
		Workers:         env.GetEnvInt("JOB_QUEUE_WORKERS", d.Workers),
		MaxRetries:      env.GetEnvInt("JOB_MAX_RETRIES", d.MaxRetries),
		RetryBackoff:    env.GetEnvDuration("JOB_RETRY_BACKOFF", d.RetryBackoff),
		JobTimeout:      env.GetEnvDuration("JOB_TIMEOUT", d.JobTimeout),
		PromoteInterval: env.GetEnvDuration("JOB_PROMOTE_INTERVAL", d.PromoteInterval),
		StuckMaxAge:     env.GetEnvDuration("JOB_STUCK_MAX_AGE", d.StuckMaxAge),
		StuckInterval:   env.GetEnvDuration("JOB_STUCK_INTERVAL", d.StuckInterval),
		SweepInterval:   env.GetEnvDuration("SWEEP_INTERVAL", d.SweepInterval),
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = d.PromoteInterval
	}
	if c.StuckMaxAge <= 0 {
		c.StuckMaxAge = d.StuckMaxAge
	}
	if c.StuckInterval <= 0 {
		c.StuckInterval = d.StuckInterval
	}
}
