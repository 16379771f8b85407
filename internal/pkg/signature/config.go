package signature

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

// Config controls timing of the lifecycle and the reconciliation sweep
type Config struct {
	RetentionPeriod    time.Duration // SENT events older than this expire
	CheckStatusDelay   time.Duration // delay between consecutive status checks of one event
	SignedGracePeriod  time.Duration // SIGNED events untouched this long get their upload re-dispatched
	PendingGracePeriod time.Duration // PENDING events untouched this long get their send re-dispatched
	MaxConflictRetries int

	SweepBatchSize     int
	SweepConcurrency   int
	SweepRatePerSecond float64
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		RetentionPeriod:    30 * 24 * time.Hour,
		CheckStatusDelay:   10 * time.Minute,
		SignedGracePeriod:  15 * time.Minute,
		PendingGracePeriod: 15 * time.Minute,
		MaxConflictRetries: 3,
		SweepBatchSize:     100,
		SweepConcurrency:   4,
		SweepRatePerSecond: 5,
	}
}

// LoadConfig reads overrides from environment variables
func LoadConfig() *Config {
	d := DefaultConfig()
	days := env.GetEnvInt("SIGNATURE_RETENTION_DAYS", int(d.RetentionPeriod/(24*time.Hour)))
	if days <= 0 {
		days = 30
	}
	cfg := &Config{
		RetentionPeriod:    time.Duration(days) * 24 * time.Hour,
		CheckStatusDelay:   env.GetEnvDuration("SIGNATURE_CHECK_STATUS_DELAY", d.CheckStatusDelay),
		SignedGracePeriod:  env.GetEnvDuration("SIGNATURE_SIGNED_GRACE_PERIOD", d.SignedGracePeriod),
		PendingGracePeriod: env.GetEnvDuration("SIGNATURE_PENDING_GRACE_PERIOD", d.PendingGracePeriod),
		MaxConflictRetries: env.GetEnvInt("SIGNATURE_MAX_CONFLICT_RETRIES", d.MaxConflictRetries),
		SweepBatchSize:     env.GetEnvInt("SWEEP_BATCH_SIZE", d.SweepBatchSize),
		SweepConcurrency:   env.GetEnvInt("SWEEP_CONCURRENCY", d.SweepConcurrency),
		SweepRatePerSecond: env.GetEnvFloat("SWEEP_RATE_PER_SECOND", d.SweepRatePerSecond),
	}
	if cfg.MaxConflictRetries < 1 {
		cfg.MaxConflictRetries = 1
	}
	if cfg.SweepBatchSize < 1 {
		cfg.SweepBatchSize = d.SweepBatchSize
	}
	if cfg.SweepConcurrency < 1 {
		cfg.SweepConcurrency = 1
	}
	return cfg
}

// ExpirationReason is recorded on events expired by the sweep.
func (c *Config) ExpirationReason() string {
	return fmt.Sprintf("%d days without signature", int(c.RetentionPeriod/(24*time.Hour)))
}
