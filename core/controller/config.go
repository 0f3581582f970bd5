package controller

import "time"

// Config controls how often and how aggressively a controller iterates.
type Config struct {
	// Enabled lists the object kinds whose controllers are started.
	Enabled []string `mapstructure:"enabled" default:"rack,switch,power_shelf,network_segment,ib_partition,attestation"`
	// IterationTime is the target interval between the start of two iterations.
	IterationTime time.Duration `mapstructure:"iteration_time" default:"30s"`
	// MinIterationGap is the minimum pause after an iteration, even when triggered.
	MinIterationGap time.Duration `mapstructure:"min_iteration_gap" default:"2s"`
	// MaxConcurrency caps the number of objects handled in parallel. 1 processes serially.
	MaxConcurrency int `mapstructure:"max_concurrency" default:"1"`
	// MaxObjectHandlingTime bounds a single handler call. Zero disables the bound.
	MaxObjectHandlingTime time.Duration `mapstructure:"max_object_handling_time" default:"0s"`
	// RecoveryGracePeriod is how long pending queue entries are presumed owned by
	// a live instance before another instance takes them over.
	RecoveryGracePeriod time.Duration `mapstructure:"recovery_grace_period" default:"5m"`
	// ClaimBackoffMax caps the retry delay after a failed iteration claim.
	ClaimBackoffMax time.Duration `mapstructure:"claim_backoff_max" default:"2m"`
	// MetricsHoldPeriod is how long the last iteration's metrics stay exported.
	MetricsHoldPeriod time.Duration `mapstructure:"metrics_hold_period" default:"10m"`
	// MetricsFreshPeriod is how long exported metrics are labelled fresh.
	MetricsFreshPeriod time.Duration `mapstructure:"metrics_fresh_period" default:"60s"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		IterationTime:       30 * time.Second,
		MinIterationGap:     2 * time.Second,
		MaxConcurrency:      1,
		RecoveryGracePeriod: 5 * time.Minute,
		ClaimBackoffMax:     2 * time.Minute,
		MetricsHoldPeriod:   10 * time.Minute,
		MetricsFreshPeriod:  60 * time.Second,
	}
}

// IsEnabled reports whether the controller for kind should run.
func (c Config) IsEnabled(kind string) bool {
	for _, k := range c.Enabled {
		if k == kind {
			return true
		}
	}
	return false
}

func (c Config) concurrency() int {
	if c.MaxConcurrency < 1 {
		return 1
	}
	return c.MaxConcurrency
}
