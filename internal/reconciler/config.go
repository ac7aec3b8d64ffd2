// Package reconciler runs the resolve, post and learn pipeline over batches of
// bank transactions.
//
// Example usage:
//
//	orchestrator, err := reconciler.NewOrchestrator(store, resolver, poster, learner, reconciler.DefaultConfig(), log)
//	orchestrator.AddProgressCallback(func(p *reconciler.BatchProgress) {
//		fmt.Printf("%.1f%% (%d/%d)\n", p.PercentComplete, p.Completed, p.Total)
//	})
//
//	report, err := orchestrator.RunBatch(ctx, nil, 5)
package reconciler

import (
	"fmt"
	"time"
)

// DefaultConcurrency is the worker count used when none is given
const DefaultConcurrency = 5

// Config holds the batch settings
type Config struct {
	// Concurrency is the number of transactions processed at once
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	// ProgressLogInterval is how often the progress tracker logs
	ProgressLogInterval time.Duration `json:"progress_log_interval" mapstructure:"progress_log_interval"`

	// Learn records a rule for every booked transaction
	Learn bool `json:"learn" mapstructure:"learn"`
}

// DefaultConfig returns the default batch configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency:         DefaultConcurrency,
		ProgressLogInterval: 5 * time.Second,
		Learn:               true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ProgressLogInterval < 0 {
		return fmt.Errorf("progress log interval cannot be negative")
	}
	return nil
}
