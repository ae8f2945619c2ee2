package receiver

import (
	"context"
	"fmt"
	"time"
)

// BackoffConfig defines retry mechanics for transient failures
type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay"`
	BackoffRate  float64       `yaml:"backoff_rate" toml:"backoff_rate"` // Exponential backoff multiplier
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		BackoffRate:  2.0,
	}
}

// ValidateBackoffConfig validates backoff configuration values
func ValidateBackoffConfig(config BackoffConfig) error {
	if config.InitialDelay < 0 {
		return fmt.Errorf("initial_delay cannot be negative: %v", config.InitialDelay)
	}
	if config.MaxDelay < config.InitialDelay {
		return fmt.Errorf("max_delay %v is shorter than initial_delay %v", config.MaxDelay, config.InitialDelay)
	}
	if config.BackoffRate < 1 {
		return fmt.Errorf("backoff_rate must be at least 1: %f", config.BackoffRate)
	}
	return nil
}

// Backoff computes exponentially growing retry delays. It is owned by a
// single loop and is not safe for concurrent use.
type Backoff struct {
	config   BackoffConfig
	attempts int
}

func NewBackoff(config BackoffConfig) *Backoff {
	if config.BackoffRate < 1 {
		config.BackoffRate = 1
	}
	return &Backoff{config: config}
}

// Next returns the delay before the next attempt and counts the attempt.
func (b *Backoff) Next() time.Duration {
	delay := b.config.InitialDelay
	for i := 0; i < b.attempts && delay < b.config.MaxDelay; i++ {
		delay = time.Duration(float64(delay) * b.config.BackoffRate)
	}
	if b.config.MaxDelay > 0 && delay > b.config.MaxDelay {
		delay = b.config.MaxDelay
	}
	b.attempts++
	return delay
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return Sleep(ctx, b.Next())
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset is called after a successful attempt.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
