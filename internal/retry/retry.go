// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/internal/clock"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Policy binds a Config to the collaborators a retry loop needs.
type Policy struct {
	Config Config
	Clock  clock.Clock
	Logger pslog.Logger
	// Retryable reports whether err is transient. A nil Retryable retries nothing.
	Retryable func(error) bool
	// Hint returns a server-provided delay for err, or zero to use backoff.
	Hint func(error) time.Duration
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Do invokes fn until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	cfg := p.Config.normalized()
	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := loggingutil.EnsureLogger(p.Logger)

	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		wait := delay
		if p.Hint != nil {
			if hinted := p.Hint(err); hinted > 0 {
				wait = hinted
			}
		}
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		logger.Warn("retry.transient_error",
			"operation", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"wait", wait.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(wait):
		}
		next := time.Duration(float64(delay) * cfg.Multiplier)
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		delay = next
	}
	return lastErr
}
