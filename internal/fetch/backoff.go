package fetch

import (
	"context"
	"fmt"
	"time"
)

// LinearBackoff waits Base*attempt between retries, capped at Max. The retry
// budget itself is bounded by the identity pool size, so the total wait is
// small and predictable.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// NewLinearBackoff builds a policy with sane defaults.
func NewLinearBackoff(base, max time.Duration) LinearBackoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return LinearBackoff{Base: base, Max: max}
}

// Delay returns the wait duration before the given attempt (1-based).
func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(attempt) * b.Base
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Sleep blocks for the attempt's delay or until the context finishes.
func (b LinearBackoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
