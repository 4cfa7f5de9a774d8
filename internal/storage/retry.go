package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sheet-news-scraper/internal/observability"
)

// Retry re-runs a store call that failed with ErrRateLimited after a fixed
// pause. Other errors are returned at once.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *observability.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetry(maxAttempts int, delay time.Duration, logger *observability.Logger) *Retry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retry{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Logger:      logger,
		sleep:       sleepContext,
	}
}

// Do calls fn until it succeeds, fails with a non rate-limit error, or the
// attempts run out. The last case wraps ErrRetriesExhausted.
func (r *Retry) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.Logger.Warn("Store quota exceeded, waiting before retry",
				"op", op,
				"attempt", attempt,
				"max_attempts", r.MaxAttempts,
				"delay", r.Delay.String(),
			)
			if err := r.sleep(ctx, r.Delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s: %w after %d attempts: %v", op, ErrRetriesExhausted, r.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
