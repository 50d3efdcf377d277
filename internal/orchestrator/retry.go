package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
)

// RetryPolicy governs retries of external calls. Backoff doubles from
// MinBackoff up to MaxBackoff with symmetric jitter.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	JitterFrac  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  30 * time.Second,
		JitterFrac:  0.20,
	}
}

// Backoff returns the sleep before the given retry attempt (1-based,
// so attempt 1 is the first retry).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.MinBackoff << uint(attempt-1)
	if d > p.MaxBackoff || d <= 0 {
		d = p.MaxBackoff
	}
	if p.JitterFrac > 0 {
		j := float64(d) * p.JitterFrac
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*j)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Retry runs fn until it succeeds, fails permanently, or attempts are
// exhausted. Only errors cmerr.IsRetryable accepts are retried; the
// context cancels the wait between attempts.
func Retry(ctx context.Context, log *logger.Logger, op string, p RetryPolicy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !cmerr.IsRetryable(err) || attempt == p.MaxAttempts {
			return err
		}
		wait := p.Backoff(attempt)
		log.Warn("retrying after transient failure", "op", op, "attempt", attempt, "backoff", wait.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
