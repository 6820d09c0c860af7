package httpclient

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/utils"
)

// RetryPolicy defines retry behavior for failed operations.
// Delays grow as BaseDelay * Factor^attempt with no jitter.
type RetryPolicy struct {
	Retries   int
	BaseDelay time.Duration
	Factor    float64
	Label     string
}

// DefaultFactor is used when a policy leaves Factor unset.
const DefaultFactor = 2.0

// sleep waits for d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
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

// Delay returns the wait before the retry that follows attempt (zero based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = DefaultFactor
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt)))
}

// WithRetry runs op up to Retries+1 times and returns the first success or the
// last error. Errors that utils.IsRetryable rejects are returned immediately.
// Each retry emits one warning carrying the attempt count and computed delay.
func WithRetry[T any](ctx context.Context, logger logrus.FieldLogger, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	retries := policy.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == retries || !utils.IsRetryable(err) {
			break
		}

		delay := policy.Delay(attempt)
		logger.WithFields(logrus.Fields{
			"label":        policy.Label,
			"attempt":      attempt + 1,
			"max_attempts": retries + 1,
			"delay_ms":     delay.Milliseconds(),
			"error":        err.Error(),
		}).Warn("Operation failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
