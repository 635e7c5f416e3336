package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// ConnectRetryPolicy is used when connecting to Postgres and Redis at
// startup.
func ConnectRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// OperationResult summarises a retried operation.
type OperationResult struct {
	Attempts int
	Duration time.Duration
	Error    error
}

// ExecuteWithRetry runs operation until it succeeds, the policy's retries
// are spent or ctx is done. The last operation error is returned.
func ExecuteWithRetry(ctx context.Context, logger *logrus.Logger, name string, policy RetryPolicy, operation func(context.Context) error) OperationResult {
	start := time.Now()
	delay := policy.InitialDelay
	result := OperationResult{}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		result.Error = operation(ctx)
		if result.Error == nil {
			if attempt > 0 {
				logger.WithFields(logrus.Fields{
					"operation": name,
					"attempts":  result.Attempts,
				}).Info("Operation recovered after retry")
			}
			break
		}
		if attempt == policy.MaxRetries {
			break
		}

		wait := policy.delay(delay)
		logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   result.Attempts,
			"delay":     wait,
			"error":     result.Error.Error(),
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Duration = time.Since(start)
			return result
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	result.Duration = time.Since(start)
	return result
}

// delay adds up to 25% jitter either side of base.
func (p RetryPolicy) delay(base time.Duration) time.Duration {
	if !p.JitterEnabled || base <= 0 {
		return base
	}
	jitter := time.Duration(float64(base) * 0.25 * (0.5 - float64(time.Now().UnixNano()%1000)/1000.0))
	return base + jitter
}
