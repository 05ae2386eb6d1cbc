package resilience

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay {
		c.InitialDelay = c.MaxDelay
	}
	return c
}

// Retrier повторяет операцию с экспоненциальной задержкой, пока ошибка считается временной.
type Retrier struct {
	config    RetryConfig
	retryable func(error) bool
	logger    *log.Entry
}

// NewRetrier создаёт Retrier. retryable решает, стоит ли повторять ошибку;
// nil означает «не повторять никогда».
func NewRetrier(config RetryConfig, retryable func(error) bool, logger *log.Entry) *Retrier {
	if logger == nil {
		logger = log.WithField("component", "retrier")
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Retrier{config: config.normalized(), retryable: retryable, logger: logger}
}

// Do выполняет fn до MaxAttempts раз. Возвращается последняя ошибка fn
// или ошибка контекста, если ожидание между попытками прервано.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Debug("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		r.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Debug("operation failed, retrying")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", operation, ctx.Err())
			case <-timer.C:
			}
		}

		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	r.logger.WithError(lastErr).WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": r.config.MaxAttempts,
	}).Warn("operation failed after all retry attempts")
	return lastErr
}
