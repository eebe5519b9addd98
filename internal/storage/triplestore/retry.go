package triplestore

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

// RetryConfig задаёт повторы SELECT-запросов при временных сбоях хранилища.
// Update не повторяется.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию повторов по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (rc RetryConfig) normalized() RetryConfig {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.BackoffFactor < 1 {
		rc.BackoffFactor = 1
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return rc
}

// retry выполняет fn до MaxAttempts раз с экспоненциальной задержкой.
func retry(ctx context.Context, rc RetryConfig, operation string, logger *log.Entry, fn func() error) error {
	rc = rc.normalized()
	delay := rc.InitialDelay

	var err error
	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("triple store request succeeded after retry")
			}
			return nil
		}
		if !shouldRetry(err) || attempt == rc.MaxAttempts {
			return err
		}

		logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).WithError(err).Warn("triple store request failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * rc.BackoffFactor)
		if delay > rc.MaxDelay {
			delay = rc.MaxDelay
		}
	}
	return err
}

// shouldRetry повторяет только сбои хранилища. Открытый breaker и отмена контекста не повторяются.
func shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrUpstream)
}
