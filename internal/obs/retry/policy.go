package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// BroadcastPolicy is short on purpose: a status snapshot is superseded by the
// next cycle, so it is not worth holding a check loop for.
func BroadcastPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "broadcast",
		Attempts: 3,
		Backoff:  ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("broadcast retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Warn("broadcast retries exhausted", zap.Error(err))
			}
		},
	}
}
