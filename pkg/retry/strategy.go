package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Operation is a unit of work that is safe to repeat.
type Operation func(ctx context.Context) error

// Strategy re-runs idempotent operations on transient failures. It must never wrap
// a ledger submission: a resent transaction is a second mutation.
type Strategy struct {
	policy      BackoffPolicy
	recoverable func(error) bool
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

func NewStrategy(policy BackoffPolicy) *Strategy {
	return &Strategy{
		policy:      policy,
		recoverable: IsRecoverable,
		sleep:       sleepCtx,
		logger:      slog.Default().With("component", "retry", "policy", policy.PolicyID),
	}
}

// WithClassifier replaces the recoverable-error check.
func (s *Strategy) WithClassifier(fn func(error) bool) *Strategy {
	s.recoverable = fn
	return s
}

// Execute runs op until it succeeds, fails with a non-recoverable error, or the
// policy's attempts are exhausted.
func (s *Strategy) Execute(ctx context.Context, key string, op Operation) error {
	attempts := s.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := ComputeBackoff(BackoffParams{PolicyID: s.policy.PolicyID, Key: key, Attempt: attempt}, s.policy)
			s.logger.Warn("operation failed, retrying",
				"key", key,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"retry_in", delay,
				"error", lastErr)
			if err := s.sleep(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry: %w", err)
			}
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("operation succeeded after retry", "key", key, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !s.recoverable(err) {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// IsRecoverable reports whether err looks like a transient transport failure.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var recoverablePatterns = []string{
	"connection reset by peer",
	"connection refused",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"i/o timeout",
	"unexpected eof",
	"tls handshake timeout",
	"no such host",
	"connection timed out",
	"too many requests",
	"429",
	"502 bad gateway",
	"503 service unavailable",
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
