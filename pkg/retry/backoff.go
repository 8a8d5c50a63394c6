package retry

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffParams identifies one attempt of one retried unit of work.
type BackoffParams struct {
	PolicyID string
	Key      string // e.g. reconcile entry ID or contract method
	Attempt  int
}

type BackoffPolicy struct {
	PolicyID    string
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
	MaxAttempts int
}

// DefaultReadPolicy governs idempotent ledger reads and content fetches.
var DefaultReadPolicy = BackoffPolicy{
	PolicyID:    "read",
	BaseMs:      200,
	MaxMs:       5_000,
	MaxJitterMs: 100,
	MaxAttempts: 4,
}

// DefaultReconcilePolicy spaces out cross-reference retries.
var DefaultReconcilePolicy = BackoffPolicy{
	PolicyID:    "reconcile",
	BaseMs:      5_000,
	MaxMs:       10 * 60 * 1000,
	MaxJitterMs: 1_000,
	MaxAttempts: 8,
}

// ComputeBackoff returns the delay before the given attempt. Attempt 0 has no delay
// beyond jitter; the jitter is derived from the params so the schedule is reproducible.
func ComputeBackoff(params BackoffParams, policy BackoffPolicy) time.Duration {
	// 1. Exponential part, base * 2^attempt
	factor := int64(1)
	if params.Attempt > 0 {
		if params.Attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << params.Attempt
		}
	}

	delay := policy.BaseMs * factor
	if params.Attempt == 0 {
		delay = 0
	}
	if delay > policy.MaxMs {
		delay = policy.MaxMs
	}

	// 2. Jitter
	return time.Duration(delay+ComputeJitter(params, policy)) * time.Millisecond
}

// ComputeJitter is a PRF over the params bounded by MaxJitterMs.
func ComputeJitter(params BackoffParams, policy BackoffPolicy) int64 {
	if policy.MaxJitterMs <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%s:%d", params.PolicyID, params.Key, params.Attempt)
	sum := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(sum[:8])
	return int64(basis % uint64(policy.MaxJitterMs)) //nolint:gosec // MaxJitterMs is positive
}

// NextAttemptAt reports when attempt may run, given when the previous one finished.
func NextAttemptAt(last time.Time, params BackoffParams, policy BackoffPolicy) time.Time {
	return last.Add(ComputeBackoff(params, policy))
}
