// Package reconcile persists cross-references that did not land and retries them.
//
// A mutation that confirmed on-chain but whose archive upload or storeEventCID call
// failed leaves the token without an audit pointer. The coordinator records such
// cases here; Worker completes them later.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var (
	ErrNotFound   = errors.New("reconcile entry not found")
	ErrExists     = errors.New("reconcile entry exists")
	ErrLeased     = errors.New("locked by another worker")
	// ErrNotPending is returned by AcquireLease for entries that left StatePending.
	ErrNotPending = errors.New("reconcile entry not pending")
)

type State string

const (
	// StatePending entries are retried by Worker.
	StatePending State = "PENDING"
	// StateBlocked entries have an ambiguous outcome (a storeEventCID transaction that
	// may still be mined) and wait for Release.
	StateBlocked   State = "BLOCKED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Entry is one token whose audit pointer is missing.
type Entry struct {
	ID         string          `json:"id"`
	TokenID    uint64          `json:"token_id"`
	Operation  string          `json:"operation"`
	TxHash     string          `json:"tx_hash"`
	Wallet     string          `json:"wallet"`
	Record     json.RawMessage `json:"record"`
	ArchiveURL string          `json:"archive_url,omitempty"`
	State      State           `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	LeasedBy    string    `json:"leased_by,omitempty"`
	LeasedUntil time.Time `json:"leased_until,omitempty"`
}

// EntryID is stable per (transaction, token), so re-enqueueing is detectable.
func EntryID(txHash string, tokenID uint64) string {
	return txHash + ":" + strconv.FormatUint(tokenID, 10)
}

// Queue is the durable store of entries.
type Queue interface {
	// Enqueue persists e. It returns ErrExists when e.ID is already queued.
	Enqueue(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	// AcquireLease locks an entry for workerID until the lease expires.
	AcquireLease(ctx context.Context, id, workerID string, duration time.Duration) (Entry, error)
	// UpdateState transitions the entry and releases its lease.
	UpdateState(ctx context.Context, id string, state State, reason string) error
	// RecordFailure bumps the retry count, keeps the entry PENDING and releases its lease.
	RecordFailure(ctx context.Context, id, reason string) error
	ListPending(ctx context.Context) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
}
