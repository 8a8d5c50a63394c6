package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/retry"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// CrossReferencer submits and confirms storeEventCID transactions.
type CrossReferencer interface {
	Submit(ctx context.Context, from wallet.Identity, call chain.Call) (*chain.PendingTx, error)
	Confirm(ctx context.Context, p *chain.PendingTx) (*chain.Receipt, error)
}

// Archiver re-uploads records that never reached the content store.
type Archiver interface {
	Upload(ctx context.Context, data []byte) (contentstore.CID, error)
	Resolve(cid contentstore.CID) (string, error)
}

type WorkerOptions struct {
	WorkerID       string
	Lease          time.Duration
	ConfirmTimeout time.Duration
	Policy         retry.BackoffPolicy
	Clock          func() time.Time
}

func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		WorkerID:       "reconciler-" + uuid.NewString()[:8],
		Lease:          5 * time.Minute,
		ConfirmTimeout: 2 * time.Minute,
		Policy:         retry.DefaultReconcilePolicy,
		Clock:          time.Now,
	}
}

// Summary counts what one pass did.
type Summary struct {
	Scanned   int
	Skipped   int
	Completed int
	Retried   int
	Blocked   int
	Failed    int
}

// Worker drains the queue. Each entry is first archived (when no URL was produced)
// and then cross-referenced with storeEventCID, signed by the wallet that made
// the original mutation.
type Worker struct {
	queue    Queue
	ledger   CrossReferencer
	archiver Archiver
	opts     WorkerOptions
	logger   *slog.Logger
}

func NewWorker(q Queue, ledger CrossReferencer, archiver Archiver, opts WorkerOptions) *Worker {
	def := DefaultWorkerOptions()
	if opts.WorkerID == "" {
		opts.WorkerID = def.WorkerID
	}
	if opts.Lease <= 0 {
		opts.Lease = def.Lease
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = def.ConfirmTimeout
	}
	if opts.Policy.PolicyID == "" {
		opts.Policy = def.Policy
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Worker{
		queue:    q,
		ledger:   ledger,
		archiver: archiver,
		opts:     opts,
		logger:   slog.Default().With("component", "reconcile", "worker", opts.WorkerID),
	}
}

// Run calls RunOnce every interval until ctx ends.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce processes every pending entry whose backoff has elapsed.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	entries, err := w.queue.ListPending(ctx)
	if err != nil {
		return sum, fmt.Errorf("list pending: %w", err)
	}

	now := w.opts.Clock()
	for _, e := range entries {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Scanned++

		if e.RetryCount > 0 {
			due := retry.NextAttemptAt(e.UpdatedAt, retry.BackoffParams{
				PolicyID: w.opts.Policy.PolicyID,
				Key:      e.ID,
				Attempt:  e.RetryCount,
			}, w.opts.Policy)
			if now.Before(due) {
				sum.Skipped++
				continue
			}
		}

		leased, err := w.queue.AcquireLease(ctx, e.ID, w.opts.WorkerID, w.opts.Lease)
		if errors.Is(err, ErrLeased) || errors.Is(err, ErrNotPending) {
			sum.Skipped++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("lease %s: %w", e.ID, err)
		}

		switch state, err := w.process(ctx, leased); state {
		case StateCompleted:
			sum.Completed++
			w.logger.InfoContext(ctx, "cross-reference recorded", "entry", e.ID, "token_id", e.TokenID)
		case StateBlocked:
			sum.Blocked++
			w.logger.WarnContext(ctx, "cross-reference outcome unknown", "entry", e.ID, "error", err)
		case StateFailed:
			sum.Failed++
			w.logger.ErrorContext(ctx, "cross-reference abandoned", "entry", e.ID, "attempts", leased.RetryCount+1, "error", err)
		default:
			sum.Retried++
			w.logger.WarnContext(ctx, "cross-reference failed, will retry", "entry", e.ID, "attempt", leased.RetryCount+1, "error", err)
		}
	}
	return sum, nil
}

// process runs one attempt and persists the resulting state.
func (w *Worker) process(ctx context.Context, e Entry) (State, error) {
	state, cause := w.attempt(ctx, e)

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	var err error
	switch {
	case state == StatePending && e.RetryCount+1 >= w.opts.Policy.MaxAttempts:
		state = StateFailed
		err = w.queue.UpdateState(ctx, e.ID, StateFailed, reason)
	case state == StatePending:
		err = w.queue.RecordFailure(ctx, e.ID, reason)
	default:
		err = w.queue.UpdateState(ctx, e.ID, state, reason)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "persist reconcile state", "entry", e.ID, "state", state, "error", err)
	}
	return state, cause
}

func (w *Worker) attempt(ctx context.Context, e Entry) (State, error) {
	url := e.ArchiveURL
	if url == "" {
		cid, err := w.archiver.Upload(ctx, e.Record)
		if err != nil {
			return StatePending, err
		}
		if url, err = w.archiver.Resolve(cid); err != nil {
			return StateFailed, err
		}
	}

	p, err := w.ledger.Submit(ctx, wallet.Identity(e.Wallet), chain.Call{
		Method: chain.MethodStoreEventCID,
		Args:   []any{chain.U256(e.TokenID), url},
	})
	if err != nil {
		return StatePending, err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, w.opts.ConfirmTimeout)
	defer cancel()
	if _, err := w.ledger.Confirm(confirmCtx, p); err != nil {
		if errors.Is(err, chain.ErrPendingIndefinitely) {
			return StateBlocked, err
		}
		return StatePending, err
	}
	return StateCompleted, nil
}

// Release returns a BLOCKED or FAILED entry to PENDING once an operator has checked
// the ledger and found no cross-reference for it.
func Release(ctx context.Context, q Queue, id string) error {
	e, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.State != StateBlocked && e.State != StateFailed {
		return fmt.Errorf("entry %s is %s, not BLOCKED or FAILED", id, e.State)
	}
	return q.UpdateState(ctx, id, StatePending, "released")
}
