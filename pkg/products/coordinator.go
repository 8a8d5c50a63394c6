// Package products coordinates the product lifecycle across the ledger and the
// content store.
//
// Every mutation runs the same pipeline: submit, confirm, decode the
// TokenStateChanged event, archive {transactionHash, event} to the content store,
// then register the archive URL with storeEventCID. The signing wallet is read
// from the request context on every call; the Coordinator holds no per-request
// state and is safe for concurrent use.
package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/notify"
	"github.com/Mindburn-Labs/productledger/pkg/observability"
	"github.com/Mindburn-Labs/productledger/pkg/reconcile"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// Ledger is the contract surface the coordinator drives.
type Ledger interface {
	Read(ctx context.Context, method string, args ...any) ([]any, error)
	Submit(ctx context.Context, from wallet.Identity, call chain.Call) (*chain.PendingTx, error)
	Confirm(ctx context.Context, p *chain.PendingTx) (*chain.Receipt, error)
}

type EventDecoder interface {
	Decode(receipt *chain.Receipt, eventName string) (*chain.LedgerEvent, bool)
}

// ContentStore uploads blobs and resolves and fetches their URLs.
type ContentStore interface {
	Upload(ctx context.Context, data []byte) (contentstore.CID, error)
	Resolve(cid contentstore.CID) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	IDs      IDGenerator
	Notifier notify.Notifier
	// Reconcile, when set, receives cross-references that did not land.
	Reconcile   reconcile.Queue
	Obs         *observability.Provider
	ExplorerURL string // e.g. https://etherscan.io/tx/
}

type Coordinator struct {
	ledger   Ledger
	decoder  EventDecoder
	store    ContentStore
	ids      IDGenerator
	notifier notify.Notifier
	queue    reconcile.Queue
	obs      *observability.Provider
	explorer string
	logger   *slog.Logger
}

func NewCoordinator(ledger Ledger, decoder EventDecoder, store ContentStore, opts Options) (*Coordinator, error) {
	if ledger == nil || decoder == nil || store == nil {
		return nil, errors.New("products: ledger, decoder and store are required")
	}
	c := &Coordinator{
		ledger:   ledger,
		decoder:  decoder,
		store:    store,
		ids:      opts.IDs,
		notifier: opts.Notifier,
		queue:    opts.Reconcile,
		obs:      opts.Obs,
		explorer: opts.ExplorerURL,
		logger:   slog.Default().With("component", "coordinator"),
	}
	if c.ids == nil {
		c.ids = NewTimeRandomGenerator(nil)
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier()
	}
	if c.obs == nil {
		obs, err := observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		c.obs = obs
	}
	return c, nil
}

// TxResult describes a mutation that reached the ledger.
type TxResult struct {
	Operation   string             `json:"operation"`
	TokenIDs    []TokenID          `json:"tokenIds"`
	TxHash      string             `json:"transactionHash"`
	BlockNumber uint64             `json:"blockNumber"`
	Event       *chain.LedgerEvent `json:"event"`
	ArchiveURL  string             `json:"archiveUrl,omitempty"`
	// CrossRefTxs maps token id to its storeEventCID transaction.
	CrossRefTxs map[TokenID]string `json:"crossReferenceTxs,omitempty"`
	Stage       Stage              `json:"stage"`
}

func (c *Coordinator) track(ctx context.Context, op string, ids []TokenID) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("operation", op)}
	if len(ids) == 1 {
		attrs = append(attrs, attribute.Int64("token_id", int64(ids[0]))) //nolint:gosec // ids fit in 63 bits
	}
	return c.obs.TrackOperation(ctx, "products."+op, attrs...)
}

func (c *Coordinator) stage(ctx context.Context, res *TxResult, s Stage) {
	res.Stage = s
	c.obs.RecordStage(ctx, res.Operation, string(s))
}

// submit broadcasts call. Nothing has changed on-chain when it fails.
func (c *Coordinator) submit(ctx context.Context, op string, from wallet.Identity, ids []TokenID, call chain.Call) (*chain.PendingTx, error) {
	p, err := c.ledger.Submit(ctx, from, call)
	if err != nil {
		c.logger.WarnContext(ctx, "submit failed", "op", op, "token_ids", uint64s(ids), "reason", chain.RejectionReason(err))
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindSubmitFailed, Err: err}
	}
	return p, nil
}

// mutate runs the full pipeline for one contract write.
func (c *Coordinator) mutate(ctx context.Context, op string, action chain.Action, ids []TokenID, call chain.Call) (*TxResult, error) {
	from, err := wallet.From(ctx)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	p, err := c.submit(ctx, op, from, ids, call)
	if err != nil {
		return nil, err
	}
	return c.settle(ctx, op, action, from, ids, p)
}

// settle takes a broadcast transaction through confirmation, archival and
// cross-referencing. Once confirmation succeeds the result is always returned,
// together with an OpError when a later step failed.
func (c *Coordinator) settle(ctx context.Context, op string, action chain.Action, from wallet.Identity, ids []TokenID, p *chain.PendingTx) (*TxResult, error) {
	res := &TxResult{Operation: op, TokenIDs: ids, TxHash: p.Hash}
	c.stage(ctx, res, StageSubmitted)
	logger := c.logger.With("op", op, "token_ids", uint64s(ids), "tx_hash", p.Hash)

	rcpt, err := c.ledger.Confirm(ctx, p)
	if err != nil {
		if errors.Is(err, chain.ErrLedgerRejected) {
			logger.WarnContext(ctx, "transaction reverted", "reason", chain.RejectionReason(err))
			return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageSubmitted, Kind: KindSubmitFailed, TxHash: p.Hash, Err: err}
		}
		// Never resubmitted: the transaction may still be mined.
		logger.WarnContext(ctx, "confirmation not observed", "error", err)
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageSubmitted, Kind: KindConfirmTimedOut, TxHash: p.Hash, Err: err}
	}
	res.BlockNumber = rcpt.BlockNumber
	c.stage(ctx, res, StageConfirmed)

	ev, ok := c.decoder.Decode(rcpt, chain.EventTokenStateChanged)
	switch {
	case !ok:
		logger.InfoContext(ctx, "receipt carries no state change event")
	case ev.Action != action:
		logger.WarnContext(ctx, "unexpected event action", "want", action, "got", ev.Action)
	}
	res.Event = ev
	c.stage(ctx, res, StageEventDecoded)

	record := ArchivedEventRecord{TransactionHash: p.Hash, Operation: op, Event: ev}
	raw, err := contentstore.Canonical(record)
	if err != nil {
		return res, &OpError{Op: op, TokenIDs: ids, Stage: StageEventDecoded, Kind: KindArchiveFailed, TxHash: p.Hash, Err: err}
	}
	url, err := c.archive(ctx, raw)
	if err != nil {
		logger.ErrorContext(ctx, "archive failed after confirmed mutation", "stage", StageEventDecoded, "error", err)
		c.obs.RecordPartial(ctx, op, string(KindArchiveFailed))
		c.enqueue(ctx, ids, op, p.Hash, from, raw, "", reconcile.StatePending, err)
		return res, &OpError{Op: op, TokenIDs: ids, Stage: StageEventDecoded, Kind: KindArchiveFailed, TxHash: p.Hash, Err: err}
	}
	res.ArchiveURL = url
	c.stage(ctx, res, StageArchived)

	res.CrossRefTxs = make(map[TokenID]string, len(ids))
	var failed []TokenID
	var errs []error
	for _, id := range ids {
		hash, state, err := c.crossReference(ctx, from, id, url)
		if hash != "" {
			res.CrossRefTxs[id] = hash
		}
		if err != nil {
			logger.ErrorContext(ctx, "cross-reference failed after confirmed mutation", "token_id", uint64(id), "stage", StageArchived, "error", err)
			c.enqueue(ctx, []TokenID{id}, op, p.Hash, from, raw, url, state, err)
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("token %d: %w", id, err))
		}
	}
	if len(failed) > 0 {
		c.obs.RecordPartial(ctx, op, string(KindCrossReferenceFailed))
		return res, &OpError{Op: op, TokenIDs: failed, Stage: StageArchived, Kind: KindCrossReferenceFailed, TxHash: p.Hash, Err: errors.Join(errs...)}
	}
	c.stage(ctx, res, StageCrossReferenced)
	c.stage(ctx, res, StageComplete)
	logger.InfoContext(ctx, "operation complete", "block", res.BlockNumber, "archive_url", url)
	return res, nil
}

func (c *Coordinator) archive(ctx context.Context, raw []byte) (string, error) {
	cid, err := c.store.Upload(ctx, raw)
	if err != nil {
		return "", err
	}
	return c.store.Resolve(cid)
}

// crossReference registers url for id. The returned state is what a reconcile
// entry should start in when it fails.
func (c *Coordinator) crossReference(ctx context.Context, from wallet.Identity, id TokenID, url string) (string, reconcile.State, error) {
	p, err := c.ledger.Submit(ctx, from, chain.Call{
		Method: chain.MethodStoreEventCID,
		Args:   []any{chain.U256(uint64(id)), url},
	})
	if err != nil {
		return "", reconcile.StatePending, err
	}
	if _, err := c.ledger.Confirm(ctx, p); err != nil {
		if errors.Is(err, chain.ErrPendingIndefinitely) {
			return p.Hash, reconcile.StateBlocked, err
		}
		return p.Hash, reconcile.StatePending, err
	}
	return p.Hash, "", nil
}

func (c *Coordinator) enqueue(ctx context.Context, ids []TokenID, op, txHash string, from wallet.Identity, raw []byte, url string, state reconcile.State, cause error) {
	if c.queue == nil {
		return
	}
	// The caller's deadline may be what failed the step.
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		e := reconcile.Entry{
			ID:         reconcile.EntryID(txHash, uint64(id)),
			TokenID:    uint64(id),
			Operation:  op,
			TxHash:     txHash,
			Wallet:     string(from),
			Record:     raw,
			ArchiveURL: url,
			State:      state,
			Reason:     cause.Error(),
		}
		if err := c.queue.Enqueue(ctx, e); err != nil && !errors.Is(err, reconcile.ErrExists) {
			c.logger.ErrorContext(ctx, "could not queue reconciliation", "entry", e.ID, "error", err)
		}
	}
}
