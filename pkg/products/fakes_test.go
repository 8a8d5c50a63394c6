package products

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/notify"
	"github.com/Mindburn-Labs/productledger/pkg/reconcile"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	walletW      = wallet.Identity(common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8").Hex())
)

var methodActions = map[string]chain.Action{
	chain.MethodMintProduct:    chain.ActionMint,
	chain.MethodUpdatePrice:    chain.ActionUpdatePrice,
	chain.MethodUpdateQuantity: chain.ActionUpdateQuantity,
	chain.MethodUpdateMetadata: chain.ActionUpdateMetadata,
	chain.MethodUpdateStatus:   chain.ActionUpdateStatus,
	chain.MethodBurnProduct:    chain.ActionBurn,
	chain.MethodBuyTokens:      chain.ActionBuy,
}

type sentTx struct {
	From wallet.Identity
	Call chain.Call
}

// fakeLedger emulates the product contract closely enough for the pipeline:
// confirmed writes emit TokenStateChanged and storeEventCID appends to the
// per-token registry.
type fakeLedger struct {
	mu       sync.Mutex
	nonce    int
	sent     []sentTx
	byHash   map[string]sentTx
	rejects  map[string][]string // method -> revert reasons consumed per submit
	reverts  map[string]string   // method -> revert reason once mined
	pending  map[string]bool     // method -> confirmation never observed
	noEvent  map[string]bool
	balances map[TokenID]*big.Int
	registry map[TokenID][]string
	clock    time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		byHash:   make(map[string]sentTx),
		rejects:  make(map[string][]string),
		reverts:  make(map[string]string),
		pending:  make(map[string]bool),
		noEvent:  make(map[string]bool),
		balances: make(map[TokenID]*big.Int),
		registry: make(map[TokenID][]string),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeLedger) Read(_ context.Context, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case chain.MethodBalanceOf:
		id := TokenID(args[1].(*big.Int).Uint64())
		if b, ok := f.balances[id]; ok {
			return []any{new(big.Int).Set(b)}, nil
		}
		return []any{big.NewInt(0)}, nil
	case chain.MethodGetTransactionCIDs:
		id := TokenID(args[0].(*big.Int).Uint64())
		return []any{append([]string{}, f.registry[id]...)}, nil
	case chain.MethodGetProductInfo:
		return []any{"http://gateway.local/content/meta", "19.50", big.NewInt(5), "available", common.HexToAddress(string(walletW))}, nil
	case chain.MethodGetAllTokenIDs:
		return []any{big.NewInt(2), []*big.Int{big.NewInt(9), big.NewInt(4)}}, nil
	case chain.MethodGetTokenOwners:
		return []any{[]common.Address{common.HexToAddress(string(walletW))}}, nil
	case chain.MethodGetMetadataCID:
		return []any{string(contentstore.ComputeCID([]byte("meta")))}, nil
	}
	return nil, fmt.Errorf("unexpected read %s", method)
}

func (f *fakeLedger) Submit(_ context.Context, from wallet.Identity, call chain.Call) (*chain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if reasons := f.rejects[call.Method]; len(reasons) > 0 {
		f.rejects[call.Method] = reasons[1:]
		return nil, &chain.RejectedError{Method: call.Method, Reason: reasons[0], Err: errors.New("execution reverted")}
	}
	f.nonce++
	hash := fmt.Sprintf("0x%064x", f.nonce)
	tx := sentTx{From: from, Call: call}
	f.sent = append(f.sent, tx)
	f.byHash[hash] = tx
	return &chain.PendingTx{Hash: hash, Method: call.Method, From: common.HexToAddress(string(from))}, nil
}

func (f *fakeLedger) Confirm(_ context.Context, p *chain.PendingTx) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.byHash[p.Hash]
	if f.pending[tx.Call.Method] {
		return nil, &chain.PendingError{TxHash: p.Hash, Err: context.DeadlineExceeded}
	}
	if reason, ok := f.reverts[tx.Call.Method]; ok {
		return nil, &chain.RejectedError{Method: tx.Call.Method, TxHash: p.Hash, Reason: reason, Err: errors.New("execution reverted")}
	}
	rcpt := &chain.Receipt{TxHash: p.Hash, BlockNumber: uint64(100 + f.nonce)}

	if tx.Call.Method == chain.MethodStoreEventCID {
		id := TokenID(tx.Call.Args[0].(*big.Int).Uint64())
		f.registry[id] = append(f.registry[id], tx.Call.Args[1].(string))
		return rcpt, nil
	}
	if tx.Call.Method == chain.MethodBurnProduct {
		delete(f.balances, TokenID(tx.Call.Args[0].(*big.Int).Uint64()))
	}
	if f.noEvent[tx.Call.Method] {
		return rcpt, nil
	}

	var tokenID uint64
	switch a := tx.Call.Args[0].(type) {
	case *big.Int:
		tokenID = a.Uint64()
	case []*big.Int:
		tokenID = a[0].Uint64()
	}
	f.clock = f.clock.Add(12 * time.Second)
	lg, err := chain.EncodeStateChanged(chain.MustDefaultABI(), contractAddr, chain.LedgerEvent{
		TokenID:   tokenID,
		Action:    methodActions[tx.Call.Method],
		Initiator: string(tx.From),
		Timestamp: f.clock,
	})
	if err != nil {
		return nil, err
	}
	rcpt.Logs = append(rcpt.Logs, lg)
	return rcpt, nil
}

func (f *fakeLedger) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, tx := range f.sent {
		out[i] = tx.Call.Method
	}
	return out
}

func (f *fakeLedger) sentFor(method string) []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentTx
	for _, tx := range f.sent {
		if tx.Call.Method == method {
			out = append(out, tx)
		}
	}
	return out
}

// switchableStore is a content store that can be taken offline.
type switchableStore struct {
	*contentstore.Client
	mu      sync.Mutex
	down    bool
	uploads int
}

func (s *switchableStore) Upload(ctx context.Context, data []byte) (contentstore.CID, error) {
	s.mu.Lock()
	down := s.down
	if !down {
		s.uploads++
	}
	s.mu.Unlock()
	if down {
		return "", fmt.Errorf("%w: upload: connection refused", contentstore.ErrStoreUnavailable)
	}
	return s.Client.Upload(ctx, data)
}

func (s *switchableStore) setDown(v bool) {
	s.mu.Lock()
	s.down = v
	s.mu.Unlock()
}

func (s *switchableStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

type sequenceIDs struct {
	mu   sync.Mutex
	next []TokenID
}

func (s *sequenceIDs) Next(context.Context) (TokenID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.next) == 0 {
		return 0, errors.New("sequence exhausted")
	}
	id := s.next[0]
	s.next = s.next[1:]
	return id, nil
}

type env struct {
	coord    *Coordinator
	ledger   *fakeLedger
	store    *switchableStore
	blobs    *contentstore.FileStore
	queue    *reconcile.FileQueue
	notifier *recordingNotifier
	gateway  *httptest.Server
}

// newEnv wires a coordinator to a fake ledger and a real file-backed content store
// served over HTTP, so archived URLs can be fetched back.
func newEnv(t *testing.T, ids IDGenerator) *env {
	t.Helper()
	blobs, err := contentstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	mux := http.NewServeMux()
	contentstore.NewGateway(blobs).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	queue, err := reconcile.NewFileQueue(filepath.Join(t.TempDir(), "reconcile.json"))
	require.NoError(t, err)

	e := &env{
		ledger:   newFakeLedger(),
		store:    &switchableStore{Client: contentstore.NewClient(blobs, srv.URL, nil)},
		blobs:    blobs,
		queue:    queue,
		notifier: &recordingNotifier{},
		gateway:  srv,
	}
	decoder := chain.NewDecoder(chain.MustDefaultABI()).ForContract(contractAddr)
	e.coord, err = NewCoordinator(e.ledger, decoder, e.store, Options{
		IDs:         ids,
		Notifier:    e.notifier,
		Reconcile:   queue,
		ExplorerURL: "https://explorer.local/tx/",
	})
	require.NoError(t, err)
	return e
}

func asWallet(id wallet.Identity) context.Context {
	return wallet.With(context.Background(), id)
}
