package api

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/products"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// Products is the coordinator surface served over HTTP.
type Products interface {
	Mint(ctx context.Context, req products.MintRequest) (*products.MintResult, error)
	UpdateMetadata(ctx context.Context, id products.TokenID, upd products.MetadataUpdate) (*products.MetadataResult, error)
	UpdatePrice(ctx context.Context, id products.TokenID, price decimal.Decimal) (*products.TxResult, error)
	UpdateQuantity(ctx context.Context, id products.TokenID, quantity uint64) (*products.TxResult, error)
	UpdateStatus(ctx context.Context, id products.TokenID, status string) (*products.TxResult, error)
	Burn(ctx context.Context, id products.TokenID) (*products.TxResult, error)
	Buy(ctx context.Context, req products.BuyRequest) (*products.TxResult, error)

	GetProductInfo(ctx context.Context, id products.TokenID) (*products.ProductState, error)
	GetAllTokenIDs(ctx context.Context) ([]products.TokenID, error)
	GetTokenOwners(ctx context.Context, id products.TokenID) ([]string, error)
	GetTokenBalance(ctx context.Context, holder wallet.Identity, id products.TokenID) (*big.Int, error)
	GetMetadataURL(ctx context.Context, id products.TokenID) (string, error)
	GetAuditTrail(ctx context.Context, id products.TokenID) (*products.AuditTrail, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	// ConfirmDeadline bounds how long a mutating request waits for the ledger.
	ConfirmDeadline time.Duration
	MaxUploadBytes  int64
	RateLimit       *RateLimiter
	// Gateway, when set, is mounted at GET /content/{cid}.
	Gateway *contentstore.Gateway
}

type Server struct {
	products Products
	issuer   *wallet.TokenIssuer
	opts     Options
	logger   *slog.Logger

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func NewServer(p Products, issuer *wallet.TokenIssuer, opts Options) *Server {
	if opts.ConfirmDeadline <= 0 {
		opts.ConfirmDeadline = 2 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{
		products: p,
		issuer:   issuer,
		opts:     opts,
		logger:   slog.Default().With("component", "api"),
		checks:   make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency probe for GET /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	authed := WalletMiddleware(s.issuer)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/wallet/connect", s.handleConnect)

	mux.Handle("POST /api/products", protect(s.handleMint))
	mux.Handle("POST /api/products/buy", protect(s.handleBuy))
	mux.Handle("PUT /api/products/{id}/metadata", protect(s.handleUpdateMetadata))
	mux.Handle("PATCH /api/products/{id}/price", protect(s.handleUpdatePrice))
	mux.Handle("PATCH /api/products/{id}/quantity", protect(s.handleUpdateQuantity))
	mux.Handle("PATCH /api/products/{id}/status", protect(s.handleUpdateStatus))
	mux.Handle("DELETE /api/products/{id}", protect(s.handleBurn))

	mux.HandleFunc("GET /api/products", s.handleList)
	mux.HandleFunc("GET /api/products/{id}", s.handleGet)
	mux.HandleFunc("GET /api/products/{id}/owners", s.handleOwners)
	mux.HandleFunc("GET /api/products/{id}/balance", s.handleBalance)
	mux.HandleFunc("GET /api/products/{id}/metadata", s.handleMetadataURL)
	mux.HandleFunc("GET /api/products/{id}/audit", s.handleAudit)

	if s.opts.Gateway != nil {
		s.opts.Gateway.Register(mux)
	}

	var h http.Handler = mux
	if s.opts.RateLimit != nil {
		h = s.opts.RateLimit.Middleware(h)
	}
	return RequestIDMiddleware(h)
}

// mutationContext applies the confirmation deadline. The coordinator sets none.
func (s *Server) mutationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.ConfirmDeadline)
}

// outcome is the body of a 202 for pending or partially recorded mutations.
type outcome struct {
	Status   string               `json:"status"`
	Kind     products.FailureKind `json:"failure,omitempty"`
	Stage    products.Stage       `json:"stage"`
	TokenIDs []products.TokenID   `json:"tokenIds"`
	TxHash   string               `json:"transactionHash,omitempty"`
	Detail   string               `json:"detail"`
	Result   any                  `json:"result,omitempty"`
}

// writeResult maps a coordinator outcome onto HTTP. Partial success and pending
// confirmation are 202s: the request was accepted by the ledger but is not
// fully recorded.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, status int, result any, err error) {
	if err == nil {
		WriteJSON(w, status, result)
		return
	}

	var oe *products.OpError
	errors.As(err, &oe)

	switch {
	case products.IsPartialSuccess(err), products.IsPending(err):
		body := outcome{Status: "partial", Kind: oe.Kind, Stage: oe.Stage, TokenIDs: oe.TokenIDs, TxHash: oe.TxHash, Detail: err.Error(), Result: result}
		if products.IsPending(err) {
			body.Status = "pending"
			body.Result = nil
		}
		s.logger.WarnContext(r.Context(), "mutation accepted but not fully recorded", "status", body.Status, "tx_hash", oe.TxHash, "error", err)
		WriteJSON(w, http.StatusAccepted, body)
	case errors.Is(err, wallet.ErrNoWalletBound):
		WriteUnauthorized(w, err.Error())
	case errors.Is(err, products.ErrInvalidRequest):
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, products.ErrNothingToBurn), errors.Is(err, products.ErrIdentityCollision):
		WriteErrorR(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, chain.ErrLedgerRejected):
		WriteProblem(w, r, &ProblemDetail{
			Status: http.StatusUnprocessableEntity,
			Title:  "Ledger Rejected",
			Detail: err.Error(),
			Reason: chain.RejectionReason(err),
		})
	case errors.Is(err, contentstore.ErrStoreUnavailable):
		WriteErrorR(w, r, http.StatusServiceUnavailable, "Content Store Unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		WriteErrorR(w, r, http.StatusGatewayTimeout, "Gateway Timeout", err.Error())
	default:
		WriteInternal(w, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
}
