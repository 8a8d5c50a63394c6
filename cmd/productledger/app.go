package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Mindburn-Labs/productledger/pkg/api"
	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/config"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/notify"
	"github.com/Mindburn-Labs/productledger/pkg/observability"
	"github.com/Mindburn-Labs/productledger/pkg/products"
	"github.com/Mindburn-Labs/productledger/pkg/reconcile"
	"github.com/Mindburn-Labs/productledger/pkg/reservation"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

var _ api.Products = (*products.Coordinator)(nil)

// app holds the wired subsystems shared by serve, reconcile and audit.
type app struct {
	db       *sql.DB
	eth      *ethclient.Client
	ledger   *chain.EthLedger
	store    contentstore.Store
	content  *contentstore.Client
	gateway  *contentstore.Gateway
	queue    *reconcile.SQLQueue
	reserver reservation.Reserver
	obs      *observability.Provider
	issuer   *wallet.TokenIssuer
	coord    *products.Coordinator
	worker   *reconcile.Worker

	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 1. Reconcile queue storage
	if a.db, err = openDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)
	a.queue = reconcile.NewSQLQueue(a.db)
	if err := a.queue.Init(ctx); err != nil {
		return nil, fmt.Errorf("init reconcile queue: %w", err)
	}
	slog.Info("reconcile queue: ready")

	// 2. Ledger
	contractABI := chain.MustDefaultABI()
	if cfg.ContractABIPath != "" {
		if contractABI, err = chain.LoadABI(cfg.ContractABIPath); err != nil {
			return nil, err
		}
	}
	signers, err := buildSigners(cfg)
	if err != nil {
		return nil, err
	}
	a.ledger, a.eth, err = chain.Dial(ctx, chain.Options{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		ChainID:         cfg.ChainID,
		ABI:             contractABI,
		Signers:         signers,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.eth.Close(); return nil })
	decoder := chain.NewDecoder(contractABI).ForContract(a.ledger.Address())
	slog.Info("ledger: connected", "rpc", cfg.RPCURL, "contract", cfg.ContractAddress)

	// 3. Content store
	if a.store, err = contentstore.NewStoreFromEnv(ctx); err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.content = contentstore.NewClient(a.store, cfg.ContentGatewayURL, nil)
	a.gateway = contentstore.NewGateway(a.store)

	// 4. Identity reservation
	if cfg.RedisAddr != "" {
		rr := reservation.NewRedisReserver(cfg.RedisAddr, "", 0, 0, "productledger")
		if err := rr.Ping(ctx); err != nil {
			_ = rr.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, rr.Close)
		a.reserver = rr
	} else {
		a.reserver = reservation.NewMemoryReserver()
	}
	var ids products.IDGenerator = products.NewTimeRandomGenerator(a.reserver)
	if cfg.IDStrategy == "uuid" {
		ids = products.NewUUIDGenerator(a.reserver)
	}

	// 5. Receipts
	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.SMTPHost != "" {
		if notifier, err = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}); err != nil {
			return nil, err
		}
	}

	// 6. Telemetry
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Insecure = true
	if a.obs, err = observability.New(ctx, obsCfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return a.obs.Shutdown(context.Background()) })

	// 7. Coordinator, worker, wallet tokens
	if a.coord, err = products.NewCoordinator(a.ledger, decoder, a.content, products.Options{
		IDs:         ids,
		Notifier:    notifier,
		Reconcile:   a.queue,
		Obs:         a.obs,
		ExplorerURL: cfg.ExplorerURL,
	}); err != nil {
		return nil, err
	}
	opts := reconcile.DefaultWorkerOptions()
	opts.ConfirmTimeout = cfg.ConfirmDeadline
	a.worker = reconcile.NewWorker(a.queue, a.ledger, a.content, opts)

	if a.issuer, err = wallet.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL); err != nil {
		return nil, err
	}
	return a, nil
}

func buildSigners(cfg *config.Config) (chain.SignerProvider, error) {
	if len(cfg.SignerKeys) > 0 {
		return chain.NewKeySigner(cfg.SignerKeys...)
	}
	if cfg.KeystoreDir != "" {
		return chain.NewKeystoreSigner(cfg.KeystoreDir, cfg.KeystorePassword)
	}
	return nil, errors.New("no signing keys configured")
}

func (a *app) registerHealthChecks(s *api.Server) {
	s.AddHealthCheck("database", a.db.PingContext)
	s.AddHealthCheck("ledger", func(ctx context.Context) error {
		_, err := a.eth.BlockNumber(ctx)
		return err
	})
	if rr, ok := a.reserver.(*reservation.RedisReserver); ok {
		s.AddHealthCheck("redis", rr.Ping)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

