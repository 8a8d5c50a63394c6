package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Mindburn-Labs/productledger/pkg/retry"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// Backend is what EthLedger needs from a node connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EthLedger talks to the product contract over JSON-RPC.
type EthLedger struct {
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
	signers  SignerProvider
	reads    *retry.Strategy
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

type Options struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	ABI             abi.ABI
	Signers         SignerProvider
}

// Dial connects to the node and checks it serves the expected chain.
func Dial(ctx context.Context, opts Options) (*EthLedger, *ethclient.Client, error) {
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, nil, fmt.Errorf("invalid contract address %q", opts.ContractAddress)
	}
	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", opts.RPCURL, err)
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("query chain id: %w", err)
	}
	if remote.Int64() != opts.ChainID {
		client.Close()
		return nil, nil, fmt.Errorf("chain id mismatch: node %s, configured %d", remote, opts.ChainID)
	}
	l := NewEthLedger(client, common.HexToAddress(opts.ContractAddress), opts.ABI, big.NewInt(opts.ChainID), opts.Signers)
	return l, client, nil
}

func NewEthLedger(backend Backend, address common.Address, contractABI abi.ABI, chainID *big.Int, signers SignerProvider) *EthLedger {
	return &EthLedger{
		backend:  backend,
		contract: bind.NewBoundContract(address, contractABI, backend, backend, backend),
		address:  address,
		chainID:  chainID,
		signers:  signers,
		reads:    retry.NewStrategy(retry.DefaultReadPolicy),
		logger:   slog.Default().With("component", "ledger", "contract", address.Hex()),
		locks:    make(map[common.Address]*sync.Mutex),
	}
}

func (l *EthLedger) Address() common.Address { return l.address }

// Read performs a view call. Reads are side-effect free and retried on transport errors.
func (l *EthLedger) Read(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	err := l.reads.Execute(ctx, method, func(ctx context.Context) error {
		out = nil
		return l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", method, err)
	}
	return out, nil
}

// Submit signs call as from and broadcasts it. It is never retried.
func (l *EthLedger) Submit(ctx context.Context, from wallet.Identity, call Call) (*PendingTx, error) {
	if !common.IsHexAddress(string(from)) {
		return nil, fmt.Errorf("submit %s: invalid wallet %q", call.Method, from)
	}
	sender := common.HexToAddress(string(from))

	opts, err := l.signers.TransactOpts(ctx, sender, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", call.Method, err)
	}
	opts.Value = call.Value

	// Nonce assignment and broadcast must not interleave for one sender.
	lock := l.senderLock(sender)
	lock.Lock()
	tx, err := l.contract.Transact(opts, call.Method, call.Args...)
	lock.Unlock()
	if err != nil {
		reason := revertReason(err)
		l.logger.WarnContext(ctx, "submit rejected", "method", call.Method, "from", sender.Hex(), "reason", reason)
		return nil, &RejectedError{Method: call.Method, Reason: reason, Err: err}
	}

	l.logger.InfoContext(ctx, "submitted", "method", call.Method, "tx_hash", tx.Hash().Hex(), "nonce", tx.Nonce())
	return &PendingTx{Hash: tx.Hash().Hex(), Method: call.Method, From: sender, Tx: tx}, nil
}

// Confirm blocks until tx is mined or ctx ends. It sets no deadline of its own.
func (l *EthLedger) Confirm(ctx context.Context, p *PendingTx) (*Receipt, error) {
	if p == nil || p.Tx == nil {
		return nil, errors.New("confirm: no transaction")
	}
	rcpt, err := bind.WaitMined(ctx, l.backend, p.Tx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &PendingError{TxHash: p.Hash, Err: ctx.Err()}
		}
		return nil, fmt.Errorf("confirm %s: %w", p.Hash, err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, &RejectedError{Method: p.Method, TxHash: p.Hash, Reason: "execution reverted"}
	}

	var block uint64
	if rcpt.BlockNumber != nil {
		block = rcpt.BlockNumber.Uint64()
	}
	return &Receipt{TxHash: rcpt.TxHash.Hex(), BlockNumber: block, Logs: rcpt.Logs}, nil
}

func (l *EthLedger) senderLock(a common.Address) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[a]
	if !ok {
		m = &sync.Mutex{}
		l.locks[a] = m
	}
	return m
}
