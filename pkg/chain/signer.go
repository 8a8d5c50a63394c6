package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// SignerProvider produces transactors for the wallets this process may act as.
type SignerProvider interface {
	TransactOpts(ctx context.Context, from common.Address, chainID *big.Int) (*bind.TransactOpts, error)
	wallet.PayloadSigner
	Addresses() []common.Address
}

// KeySigner holds raw secp256k1 keys in memory.
type KeySigner struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

// NewKeySigner parses hex private keys (with or without 0x).
func NewKeySigner(hexKeys ...string) (*KeySigner, error) {
	s := &KeySigner{keys: make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys))}
	for i, k := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
		if err != nil {
			return nil, fmt.Errorf("signer key %d: %w", i, err)
		}
		s.keys[crypto.PubkeyToAddress(key.PublicKey)] = key
	}
	return s, nil
}

func (s *KeySigner) TransactOpts(ctx context.Context, from common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	key, ok := s.keys[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, from.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// SignPayload produces an EIP-191 personal signature.
func (s *KeySigner) SignPayload(_ context.Context, from wallet.Identity, payload []byte) ([]byte, error) {
	key, ok := s.keys[common.HexToAddress(string(from))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, from)
	}
	return crypto.Sign(accounts.TextHash(payload), key)
}

func (s *KeySigner) Addresses() []common.Address {
	out := make([]common.Address, 0, len(s.keys))
	for a := range s.keys {
		out = append(out, a)
	}
	return out
}

// KeystoreSigner signs with accounts from an encrypted go-ethereum keystore directory.
type KeystoreSigner struct {
	ks *keystore.KeyStore
}

// NewKeystoreSigner opens dir and unlocks every account with password.
func NewKeystoreSigner(dir, password string) (*KeystoreSigner, error) {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	for _, acct := range ks.Accounts() {
		if err := ks.Unlock(acct, password); err != nil {
			return nil, fmt.Errorf("unlock %s: %w", acct.Address.Hex(), err)
		}
	}
	return &KeystoreSigner{ks: ks}, nil
}

func (s *KeystoreSigner) account(from common.Address) (accounts.Account, error) {
	acct, err := s.ks.Find(accounts.Account{Address: from})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %s", ErrUnknownSigner, from.Hex())
	}
	return acct, nil
}

func (s *KeystoreSigner) TransactOpts(ctx context.Context, from common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	acct, err := s.account(from)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.ks, acct, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (s *KeystoreSigner) SignPayload(_ context.Context, from wallet.Identity, payload []byte) ([]byte, error) {
	acct, err := s.account(common.HexToAddress(string(from)))
	if err != nil {
		return nil, err
	}
	return s.ks.SignHash(acct, accounts.TextHash(payload))
}

func (s *KeystoreSigner) Addresses() []common.Address {
	accts := s.ks.Accounts()
	out := make([]common.Address, len(accts))
	for i, a := range accts {
		out[i] = a.Address
	}
	return out
}
