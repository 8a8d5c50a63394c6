// Package wallet carries the acting wallet through a request.
//
// The identity lives only in the request's context.Context. Nothing in this module
// stores it on a shared struct, so concurrent requests from different wallets never
// see each other's identity.
package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoWalletBound is returned when an operation needs a wallet and none is set.
var ErrNoWalletBound = errors.New("no wallet bound to request")

// Identity is a ledger account address, hex encoded with 0x prefix.
type Identity string

func (id Identity) String() string { return string(id) }

// Short renders the identity as its first and last five characters.
func (id Identity) Short() string {
	s := string(id)
	if len(s) <= 10 {
		return s
	}
	return s[:5] + "..." + s[len(s)-5:]
}

// Parse validates s as a ledger address and returns it checksummed.
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", errors.New("invalid wallet address")
	}
	return Identity(common.HexToAddress(s).Hex()), nil
}

type contextKey struct{}

// With binds id to ctx.
func With(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// From returns the identity bound to ctx.
func From(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id == "" {
		return "", ErrNoWalletBound
	}
	return id, nil
}
