package wallet

import (
	"context"
	"fmt"
)

// PayloadSigner signs arbitrary bytes on behalf of a wallet.
type PayloadSigner interface {
	SignPayload(ctx context.Context, from Identity, payload []byte) ([]byte, error)
}

// Sign signs payload as the wallet bound to ctx.
func Sign(ctx context.Context, signer PayloadSigner, payload []byte) ([]byte, error) {
	id, err := From(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignPayload(ctx, id, payload)
	if err != nil {
		return nil, fmt.Errorf("sign as %s: %w", id.Short(), err)
	}
	return sig, nil
}
