package products

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

// ProductState is the on-chain record of a product.
type ProductState struct {
	TokenID  TokenID `json:"tokenId"`
	Metadata string  `json:"metadata"`
	Price    string  `json:"price"`
	Quantity uint64  `json:"quantity"`
	Status   string  `json:"status"`
	Owner    string  `json:"owner"`
}

func (c *Coordinator) GetProductInfo(ctx context.Context, id TokenID) (*ProductState, error) {
	out, err := c.ledger.Read(ctx, chain.MethodGetProductInfo, chain.U256(uint64(id)))
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	st := &ProductState{TokenID: id}
	if st.Metadata, err = chain.OutString(out, 0); err != nil {
		return nil, err
	}
	if st.Price, err = chain.OutString(out, 1); err != nil {
		return nil, err
	}
	if st.Quantity, err = chain.OutUint64(out, 2); err != nil {
		return nil, err
	}
	if st.Status, err = chain.OutString(out, 3); err != nil {
		return nil, err
	}
	owner, err := chain.OutAddress(out, 4)
	if err != nil {
		return nil, err
	}
	st.Owner = owner.Hex()
	return st, nil
}

// GetAllTokenIDs lists every token in ascending order.
func (c *Coordinator) GetAllTokenIDs(ctx context.Context) ([]TokenID, error) {
	out, err := c.ledger.Read(ctx, chain.MethodGetAllTokenIDs)
	if err != nil {
		return nil, err
	}
	raw, err := chain.OutUint64s(out, 1)
	if err != nil {
		return nil, err
	}
	ids := make([]TokenID, len(raw))
	for i, v := range raw {
		ids[i] = TokenID(v)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *Coordinator) GetTokenOwners(ctx context.Context, id TokenID) ([]string, error) {
	out, err := c.ledger.Read(ctx, chain.MethodGetTokenOwners, chain.U256(uint64(id)))
	if err != nil {
		return nil, err
	}
	addrs, err := chain.OutAddresses(out, 0)
	if err != nil {
		return nil, err
	}
	owners := make([]string, len(addrs))
	for i, a := range addrs {
		owners[i] = a.Hex()
	}
	return owners, nil
}

func (c *Coordinator) GetTokenBalance(ctx context.Context, holder wallet.Identity, id TokenID) (*big.Int, error) {
	if !common.IsHexAddress(string(holder)) {
		return nil, fmt.Errorf("%w: wallet %q", ErrInvalidRequest, holder)
	}
	out, err := c.ledger.Read(ctx, chain.MethodBalanceOf, common.HexToAddress(string(holder)), chain.U256(uint64(id)))
	if err != nil {
		return nil, err
	}
	return chain.OutBig(out, 0)
}

// GetMetadataURL returns where the token's current metadata can be fetched. A bare
// CID on the ledger is resolved through the content store.
func (c *Coordinator) GetMetadataURL(ctx context.Context, id TokenID) (string, error) {
	out, err := c.ledger.Read(ctx, chain.MethodGetMetadataCID, chain.U256(uint64(id)))
	if err != nil {
		return "", err
	}
	ref, err := chain.OutString(out, 0)
	if err != nil {
		return "", err
	}
	if _, err := contentstore.CID(ref).Digest(); err == nil {
		return c.store.Resolve(contentstore.CID(ref))
	}
	return ref, nil
}
