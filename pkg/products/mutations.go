package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/notify"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

const (
	// DefaultStatus is assigned to newly minted products.
	DefaultStatus = "available"

	maxMintDraws = 3
)

type MintRequest struct {
	Name        string
	Description string
	Brand       string
	Category    string
	Size        string
	Price       decimal.Decimal
	Quantity    uint64
	// Amount of tokens minted to the creator. Zero means Quantity.
	Amount uint64
	Status string
	Assets []Asset
}

type MintResult struct {
	TokenID     TokenID          `json:"tokenId"`
	Metadata    *ProductMetadata `json:"metadata"`
	MetadataURL string           `json:"metadataUrl"`
	Tx          *TxResult        `json:"transaction"`
}

// Mint creates a product token owned by the context wallet. A result is returned
// whenever the mint confirmed, even if archiving or cross-referencing failed.
func (c *Coordinator) Mint(ctx context.Context, req MintRequest) (res *MintResult, err error) {
	const op = chain.MethodMintProduct
	ctx, done := c.track(ctx, op, nil)
	defer func() { done(err) }()

	from, err := wallet.From(ctx)
	if err != nil {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: fmt.Errorf("%w: name is required", ErrInvalidRequest)}
	}
	if req.Price.IsNegative() {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: fmt.Errorf("%w: negative price", ErrInvalidRequest)}
	}
	amount := req.Amount
	if amount == 0 {
		amount = req.Quantity
	}
	if amount == 0 {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)}
	}
	status := req.Status
	if status == "" {
		status = DefaultStatus
	}

	images, files := splitAssets(req.Assets)
	imageCIDs, err := c.uploadAssets(ctx, images)
	if err != nil {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	fileCIDs, err := c.uploadAssets(ctx, files)
	if err != nil {
		return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}

	for attempt := 1; ; attempt++ {
		id, err := c.ids.Next(ctx)
		if err != nil {
			return nil, &OpError{Op: op, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
		}
		ids := []TokenID{id}

		meta := &ProductMetadata{
			ID:          id,
			Name:        req.Name,
			Description: req.Description,
			Brand:       req.Brand,
			Category:    req.Category,
			Size:        req.Size,
			ImageCIDs:   imageCIDs,
			FileCIDs:    fileCIDs,
			Creator:     string(from),
		}
		_, metaURL, err := c.uploadMetadata(ctx, meta)
		if err != nil {
			return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
		}

		p, err := c.submit(ctx, op, from, ids, chain.Call{
			Method: chain.MethodMintProduct,
			Args: []any{
				chain.U256(uint64(id)),
				chain.U256(amount),
				metaURL,
				FormatPrice(req.Price),
				chain.U256(req.Quantity),
				status,
			},
		})
		if err != nil {
			if !isDuplicateID(err) {
				return nil, err
			}
			if attempt >= maxMintDraws {
				return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindSubmitFailed, Err: fmt.Errorf("%w: %w", ErrIdentityCollision, err)}
			}
			c.logger.WarnContext(ctx, "token id already exists, redrawing", "token_id", uint64(id), "attempt", attempt)
			continue
		}

		tx, err := c.settle(ctx, op, chain.ActionMint, from, ids, p)
		if tx == nil {
			return nil, err
		}
		return &MintResult{TokenID: id, Metadata: meta, MetadataURL: metaURL, Tx: tx}, err
	}
}

// Rejections at gas estimation happen before broadcast, so redrawing is safe.
// Only the contract's duplicate-id revert ("Token already exists") qualifies.
func isDuplicateID(err error) bool {
	return errors.Is(err, chain.ErrLedgerRejected) &&
		strings.Contains(strings.ToLower(chain.RejectionReason(err)), "already exist")
}

type MetadataUpdate struct {
	Name        string
	Description string
	Brand       string
	Category    string
	Size        string
	Status      string
	ImageCIDs   CIDList
	FileCIDs    CIDList
	NewAssets   []Asset
}

type MetadataResult struct {
	Metadata    *ProductMetadata `json:"metadata"`
	MetadataCID contentstore.CID `json:"metadataCid"`
	MetadataURL string           `json:"metadataUrl"`
	Tx          *TxResult        `json:"transaction"`
}

// UpdateMetadata uploads a complete new metadata object, keeping the given CIDs
// and appending any newly uploaded assets, and points the token at it.
func (c *Coordinator) UpdateMetadata(ctx context.Context, id TokenID, upd MetadataUpdate) (res *MetadataResult, err error) {
	const op = chain.MethodUpdateMetadata
	ids := []TokenID{id}
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	from, err := wallet.From(ctx)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}

	images, files := splitAssets(upd.NewAssets)
	newImages, err := c.uploadAssets(ctx, images)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	newFiles, err := c.uploadAssets(ctx, files)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}

	meta := &ProductMetadata{
		ID:          id,
		Name:        upd.Name,
		Description: upd.Description,
		Brand:       upd.Brand,
		Category:    upd.Category,
		Size:        upd.Size,
		Status:      upd.Status,
		ImageCIDs:   append(append(CIDList{}, upd.ImageCIDs...), newImages...),
		FileCIDs:    append(append(CIDList{}, upd.FileCIDs...), newFiles...),
		Creator:     string(from),
	}
	cid, url, err := c.uploadMetadata(ctx, meta)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}

	tx, err := c.mutate(ctx, op, chain.ActionUpdateMetadata, ids, chain.Call{
		Method: chain.MethodUpdateMetadata,
		Args:   []any{chain.U256(uint64(id)), string(cid)},
	})
	if tx == nil {
		return nil, err
	}
	return &MetadataResult{Metadata: meta, MetadataCID: cid, MetadataURL: url, Tx: tx}, err
}

// UpdatePrice stores price with two decimals.
func (c *Coordinator) UpdatePrice(ctx context.Context, id TokenID, price decimal.Decimal) (res *TxResult, err error) {
	const op = chain.MethodUpdatePrice
	ids := []TokenID{id}
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	if price.IsNegative() {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: fmt.Errorf("%w: negative price", ErrInvalidRequest)}
	}
	return c.mutate(ctx, op, chain.ActionUpdatePrice, ids, chain.Call{
		Method: chain.MethodUpdatePrice,
		Args:   []any{chain.U256(uint64(id)), FormatPrice(price)},
	})
}

func (c *Coordinator) UpdateQuantity(ctx context.Context, id TokenID, quantity uint64) (res *TxResult, err error) {
	const op = chain.MethodUpdateQuantity
	ids := []TokenID{id}
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	return c.mutate(ctx, op, chain.ActionUpdateQuantity, ids, chain.Call{
		Method: chain.MethodUpdateQuantity,
		Args:   []any{chain.U256(uint64(id)), chain.U256(quantity)},
	})
}

func (c *Coordinator) UpdateStatus(ctx context.Context, id TokenID, status string) (res *TxResult, err error) {
	const op = chain.MethodUpdateStatus
	ids := []TokenID{id}
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	if strings.TrimSpace(status) == "" {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: fmt.Errorf("%w: status is required", ErrInvalidRequest)}
	}
	return c.mutate(ctx, op, chain.ActionUpdateStatus, ids, chain.Call{
		Method: chain.MethodUpdateStatus,
		Args:   []any{chain.U256(uint64(id)), status},
	})
}

// Burn destroys the context wallet's entire balance of id.
func (c *Coordinator) Burn(ctx context.Context, id TokenID) (res *TxResult, err error) {
	const op = chain.MethodBurnProduct
	ids := []TokenID{id}
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	from, err := wallet.From(ctx)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	out, err := c.ledger.Read(ctx, chain.MethodBalanceOf, common.HexToAddress(string(from)), chain.U256(uint64(id)))
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	balance, err := chain.OutBig(out, 0)
	if err != nil {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	if balance.Sign() <= 0 {
		return nil, &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: ErrNothingToBurn}
	}

	p, err := c.submit(ctx, op, from, ids, chain.Call{
		Method: chain.MethodBurnProduct,
		Args:   []any{chain.U256(uint64(id)), balance},
	})
	if err != nil {
		return nil, err
	}
	return c.settle(ctx, op, chain.ActionBurn, from, ids, p)
}

type BuyRequest struct {
	TokenIDs   []TokenID
	Amounts    []uint64
	TotalPrice decimal.Decimal // in ether
	Email      string
}

// Buy purchases several tokens in one payable call. The receipt is mailed only
// when every token's audit pointer was registered.
func (c *Coordinator) Buy(ctx context.Context, req BuyRequest) (res *TxResult, err error) {
	const op = chain.MethodBuyTokens
	ids := req.TokenIDs
	ctx, done := c.track(ctx, op, ids)
	defer func() { done(err) }()

	precondition := func(err error) error {
		return &OpError{Op: op, TokenIDs: ids, Stage: StageDrafted, Kind: KindPrecondition, Err: err}
	}
	from, err := wallet.From(ctx)
	if err != nil {
		return nil, precondition(err)
	}
	if len(ids) == 0 || len(ids) != len(req.Amounts) {
		return nil, precondition(fmt.Errorf("%w: %d token ids and %d amounts", ErrInvalidRequest, len(ids), len(req.Amounts)))
	}
	for i, a := range req.Amounts {
		if a == 0 {
			return nil, precondition(fmt.Errorf("%w: zero amount for token %d", ErrInvalidRequest, ids[i]))
		}
	}
	wei, err := ToWei(req.TotalPrice)
	if err != nil {
		return nil, precondition(err)
	}

	p, err := c.submit(ctx, op, from, ids, chain.Call{
		Method: chain.MethodBuyTokens,
		Args:   []any{chain.U256s(uint64s(ids)), chain.U256s(req.Amounts), wei},
		Value:  wei,
	})
	if err != nil {
		return nil, wrapInsufficient(err)
	}

	tx, err := c.settle(ctx, op, chain.ActionBuy, from, ids, p)
	if err != nil {
		return tx, wrapInsufficient(err)
	}

	if req.Email != "" {
		notice := notify.Notice{
			Email:      req.Email,
			Buyer:      from,
			TxHash:     tx.TxHash,
			ArchiveURL: tx.ArchiveURL,
			TokenIDs:   uint64s(ids),
			Amounts:    req.Amounts,
			TotalPrice: req.TotalPrice.String(),
		}
		if c.explorer != "" {
			notice.ExplorerURL = c.explorer + tx.TxHash
		}
		if err := c.notifier.Send(ctx, notice); err != nil {
			c.logger.ErrorContext(ctx, "purchase receipt not sent", "tx_hash", tx.TxHash, "error", err)
		}
	}
	return tx, nil
}

// wrapInsufficient marks a payment revert, at estimation or after mining, with
// ErrInsufficientBalance.
func wrapInsufficient(err error) error {
	if !strings.Contains(strings.ToLower(chain.RejectionReason(err)), "insufficient") {
		return err
	}
	var oe *OpError
	if errors.As(err, &oe) && oe.Kind == KindSubmitFailed {
		oe.Err = fmt.Errorf("%w: %w", ErrInsufficientBalance, oe.Err)
	}
	return err
}

func (c *Coordinator) uploadAssets(ctx context.Context, assets []Asset) (CIDList, error) {
	out := make(CIDList, 0, len(assets))
	for _, a := range assets {
		cid, err := c.store.Upload(ctx, a.Data)
		if err != nil {
			return nil, fmt.Errorf("upload asset %q: %w", a.Filename, err)
		}
		out = append(out, cid)
	}
	return out, nil
}

func (c *Coordinator) uploadMetadata(ctx context.Context, meta *ProductMetadata) (contentstore.CID, string, error) {
	meta.normalize()
	raw, err := contentstore.Canonical(meta)
	if err != nil {
		return "", "", err
	}
	cid, err := c.store.Upload(ctx, raw)
	if err != nil {
		return "", "", fmt.Errorf("upload metadata: %w", err)
	}
	url, err := c.store.Resolve(cid)
	if err != nil {
		return "", "", err
	}
	return cid, url, nil
}
