package products

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
	"github.com/Mindburn-Labs/productledger/pkg/reconcile"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

func mintShoe(t *testing.T, e *env) *MintResult {
	t.Helper()
	res, err := e.coord.Mint(asWallet(walletW), MintRequest{
		Name:     "Shoe",
		Price:    decimal.RequireFromString("19.5"),
		Quantity: 5,
		Amount:   5,
		Status:   "available",
	})
	require.NoError(t, err)
	return res
}

func TestMint_RunsFullPipeline(t *testing.T) {
	e := newEnv(t, nil)

	res := mintShoe(t, e)
	require.NotZero(t, res.TokenID)
	assert.Equal(t, []string{chain.MethodMintProduct, chain.MethodStoreEventCID}, e.ledger.methods())

	mint := e.ledger.sentFor(chain.MethodMintProduct)[0]
	assert.Equal(t, walletW, mint.From)
	assert.Equal(t, chain.U256(uint64(res.TokenID)), mint.Call.Args[0])
	assert.Equal(t, chain.U256(5), mint.Call.Args[1])
	assert.Equal(t, res.MetadataURL, mint.Call.Args[2])
	assert.Equal(t, "19.50", mint.Call.Args[3])
	assert.Equal(t, "available", mint.Call.Args[5])

	require.NotNil(t, res.Tx.Event)
	assert.Equal(t, chain.ActionMint, res.Tx.Event.Action)
	assert.Equal(t, uint64(res.TokenID), res.Tx.Event.TokenID)
	assert.Equal(t, StageComplete, res.Tx.Stage)

	xref := e.ledger.sentFor(chain.MethodStoreEventCID)[0]
	assert.Equal(t, walletW, xref.From)
	assert.Equal(t, res.Tx.ArchiveURL, xref.Call.Args[1])
	assert.Equal(t, []string{res.Tx.ArchiveURL}, e.ledger.registry[res.TokenID])

	raw, err := e.store.Fetch(context.Background(), res.Tx.ArchiveURL)
	require.NoError(t, err)
	rec, err := ParseArchivedRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, res.Tx.TxHash, rec.TransactionHash)
	assert.Equal(t, chain.ActionMint, rec.Event.Action)
}

func TestMint_SplitsAssetsAndKeepsOrder(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.coord.Mint(asWallet(walletW), MintRequest{
		Name:     "Jacket",
		Price:    decimal.NewFromInt(120),
		Quantity: 2,
		Assets: []Asset{
			{Filename: "front.png", ContentType: "image/png", Data: []byte("front")},
			{Filename: "care.pdf", ContentType: "application/pdf", Data: []byte("care")},
			{Filename: "back.jpg", ContentType: "image/jpeg", Data: []byte("back")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, CIDList{contentstore.ComputeCID([]byte("front")), contentstore.ComputeCID([]byte("back"))}, res.Metadata.ImageCIDs)
	assert.Equal(t, CIDList{contentstore.ComputeCID([]byte("care"))}, res.Metadata.FileCIDs)
	assert.Equal(t, string(walletW), res.Metadata.Creator)
	// Amount defaults to quantity; status defaults to available.
	mint := e.ledger.sentFor(chain.MethodMintProduct)[0]
	assert.Equal(t, chain.U256(2), mint.Call.Args[1])
	assert.Equal(t, "120.00", mint.Call.Args[3])
	assert.Equal(t, DefaultStatus, mint.Call.Args[5])
}

func TestMint_RedrawsOnDuplicateID(t *testing.T) {
	e := newEnv(t, &sequenceIDs{next: []TokenID{100, 101}})
	e.ledger.rejects[chain.MethodMintProduct] = []string{"Token already exists"}

	res := mintShoe(t, e)
	assert.Equal(t, TokenID(101), res.TokenID)
	assert.Len(t, e.ledger.sentFor(chain.MethodMintProduct), 1)
}

func TestMint_GivesUpAfterRepeatedCollisions(t *testing.T) {
	e := newEnv(t, &sequenceIDs{next: []TokenID{1, 2, 3, 4}})
	e.ledger.rejects[chain.MethodMintProduct] = []string{"Token already exists", "Token already exists", "Token already exists"}

	_, err := e.coord.Mint(asWallet(walletW), MintRequest{Name: "Shoe", Price: decimal.NewFromInt(1), Quantity: 1})
	require.ErrorIs(t, err, ErrIdentityCollision)
	require.ErrorIs(t, err, chain.ErrLedgerRejected)
	assert.Empty(t, e.ledger.methods())
}

func TestMint_OtherRejectionIsNotRetried(t *testing.T) {
	e := newEnv(t, &sequenceIDs{next: []TokenID{1, 2}})
	e.ledger.rejects[chain.MethodMintProduct] = []string{"Price must not be empty"}

	_, err := e.coord.Mint(asWallet(walletW), MintRequest{Name: "Shoe", Price: decimal.NewFromInt(1), Quantity: 1})
	require.ErrorIs(t, err, chain.ErrLedgerRejected)
	assert.Equal(t, "Price must not be empty", chain.RejectionReason(err))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindSubmitFailed, oe.Kind)
	assert.Equal(t, []TokenID{1}, oe.TokenIDs)
}

func TestMint_MissingTokenRevertIsNotRedrawn(t *testing.T) {
	e := newEnv(t, &sequenceIDs{next: []TokenID{1, 2}})
	e.ledger.rejects[chain.MethodMintProduct] = []string{"Token does not exist"}

	_, err := e.coord.Mint(asWallet(walletW), MintRequest{Name: "Shoe", Price: decimal.NewFromInt(1), Quantity: 1})
	require.ErrorIs(t, err, chain.ErrLedgerRejected)
	assert.NotErrorIs(t, err, ErrIdentityCollision)
	assert.Empty(t, e.ledger.rejects[chain.MethodMintProduct])
	assert.Empty(t, e.ledger.sentFor(chain.MethodMintProduct))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, []TokenID{1}, oe.TokenIDs)
}

func TestMint_StoreDownBeforeSubmitIsHardFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.store.setDown(true)

	_, err := e.coord.Mint(asWallet(walletW), MintRequest{Name: "Shoe", Price: decimal.NewFromInt(1), Quantity: 1})
	require.ErrorIs(t, err, contentstore.ErrStoreUnavailable)
	assert.False(t, IsPartialSuccess(err))
	assert.Empty(t, e.ledger.methods())
}

func TestUpdatePrice_RejectedByLedgerSkipsArchive(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.rejects[chain.MethodUpdatePrice] = []string{"Caller is not the owner"}

	res, err := e.coord.UpdatePrice(asWallet(walletW), 123, decimal.RequireFromString("25.00"))
	require.Nil(t, res)
	require.ErrorIs(t, err, chain.ErrLedgerRejected)
	assert.Equal(t, "Caller is not the owner", chain.RejectionReason(err))
	assert.False(t, IsPartialSuccess(err))
	assert.Zero(t, e.store.uploadCount())
	assert.Empty(t, e.ledger.methods())
}

func TestUpdatePrice_FormatsTwoDecimals(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.coord.UpdatePrice(asWallet(walletW), 7, decimal.RequireFromString("19.999"))
	require.NoError(t, err)
	assert.Equal(t, chain.ActionUpdatePrice, res.Event.Action)
	assert.Equal(t, "20.00", e.ledger.sentFor(chain.MethodUpdatePrice)[0].Call.Args[1])
}

func TestBurn_StoreDownDuringArchiveIsPartialSuccess(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.balances[123] = big.NewInt(3)
	e.store.setDown(true)

	res, err := e.coord.Burn(asWallet(walletW), 123)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, IsPartialSuccess(err))
	assert.ErrorIs(t, err, contentstore.ErrStoreUnavailable)

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindArchiveFailed, oe.Kind)
	assert.Equal(t, []TokenID{123}, oe.TokenIDs)
	assert.Equal(t, res.TxHash, oe.TxHash)

	burn := e.ledger.sentFor(chain.MethodBurnProduct)
	require.Len(t, burn, 1)
	assert.Equal(t, big.NewInt(3), burn[0].Call.Args[1])
	assert.Empty(t, e.ledger.sentFor(chain.MethodStoreEventCID))

	entry, err := e.queue.Get(context.Background(), reconcile.EntryID(res.TxHash, 123))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatePending, entry.State)
	assert.Empty(t, entry.ArchiveURL)
	assert.Equal(t, string(walletW), entry.Wallet)

	rec, err := ParseArchivedRecord(entry.Record)
	require.NoError(t, err)
	assert.Equal(t, chain.ActionBurn, rec.Event.Action)
}

func TestBurn_ZeroBalanceNeverSubmits(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.coord.Burn(asWallet(walletW), 55)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrNothingToBurn)
	assert.Empty(t, e.ledger.methods())
}

func TestCrossReference_PendingConfirmationQueuesBlockedEntry(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.pending[chain.MethodStoreEventCID] = true

	res, err := e.coord.UpdateStatus(asWallet(walletW), 9, "sold-out")
	require.NotNil(t, res)
	assert.True(t, IsPartialSuccess(err))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindCrossReferenceFailed, oe.Kind)
	assert.Equal(t, StageArchived, oe.Stage)
	assert.NotEmpty(t, res.ArchiveURL)

	entry, err := e.queue.Get(context.Background(), reconcile.EntryID(res.TxHash, 9))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateBlocked, entry.State)
	assert.Equal(t, res.ArchiveURL, entry.ArchiveURL)
}

func TestCrossReference_RejectedQueuesPendingEntry(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.rejects[chain.MethodStoreEventCID] = []string{"nonce too low"}

	res, err := e.coord.UpdateQuantity(asWallet(walletW), 9, 40)
	require.NotNil(t, res)
	assert.True(t, IsPartialSuccess(err))

	entry, err := e.queue.Get(context.Background(), reconcile.EntryID(res.TxHash, 9))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatePending, entry.State)
}

func TestConfirmTimeoutIsPendingNotFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.pending[chain.MethodUpdateQuantity] = true

	res, err := e.coord.UpdateQuantity(asWallet(walletW), 9, 3)
	assert.Nil(t, res)
	assert.True(t, IsPending(err))
	assert.ErrorIs(t, err, chain.ErrPendingIndefinitely)
	assert.False(t, IsPartialSuccess(err))
	assert.Zero(t, e.store.uploadCount())
	assert.Equal(t, []string{chain.MethodUpdateQuantity}, e.ledger.methods())
}

func TestMissingEventArchivesNullEvent(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.noEvent[chain.MethodUpdateStatus] = true

	res, err := e.coord.UpdateStatus(asWallet(walletW), 4, "retired")
	require.NoError(t, err)
	assert.Nil(t, res.Event)
	assert.Equal(t, StageComplete, res.Stage)

	raw, err := e.store.Fetch(context.Background(), res.ArchiveURL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":null,"operation":"updateStatus","transactionHash":"`+res.TxHash+`"}`, string(raw))
}

func TestMutationsRequireWallet(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.coord.UpdateStatus(ctx, 1, "retired")
	assert.ErrorIs(t, err, wallet.ErrNoWalletBound)
	_, err = e.coord.Burn(ctx, 1)
	assert.ErrorIs(t, err, wallet.ErrNoWalletBound)
	_, err = e.coord.Mint(ctx, MintRequest{Name: "x", Quantity: 1})
	assert.ErrorIs(t, err, wallet.ErrNoWalletBound)
	assert.Empty(t, e.ledger.methods())
}

func TestConcurrentCallersSignAsThemselves(t *testing.T) {
	e := newEnv(t, nil)
	other := wallet.Identity("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	done := make(chan error, 2)
	go func() {
		_, err := e.coord.UpdateStatus(asWallet(walletW), 1, "available")
		done <- err
	}()
	go func() {
		_, err := e.coord.UpdateStatus(asWallet(other), 2, "retired")
		done <- err
	}()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	for _, tx := range e.ledger.sentFor(chain.MethodUpdateStatus) {
		switch tx.Call.Args[0].(*big.Int).Uint64() {
		case 1:
			assert.Equal(t, walletW, tx.From)
		case 2:
			assert.Equal(t, other, tx.From)
		}
	}
}

func TestUpdateMetadata_AppendsNewAssets(t *testing.T) {
	e := newEnv(t, nil)
	existing := contentstore.ComputeCID([]byte("old-image"))

	res, err := e.coord.UpdateMetadata(asWallet(walletW), 77, MetadataUpdate{
		Name:      "Shoe v2",
		Status:    "available",
		ImageCIDs: CIDList{existing},
		NewAssets: []Asset{
			{Filename: "new.png", ContentType: "image/png", Data: []byte("new-image")},
			{Filename: "manual.txt", ContentType: "text/plain", Data: []byte("manual")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, CIDList{existing, contentstore.ComputeCID([]byte("new-image"))}, res.Metadata.ImageCIDs)
	assert.Equal(t, CIDList{contentstore.ComputeCID([]byte("manual"))}, res.Metadata.FileCIDs)
	assert.Equal(t, "available", res.Metadata.Status)

	upd := e.ledger.sentFor(chain.MethodUpdateMetadata)[0]
	assert.Equal(t, string(res.MetadataCID), upd.Call.Args[1])
	assert.Equal(t, chain.ActionUpdateMetadata, res.Tx.Event.Action)

	raw, err := e.store.Fetch(context.Background(), res.MetadataURL)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"Shoe v2"`)
}

func TestBuy_CrossReferencesEveryTokenThenNotifies(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.coord.Buy(asWallet(walletW), BuyRequest{
		TokenIDs:   []TokenID{11, 12},
		Amounts:    []uint64{1, 2},
		TotalPrice: decimal.RequireFromString("0.5"),
		Email:      "buyer@example.com",
	})
	require.NoError(t, err)

	buy := e.ledger.sentFor(chain.MethodBuyTokens)
	require.Len(t, buy, 1)
	wei, _ := new(big.Int).SetString("500000000000000000", 10)
	assert.Equal(t, wei, buy[0].Call.Value)
	assert.Equal(t, wei, buy[0].Call.Args[2])

	xrefs := e.ledger.sentFor(chain.MethodStoreEventCID)
	require.Len(t, xrefs, 2)
	assert.Equal(t, res.ArchiveURL, xrefs[0].Call.Args[1])
	assert.Equal(t, res.ArchiveURL, xrefs[1].Call.Args[1])
	assert.Len(t, res.CrossRefTxs, 2)

	require.Len(t, e.notifier.notices, 1)
	n := e.notifier.notices[0]
	assert.Equal(t, "buyer@example.com", n.Email)
	assert.Equal(t, []uint64{11, 12}, n.TokenIDs)
	assert.Equal(t, res.ArchiveURL, n.ArchiveURL)
	assert.Equal(t, "https://explorer.local/tx/"+res.TxHash, n.ExplorerURL)
}

func TestBuy_NoReceiptWhenAuditIncomplete(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.rejects[chain.MethodStoreEventCID] = []string{"out of gas"}

	res, err := e.coord.Buy(asWallet(walletW), BuyRequest{
		TokenIDs:   []TokenID{11, 12},
		Amounts:    []uint64{1, 1},
		TotalPrice: decimal.NewFromInt(1),
		Email:      "buyer@example.com",
	})
	require.NotNil(t, res)
	assert.True(t, IsPartialSuccess(err))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, []TokenID{11}, oe.TokenIDs)
	assert.Len(t, e.ledger.sentFor(chain.MethodStoreEventCID), 1)
	assert.Empty(t, e.notifier.notices)
}

func TestBuy_Validation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := asWallet(walletW)

	cases := []BuyRequest{
		{},
		{TokenIDs: []TokenID{1}, Amounts: []uint64{1, 2}, TotalPrice: decimal.NewFromInt(1)},
		{TokenIDs: []TokenID{1}, Amounts: []uint64{0}, TotalPrice: decimal.NewFromInt(1)},
		{TokenIDs: []TokenID{1}, Amounts: []uint64{1}, TotalPrice: decimal.Zero},
		{TokenIDs: []TokenID{1}, Amounts: []uint64{1}, TotalPrice: decimal.RequireFromString("0.0000000000000000001")},
	}
	for _, req := range cases {
		_, err := e.coord.Buy(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, e.ledger.methods())
}

func TestBuy_InsufficientBalance(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.rejects[chain.MethodBuyTokens] = []string{"Insufficient payment"}

	_, err := e.coord.Buy(asWallet(walletW), BuyRequest{
		TokenIDs: []TokenID{1}, Amounts: []uint64{1}, TotalPrice: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorIs(t, err, chain.ErrLedgerRejected)
}

func TestBuy_InsufficientBalanceAfterMining(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.reverts[chain.MethodBuyTokens] = "Insufficient payment"

	_, err := e.coord.Buy(asWallet(walletW), BuyRequest{
		TokenIDs: []TokenID{1}, Amounts: []uint64{1}, TotalPrice: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorIs(t, err, chain.ErrLedgerRejected)

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, StageSubmitted, oe.Stage)
	assert.NotEmpty(t, oe.TxHash)
	assert.Equal(t, []string{chain.MethodBuyTokens}, e.ledger.methods())
}

func TestOpError_Message(t *testing.T) {
	err := &OpError{
		Op: "burnProduct", TokenIDs: []TokenID{123}, Stage: StageEventDecoded,
		Kind: KindArchiveFailed, TxHash: "0xabc", Err: errors.New("store offline"),
	}
	assert.Equal(t, "burnProduct [123]: archive_failed after event_decoded (tx 0xabc): store offline", err.Error())
}
