package products

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
)

func TestAuditTrail_RoundTripInSubmissionOrder(t *testing.T) {
	e := newEnv(t, nil)
	ctx := asWallet(walletW)

	minted := mintShoe(t, e)
	id := minted.TokenID
	_, err := e.coord.UpdatePrice(ctx, id, decimal.RequireFromString("25"))
	require.NoError(t, err)
	_, err = e.coord.UpdateQuantity(ctx, id, 9)
	require.NoError(t, err)
	_, err = e.coord.UpdateStatus(ctx, id, "sold-out")
	require.NoError(t, err)

	trail, err := e.coord.GetAuditTrail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, trail.Entries, 4)
	assert.True(t, trail.Complete())

	var actions []chain.Action
	for _, rec := range trail.Records() {
		actions = append(actions, rec.Event.Action)
		assert.Equal(t, uint64(id), rec.Event.TokenID)
	}
	assert.Equal(t, []chain.Action{chain.ActionMint, chain.ActionUpdatePrice, chain.ActionUpdateQuantity, chain.ActionUpdateStatus}, actions)
	assert.Equal(t, minted.Tx.TxHash, trail.Entries[0].Record.TransactionHash)
	assert.Contains(t, trail.Entries[0].QRCode, "data:image/png;base64,")
}

func TestAuditTrail_UnavailableEntriesAreReportedNotFatal(t *testing.T) {
	e := newEnv(t, nil)
	ctx := asWallet(walletW)

	minted := mintShoe(t, e)
	id := minted.TokenID

	// A pointer to content that was never stored, and one to a non-record blob.
	missing := e.gateway.URL + "/content/" + string(contentstore.ComputeCID([]byte("gone")))
	junkCID, err := e.blobs.Put(context.Background(), []byte(`{"hello":"world"}`))
	require.NoError(t, err)
	junk := e.gateway.URL + "/content/" + string(junkCID)
	e.ledger.registry[id] = append(e.ledger.registry[id], missing, junk)

	_, err = e.coord.UpdateQuantity(ctx, id, 1)
	require.NoError(t, err)

	trail, err := e.coord.GetAuditTrail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, trail.Entries, 4)
	assert.False(t, trail.Complete())
	assert.Len(t, trail.Records(), 2)

	assert.NoError(t, trail.Entries[0].Err)
	assert.ErrorIs(t, trail.Entries[1].Err, contentstore.ErrNotFound)
	assert.Nil(t, trail.Entries[1].Record)
	assert.ErrorContains(t, trail.Entries[2].Err, "schema validation failed")
	assert.Equal(t, chain.ActionUpdateQuantity, trail.Entries[3].Record.Event.Action)

	raw, err := json.Marshal(trail.Entries[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"error":`)
	assert.NotContains(t, string(raw), `"record"`)
}

func TestAuditTrail_EmptyRegistry(t *testing.T) {
	e := newEnv(t, nil)

	trail, err := e.coord.GetAuditTrail(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, trail.Entries)
	assert.True(t, trail.Complete())
}

func TestParseArchivedRecord(t *testing.T) {
	hash := "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

	rec, err := ParseArchivedRecord([]byte(`{"transactionHash":"` + hash + `","operation":"burnProduct","event":{"tokenId":123,"action":"BURN","initiator":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","timestamp":"2026-03-01T12:00:00Z","additionalInfo":""}}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(123), rec.Event.TokenID)
	assert.Equal(t, chain.ActionBurn, rec.Event.Action)

	_, err = ParseArchivedRecord([]byte(`{"transactionHash":"0x12","event":null}`))
	assert.Error(t, err)
	_, err = ParseArchivedRecord([]byte(`{"transactionHash":"` + hash + `","event":{"tokenId":-1,"action":"BURN","timestamp":"2026-03-01T12:00:00Z"}}`))
	assert.Error(t, err)
	_, err = ParseArchivedRecord([]byte(`not json`))
	assert.Error(t, err)
}
