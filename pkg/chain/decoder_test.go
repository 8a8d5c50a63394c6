package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	initiatorAddr = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func mintEvent() LedgerEvent {
	return LedgerEvent{
		TokenID:        4821907,
		Action:         ActionMint,
		Initiator:      initiatorAddr.Hex(),
		Timestamp:      time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		AdditionalInfo: "minted 10",
	}
}

func TestDecode_TokenStateChanged(t *testing.T) {
	parsed := MustDefaultABI()
	lg, err := EncodeStateChanged(parsed, contractAddr, mintEvent())
	require.NoError(t, err)

	ev, ok := NewDecoder(parsed).Decode(&Receipt{TxHash: "0x1", Logs: []*types.Log{lg}}, EventTokenStateChanged)
	require.True(t, ok)
	assert.Equal(t, mintEvent(), *ev)
}

func TestDecode_SkipsUnparsableLogs(t *testing.T) {
	parsed := MustDefaultABI()
	good, err := EncodeStateChanged(parsed, contractAddr, mintEvent())
	require.NoError(t, err)

	foreign := &types.Log{Address: contractAddr, Topics: []common.Hash{common.HexToHash("0xdeadbeef")}}
	truncated := &types.Log{Address: contractAddr, Topics: good.Topics, Data: good.Data[:40]}
	missingTopic := &types.Log{Address: contractAddr, Topics: good.Topics[:2], Data: good.Data}
	empty := &types.Log{Address: contractAddr}

	rcpt := &Receipt{Logs: []*types.Log{nil, empty, foreign, truncated, missingTopic, good}}
	ev, ok := NewDecoder(parsed).Decode(rcpt, EventTokenStateChanged)
	require.True(t, ok)
	assert.Equal(t, uint64(4821907), ev.TokenID)
}

func TestDecode_NoMatchIsEmptyResult(t *testing.T) {
	parsed := MustDefaultABI()
	d := NewDecoder(parsed)

	ev, ok := d.Decode(&Receipt{}, EventTokenStateChanged)
	assert.False(t, ok)
	assert.Nil(t, ev)

	ev, ok = d.Decode(nil, EventTokenStateChanged)
	assert.False(t, ok)
	assert.Nil(t, ev)

	lg, err := EncodeStateChanged(parsed, contractAddr, mintEvent())
	require.NoError(t, err)
	_, ok = d.Decode(&Receipt{Logs: []*types.Log{lg}}, "Transfer")
	assert.False(t, ok)
}

func TestDecode_RejectsTokenIDBeyondUint64(t *testing.T) {
	parsed := MustDefaultABI()
	lg, err := EncodeStateChanged(parsed, contractAddr, mintEvent())
	require.NoError(t, err)

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	lg.Topics[1] = common.BigToHash(huge)

	_, ok := NewDecoder(parsed).Decode(&Receipt{Logs: []*types.Log{lg}}, EventTokenStateChanged)
	assert.False(t, ok)
}

func TestDecode_ForContractFiltersAddress(t *testing.T) {
	parsed := MustDefaultABI()
	lg, err := EncodeStateChanged(parsed, common.HexToAddress("0x01"), mintEvent())
	require.NoError(t, err)

	_, ok := NewDecoder(parsed).ForContract(contractAddr).Decode(&Receipt{Logs: []*types.Log{lg}}, EventTokenStateChanged)
	assert.False(t, ok)

	_, ok = NewDecoder(parsed).Decode(&Receipt{Logs: []*types.Log{lg}}, EventTokenStateChanged)
	assert.True(t, ok)
}

func TestLoadABI(t *testing.T) {
	parsed, err := LoadABI("")
	require.NoError(t, err)
	for _, m := range []string{
		MethodMintProduct, MethodUpdateMetadata, MethodUpdatePrice, MethodUpdateQuantity,
		MethodUpdateStatus, MethodBurnProduct, MethodBuyTokens, MethodStoreEventCID,
		MethodGetProductInfo, MethodGetAllTokenIDs, MethodGetTokenOwners, MethodBalanceOf,
		MethodGetTransactionCIDs, MethodGetMetadataCID,
	} {
		_, ok := parsed.Methods[m]
		assert.True(t, ok, m)
	}
	assert.True(t, parsed.Methods[MethodBuyTokens].IsPayable())

	_, err = LoadABI("/does/not/exist.json")
	require.Error(t, err)
}
