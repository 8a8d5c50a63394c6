package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is one contract write.
type Call struct {
	Method string
	Args   []any
	Value  *big.Int // wei attached to payable calls
}

// PendingTx is a broadcast transaction that has not been confirmed yet.
type PendingTx struct {
	Hash   string
	Method string
	From   common.Address
	Tx     *types.Transaction
}

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Logs        []*types.Log
}

// Action is the state transition named in a TokenStateChanged event.
type Action string

const (
	ActionMint           Action = "MINT"
	ActionUpdatePrice    Action = "UPDATE_PRICE"
	ActionUpdateQuantity Action = "UPDATE_QUANTITY"
	ActionUpdateMetadata Action = "UPDATE_METADATA"
	ActionUpdateStatus   Action = "UPDATE_STATUS"
	ActionBurn           Action = "BURN"
	ActionBuy            Action = "BUY"
)

// LedgerEvent is a decoded TokenStateChanged log.
type LedgerEvent struct {
	TokenID        uint64    `json:"tokenId"`
	Action         Action    `json:"action"`
	Initiator      string    `json:"initiator"`
	Timestamp      time.Time `json:"timestamp"`
	AdditionalInfo string    `json:"additionalInfo"`
}
