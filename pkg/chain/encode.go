package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EncodeStateChanged builds the log a contract at addr would emit for ev.
// Dev chains and tests use it to stand in for a node.
func EncodeStateChanged(contractABI abi.ABI, addr common.Address, ev LedgerEvent) (*types.Log, error) {
	event, ok := contractABI.Events[EventTokenStateChanged]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", EventTokenStateChanged)
	}
	data, err := event.Inputs.NonIndexed().Pack(string(ev.Action), big.NewInt(ev.Timestamp.Unix()), ev.AdditionalInfo)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", EventTokenStateChanged, err)
	}
	return &types.Log{
		Address: addr,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(U256(ev.TokenID)),
			common.BytesToHash(common.HexToAddress(ev.Initiator).Bytes()),
		},
		Data: data,
	}, nil
}
