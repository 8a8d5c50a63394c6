package chain

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Decoder turns receipt logs into LedgerEvents.
type Decoder struct {
	abi      abi.ABI
	contract *common.Address
	logger   *slog.Logger
}

func NewDecoder(contractABI abi.ABI) *Decoder {
	return &Decoder{abi: contractABI, logger: slog.Default().With("component", "decoder")}
}

// ForContract ignores logs emitted by any other address.
func (d *Decoder) ForContract(addr common.Address) *Decoder {
	cp := *d
	cp.contract = &addr
	return &cp
}

// Decode returns the first log in receipt that parses as eventName. Logs that fail to
// parse or do not fit the event's shape are skipped. false is a valid empty result.
func (d *Decoder) Decode(receipt *Receipt, eventName string) (*LedgerEvent, bool) {
	if receipt == nil {
		return nil, false
	}
	for i, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		if d.contract != nil && lg.Address != *d.contract {
			continue
		}
		ev, err := d.abi.EventByID(lg.Topics[0])
		if err != nil || ev.Name != eventName {
			continue
		}

		fields := make(map[string]any, len(ev.Inputs))
		if err := ev.Inputs.UnpackIntoMap(fields, lg.Data); err != nil {
			d.logger.Debug("skipping log: data", "index", i, "tx_hash", receipt.TxHash, "error", err)
			continue
		}
		var indexed abi.Arguments
		for _, in := range ev.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if len(lg.Topics)-1 != len(indexed) {
			d.logger.Debug("skipping log: topic count", "index", i, "tx_hash", receipt.TxHash)
			continue
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			d.logger.Debug("skipping log: topics", "index", i, "tx_hash", receipt.TxHash, "error", err)
			continue
		}

		event, ok := stateChangedFromFields(fields)
		if !ok {
			d.logger.Debug("skipping log: field types", "index", i, "tx_hash", receipt.TxHash)
			continue
		}
		return event, true
	}
	return nil, false
}

func stateChangedFromFields(f map[string]any) (*LedgerEvent, bool) {
	if len(f) != 5 {
		return nil, false
	}
	tokenID, ok := f["tokenId"].(*big.Int)
	if !ok || tokenID.Sign() < 0 || !tokenID.IsUint64() {
		return nil, false
	}
	action, ok := f["action"].(string)
	if !ok {
		return nil, false
	}
	initiator, ok := f["initiator"].(common.Address)
	if !ok {
		return nil, false
	}
	ts, ok := f["timestamp"].(*big.Int)
	if !ok || ts.Sign() < 0 || !ts.IsInt64() {
		return nil, false
	}
	info, ok := f["additionalInfo"].(string)
	if !ok {
		return nil, false
	}
	return &LedgerEvent{
		TokenID:        tokenID.Uint64(),
		Action:         Action(action),
		Initiator:      initiator.Hex(),
		Timestamp:      time.Unix(ts.Int64(), 0).UTC(),
		AdditionalInfo: info,
	}, true
}
