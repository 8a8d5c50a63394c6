package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrLedgerRejected means the ledger refused the call; no state changed.
	ErrLedgerRejected = errors.New("ledger rejected call")
	// ErrPendingIndefinitely means a broadcast transaction was not confirmed before
	// the caller's deadline. It may still be mined.
	ErrPendingIndefinitely = errors.New("transaction pending")
	ErrUnknownSigner       = errors.New("no signing key for wallet")
)

// RejectedError carries the ledger's reason verbatim.
type RejectedError struct {
	Method string
	TxHash string // set when the transaction was mined and reverted
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s %s reverted: %s", e.Method, e.TxHash, e.Reason)
	}
	return fmt.Sprintf("%s rejected: %s", e.Method, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

func (e *RejectedError) Is(target error) bool { return target == ErrLedgerRejected }

// PendingError reports a transaction whose confirmation wait ended early.
type PendingError struct {
	TxHash string
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transaction %s still pending: %v", e.TxHash, e.Err)
}

func (e *PendingError) Unwrap() error { return e.Err }

func (e *PendingError) Is(target error) bool { return target == ErrPendingIndefinitely }

// RejectionReason returns the revert reason carried by err, if any.
func RejectionReason(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// revertReason digs the Error(string) payload out of a JSON-RPC error, falling back
// to the error text.
func revertReason(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}
