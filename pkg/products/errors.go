package products

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNothingToBurn       = errors.New("wallet holds none of this token")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrIdentityCollision   = errors.New("token id collided with an existing token")
	ErrInvalidRequest      = errors.New("invalid request")
)

// Stage is the last pipeline step an operation completed.
type Stage string

const (
	StageDrafted         Stage = "drafted"
	StageSubmitted       Stage = "submitted"
	StageConfirmed       Stage = "confirmed"
	StageEventDecoded    Stage = "event_decoded"
	StageArchived        Stage = "archived"
	StageCrossReferenced Stage = "cross_referenced"
	StageComplete        Stage = "complete"
)

// FailureKind names the step that failed.
type FailureKind string

const (
	// KindPrecondition failures happen before anything is submitted.
	KindPrecondition         FailureKind = "precondition"
	KindSubmitFailed         FailureKind = "submit_failed"
	KindConfirmTimedOut      FailureKind = "confirm_timed_out"
	KindArchiveFailed        FailureKind = "archive_failed"
	KindCrossReferenceFailed FailureKind = "cross_reference_failed"
)

// OpError reports where a lifecycle operation stopped. For ArchiveFailed and
// CrossReferenceFailed the mutation is already on-chain.
type OpError struct {
	Op       string
	TokenIDs []TokenID
	Stage    Stage
	Kind     FailureKind
	TxHash   string
	Err      error
}

func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s after %s", e.Op, joinIDs(e.TokenIDs), e.Kind, e.Stage)
	if e.TxHash != "" {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// IsPartialSuccess reports whether err describes a mutation that landed on-chain
// without its audit pointer.
func IsPartialSuccess(err error) bool {
	var oe *OpError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Kind == KindArchiveFailed || oe.Kind == KindCrossReferenceFailed
}

// IsPending reports whether err is a confirmation wait that ended with the
// transaction still unmined.
func IsPending(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Kind == KindConfirmTimedOut
}

func joinIDs(ids []TokenID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}
