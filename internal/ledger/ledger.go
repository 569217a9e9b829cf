// Package ledger is the boundary to the chain: submitting transactions,
// reading accounts and decoding the tip program's account layouts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// ErrAccountNotFound is returned by FetchAccount for addresses with no data.
var ErrAccountNotFound = errors.New("account not found")

// Submission is one atomic transaction. FeePayer signs first; Signers holds
// any further required signers.
type Submission struct {
	Instructions []solana.Instruction
	FeePayer     solana.Signer
	Signers      []solana.Signer
}

func (s Submission) allSigners() []solana.Signer {
	out := make([]solana.Signer, 0, len(s.Signers)+1)
	out = append(out, s.FeePayer)
	return append(out, s.Signers...)
}

// Confirmation identifies a submitted transaction. It is also returned along
// with ErrUnknownOutcome when the signature is known but the result is not.
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
}

// Account is the raw state of an address.
type Account struct {
	Address  solana.PublicKey
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Status is the settled state of a signature.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignatureState is the answer to a signature status query. Reason is set for
// failed transactions.
type SignatureState struct {
	Status Status
	Reason string
}

// Ledger is the external chain as seen by the engine.
type Ledger interface {
	Submit(ctx context.Context, sub Submission) (Confirmation, error)
	FetchAccount(ctx context.Context, addr solana.PublicKey) (*Account, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error)
}

// RejectedError is a definite refusal by the ledger. Reason is the program or
// runtime message; Logs carries program logs when available.
type RejectedError struct {
	Reason string
	Logs   []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", common.ErrLedgerRejected, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return common.ErrLedgerRejected
}

func (e *RejectedError) text() string {
	return strings.ToLower(e.Reason + "\n" + strings.Join(e.Logs, "\n"))
}

// Rejection is the recognizable cause of a RejectedError.
type Rejection int

const (
	RejectionOther Rejection = iota
	RejectionAlreadyInUse
	RejectionInsufficientBalance
	RejectionInsufficientFunds
	RejectionHandleMismatch
	RejectionUnauthorized
)

var rejectionPatterns = []struct {
	kind    Rejection
	needles []string
}{
	{RejectionAlreadyInUse, []string{"already in use"}},
	{RejectionInsufficientBalance, []string{"insufficient balance", "insufficientbalance"}},
	{RejectionInsufficientFunds, []string{"insufficient funds", "insufficient lamports"}},
	{RejectionHandleMismatch, []string{"escrow handle mismatch", "escrowhandlemismatch"}},
	{RejectionUnauthorized, []string{"has one constraint", "constrainthasone", "missing required signature"}},
}

// Classify returns the recognizable cause of err, or RejectionOther.
func Classify(err error) Rejection {
	var re *RejectedError
	if !errors.As(err, &re) {
		return RejectionOther
	}
	t := re.text()
	for _, p := range rejectionPatterns {
		for _, n := range p.needles {
			if strings.Contains(t, n) {
				return p.kind
			}
		}
	}
	return RejectionOther
}

// IsAlreadyInUse reports an attempt to create an existing account.
func IsAlreadyInUse(err error) bool {
	return Classify(err) == RejectionAlreadyInUse
}
