package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Route is the path a tip takes to its recipient.
type Route int

const (
	RouteNone Route = iota
	RouteDirect
	RouteEscrow
)

func (r Route) String() string {
	switch r {
	case RouteDirect:
		return "direct"
	case RouteEscrow:
		return "escrow"
	}
	return "none"
}

func parseRoute(s string) Route {
	switch s {
	case "direct":
		return RouteDirect
	case "escrow":
		return RouteEscrow
	}
	return RouteNone
}

// Status is the settled state of a submitted operation.
type Status int

const (
	// StatusPending means the outcome is unknown and must be reconciled.
	StatusPending Status = iota
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	}
	return "pending"
}

type Kind int

const (
	KindInitialize Kind = iota + 1
	KindRegister
	KindTip
	KindDeposit
	KindWithdraw
)

func (k Kind) String() string {
	switch k {
	case KindInitialize:
		return "initialize"
	case KindRegister:
		return "register"
	case KindTip:
		return "tip"
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	}
	return "unknown"
}

// Outcome describes what happened to one submitted operation.
type Outcome struct {
	Kind   Kind
	Status Status
	Route  Route

	// Handle is the acting handle: registrant, sender, deposit target or
	// withdrawing user.
	Handle    string
	Recipient string
	Amount    uint64
	Asset     balance.Asset

	// Wallet is the owner recorded at registration; Destination is the
	// withdrawal target.
	Wallet      solana.PublicKey
	Destination solana.PublicKey
	// Claimed is the escrow amount swept by a registration.
	Claimed uint64

	Signature solana.Signature
	Reason    string

	// Noop marks an operation the ledger had already applied.
	Noop bool
	// Replayed marks an outcome served from the journal.
	Replayed  bool
	AttemptID string
}

// Err returns the error equivalent of a failed or pending outcome.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusFailed:
		return fmt.Errorf("%w: %s", common.ErrLedgerRejected, o.Reason)
	case StatusPending:
		return common.ErrUnknownOutcome
	}
	return nil
}

// ExplorerURL links the transaction signature for cluster.
func ExplorerURL(sig solana.Signature, cluster string) string {
	return fmt.Sprintf(common.ExplorerTxURL, sig.String(), cluster)
}

// Reply renders the outcome as a user-facing message.
func (o Outcome) Reply(cluster string) string {
	var b strings.Builder

	switch o.Status {
	case StatusFailed:
		fmt.Fprintf(&b, "%s failed: %s", titleFor(o.Kind), o.Reason)
		return b.String()
	case StatusPending:
		fmt.Fprintf(&b, "%s submitted, confirmation pending.", titleFor(o.Kind))
		if !o.Signature.IsZero() {
			fmt.Fprintf(&b, "\n\nView: %s", ExplorerURL(o.Signature, cluster))
		}
		return b.String()
	}

	switch o.Kind {
	case KindInitialize:
		if o.Noop {
			return "Master wallet already initialized."
		}
		b.WriteString("Master wallet initialized.")
	case KindRegister:
		if o.Noop {
			fmt.Fprintf(&b, "@%s is already registered. Wallet: %s", o.Handle, o.Wallet)
			return b.String()
		}
		fmt.Fprintf(&b, "Registered @%s. Wallet: %s", o.Handle, o.Wallet)
		if o.Claimed > 0 {
			fmt.Fprintf(&b, "\nClaimed %s waiting in escrow.", o.Asset.String(o.Claimed))
		}
	case KindTip:
		fmt.Fprintf(&b, "Sent %s to @%s!", o.Asset.String(o.Amount), o.Recipient)
		if o.Route == RouteEscrow {
			fmt.Fprintf(&b, " It is held in escrow until @%s registers.", o.Recipient)
		}
	case KindDeposit:
		fmt.Fprintf(&b, "Deposited %s to @%s.", o.Asset.String(o.Amount), o.Handle)
	case KindWithdraw:
		fmt.Fprintf(&b, "Withdrew %s to %s.", o.Asset.String(o.Amount), o.Destination)
	}
	if !o.Signature.IsZero() {
		fmt.Fprintf(&b, "\n\nView: %s", ExplorerURL(o.Signature, cluster))
	}
	return b.String()
}

func titleFor(k Kind) string {
	switch k {
	case KindInitialize:
		return "Initialization"
	case KindRegister:
		return "Registration"
	case KindTip:
		return "Tip"
	case KindDeposit:
		return "Deposit"
	case KindWithdraw:
		return "Withdrawal"
	}
	return "Operation"
}

// ReplyForError renders a pre-submission error as a user-facing message.
func ReplyForError(err error) string {
	switch {
	case errors.Is(err, common.ErrSenderUnregistered):
		return `You need a wallet first. Reply "register" to create one.`
	case errors.Is(err, common.ErrRecipientUnregistered):
		return "That handle has not registered yet."
	case errors.Is(err, common.ErrInsufficientBalance):
		return "Insufficient balance. Deposit to your wallet first."
	case errors.Is(err, common.ErrAlreadyRegistered):
		return "You already have a wallet registered."
	case errors.Is(err, common.ErrPersistence):
		return "Your request went through but could not be recorded. It will be reconciled shortly."
	case errors.Is(err, common.ErrValidation):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return "Invalid request: " + msg
	}
	return "Something went wrong. Please try again later."
}
