package routing

import (
	"context"

	"github.com/dmitrijs2005/tipbot/internal/journal"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Confirmed    int
	Failed       int
	StillPending int
	// NeedsReview counts unsigned attempts past their grace period whose
	// balances moved since submission. They stay pending for an operator.
	NeedsReview   int
	Registrations int
}

// Reconcile settles journaled tips with unknown outcomes by querying their
// signatures, and repairs custody records whose registration confirmed on
// the ledger without being recorded. Nothing is resubmitted.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport

	if e.journal != nil {
		pending, err := e.journal.Pending()
		if err != nil {
			return rep, err
		}
		for _, a := range pending {
			status, reason, err := e.attemptStatus(ctx, a)
			if err != nil {
				e.logger.Warn(ctx, "attempt status unavailable", "message_id", a.MessageID, "signature", a.Signature, "error", err)
				rep.StillPending++
				continue
			}
			switch status {
			case StatusConfirmed:
				rep.Confirmed++
			case StatusFailed:
				rep.Failed++
			default:
				if reason != "" {
					e.logger.Warn(ctx, "attempt needs review", "message_id", a.MessageID, "reason", reason)
					rep.NeedsReview++
				} else {
					rep.StillPending++
				}
				continue
			}
			if _, err := e.journal.Update(a.MessageID, func(att *journal.Attempt) error {
				applyOutcome(att, Outcome{Status: status, Reason: reason})
				return nil
			}); err != nil {
				return rep, err
			}
			e.metrics.ObserveTip(a.Route, status.String())
			e.logger.Info(ctx, "attempt reconciled", "message_id", a.MessageID, "status", status.String(), "signature", a.Signature)
		}
		e.metrics.SetPending(rep.StillPending + rep.NeedsReview)
	}

	for _, rec := range e.custody.Records() {
		if rec.Registered {
			continue
		}
		out, err := e.ReconcileHandle(ctx, rec.Handle)
		if err != nil {
			return rep, err
		}
		if out.Status == StatusConfirmed {
			rep.Registrations++
		}
	}
	return rep, nil
}

// attemptStatus settles a. A pending status with a reason means the attempt
// cannot be settled automatically.
func (e *Engine) attemptStatus(ctx context.Context, a journal.Attempt) (Status, string, error) {
	if a.Signature == "" {
		if e.now().Sub(a.CreatedAt) <= e.cfg.PendingGrace {
			return StatusPending, "", nil
		}
		return e.unsignedStatus(ctx, a)
	}
	sig, err := solana.SignatureFromBase58(a.Signature)
	if err != nil {
		return StatusFailed, "invalid signature on record", nil
	}
	st, err := e.ledger.SignatureStatus(ctx, sig)
	if err != nil {
		return StatusPending, "", err
	}
	switch st.Status {
	case ledger.StatusConfirmed:
		return StatusConfirmed, "", nil
	case ledger.StatusFailed:
		return StatusFailed, st.Reason, nil
	case ledger.StatusUnknown:
		if e.now().Sub(a.CreatedAt) > e.cfg.PendingGrace {
			return StatusFailed, "transaction expired", nil
		}
	}
	return StatusPending, "", nil
}

// unsignedStatus settles an attempt whose signature was never journaled. It
// is failed only when the balances it would move still match the snapshot
// taken before submission.
func (e *Engine) unsignedStatus(ctx context.Context, a journal.Attempt) (Status, string, error) {
	if a.Snapshot == nil {
		return StatusPending, "no balance snapshot on record", nil
	}
	sender, err := e.balances.BalanceOf(ctx, a.Sender)
	if err != nil {
		return StatusPending, "", err
	}
	held, err := e.heldFor(ctx, parseRoute(a.Route), a.Recipient)
	if err != nil {
		return StatusPending, "", err
	}
	if sender.Available != a.Snapshot.SenderAvailable || held != a.Snapshot.RecipientHeld {
		return StatusPending, "balances moved without a journaled signature", nil
	}
	return StatusFailed, "never submitted", nil
}
