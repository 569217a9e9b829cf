package routing

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/journal"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// TipRequest is a parsed inbound tip command.
type TipRequest struct {
	MessageID string
	Sender    string
	Recipient string
	// Amount is a decimal string in units of Asset.
	Amount string
	Asset  string
}

type tipPlan struct {
	sender    string
	recipient string
	asset     balance.Asset
	amount    uint64
}

func parseTip(req TipRequest) (tipPlan, error) {
	var (
		p   tipPlan
		err error
	)
	if p.sender, err = handle.Normalize(req.Sender); err != nil {
		return p, err
	}
	if p.recipient, err = handle.Normalize(req.Recipient); err != nil {
		return p, err
	}
	if p.sender == p.recipient {
		return p, wrapf(common.ErrValidation, "cannot tip yourself")
	}
	if p.asset, err = balance.AssetBySymbol(req.Asset); err != nil {
		return p, err
	}
	if p.asset.Native {
		return p, wrapf(common.ErrValidation, "%s tips are not supported", p.asset.Symbol)
	}
	if p.amount, err = p.asset.Parse(req.Amount); err != nil {
		return p, err
	}
	if p.amount == 0 || p.amount < p.asset.MinTip {
		return p, wrapf(common.ErrValidation, "minimum tip is %s", p.asset.String(max(p.asset.MinTip, 1)))
	}
	return p, nil
}

// SelectRoute chooses the direct route when the recipient's user account
// exists on the ledger and the escrow route otherwise. The recipient is
// normalized first.
func (e *Engine) SelectRoute(ctx context.Context, recipient string) (Route, error) {
	h, err := handle.Normalize(recipient)
	if err != nil {
		return RouteNone, err
	}
	registered, err := e.balances.Registered(ctx, h)
	if err != nil {
		return RouteNone, err
	}
	if registered {
		return RouteDirect, nil
	}
	return RouteEscrow, nil
}

// Tip moves value from sender to recipient. A message id that was already
// journaled returns the stored outcome without a new submission.
func (e *Engine) Tip(ctx context.Context, req TipRequest) (Outcome, error) {
	p, err := parseTip(req)
	if err != nil {
		return Outcome{}, err
	}

	if e.journal != nil && req.MessageID != "" {
		if a, ok, err := e.journal.Get(req.MessageID); err != nil {
			return Outcome{}, err
		} else if ok {
			return outcomeFromAttempt(a), nil
		}
	}

	// Validating
	if _, ok, err := e.custody.Lookup(ctx, p.sender); err != nil {
		return Outcome{}, err
	} else if !ok {
		return Outcome{}, wrapf(common.ErrSenderUnregistered, "@%s", p.sender)
	}
	bal, err := e.balances.BalanceOf(ctx, p.sender)
	if err != nil {
		return Outcome{}, err
	}
	if !bal.Registered {
		return Outcome{}, wrapf(common.ErrSenderUnregistered, "@%s has no ledger account", p.sender)
	}
	if bal.Available < p.amount {
		return Outcome{}, wrapf(common.ErrInsufficientBalance, "@%s has %s", p.sender, p.asset.String(bal.Available))
	}

	// RecipientLookup
	route, err := e.SelectRoute(ctx, p.recipient)
	if err != nil {
		return Outcome{}, err
	}
	ix, err := e.tipInstruction(route, p)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Kind: KindTip, Route: route, Handle: p.sender, Recipient: p.recipient, Amount: p.amount, Asset: p.asset}

	if e.journal != nil && req.MessageID != "" {
		held, err := e.heldFor(ctx, route, p.recipient)
		if err != nil {
			return Outcome{}, err
		}
		a, created, err := e.journal.Begin(journal.Attempt{
			MessageID: req.MessageID,
			Sender:    p.sender,
			Recipient: p.recipient,
			Amount:    p.amount,
			Asset:     p.asset.Symbol,
			Route:     route.String(),
			Snapshot:  &journal.Snapshot{SenderAvailable: bal.Available, RecipientHeld: held},
		})
		if err != nil {
			return Outcome{}, err
		}
		if !created {
			return outcomeFromAttempt(a), nil
		}
		out.AttemptID = a.AttemptID
	}

	// Submitted
	conf, subErr := e.submit(ctx, "tip_"+route.String(), []solana.Instruction{ix})
	out, err = settle(out, conf, subErr)
	if err != nil {
		e.metrics.ObserveTip(route.String(), "error")
		if jErr := e.recordAttempt(ctx, req.MessageID, Outcome{Status: StatusFailed, Reason: "not submitted: " + err.Error()}); jErr != nil {
			e.logger.Error(ctx, "journal update failed", "message_id", req.MessageID, "error", jErr)
		}
		return Outcome{}, err
	}
	e.metrics.ObserveTip(route.String(), out.Status.String())

	e.logger.Info(ctx, "tip routed",
		"handle", p.sender, "recipient", p.recipient, "route", route.String(),
		"amount", p.amount, "status", out.Status.String(), "signature", out.Signature.String())

	if err := e.recordAttempt(ctx, req.MessageID, out); err != nil {
		e.logger.Error(ctx, "journal update failed",
			"message_id", req.MessageID, "status", out.Status.String(), "signature", out.Signature.String(), "error", err)
		return out, wrapf(common.ErrPersistence, "journal %s: %v", req.MessageID, err)
	}
	return out, nil
}

// heldFor is the recipient balance a tip on route would grow.
func (e *Engine) heldFor(ctx context.Context, route Route, recipient string) (uint64, error) {
	b, err := e.balances.BalanceOf(ctx, recipient)
	if err != nil {
		return 0, err
	}
	if route == RouteDirect {
		return b.Available, nil
	}
	return b.Escrowed, nil
}

func (e *Engine) tipInstruction(route Route, p tipPlan) (solana.Instruction, error) {
	if route == RouteDirect {
		return e.builder.Tip(p.sender, p.recipient, p.amount)
	}
	return e.builder.TipToEscrow(p.sender, p.recipient, e.authority.PublicKey(), p.amount)
}

const journalUpdateTries = 3

// recordAttempt stores out on the journaled attempt, retrying transient
// failures. The last error is returned.
func (e *Engine) recordAttempt(ctx context.Context, messageID string, out Outcome) error {
	if e.journal == nil || messageID == "" {
		return nil
	}
	var err error
	for try := 1; try <= journalUpdateTries; try++ {
		_, err = e.journal.Update(messageID, func(a *journal.Attempt) error {
			applyOutcome(a, out)
			return nil
		})
		if err == nil || errors.Is(err, journal.ErrNotFound) {
			return err
		}
		e.logger.Warn(ctx, "journal update retry", "message_id", messageID, "try", try, "error", err)
	}
	return err
}

func applyOutcome(a *journal.Attempt, out Outcome) {
	switch out.Status {
	case StatusConfirmed:
		a.Status = journal.StatusConfirmed
	case StatusFailed:
		a.Status = journal.StatusFailed
	default:
		a.Status = journal.StatusPending
	}
	if !out.Signature.IsZero() {
		a.Signature = out.Signature.String()
	}
	a.Reason = out.Reason
}

func outcomeFromAttempt(a journal.Attempt) Outcome {
	asset, err := balance.AssetBySymbol(a.Asset)
	if err != nil {
		asset = balance.USDC
	}
	out := Outcome{
		Kind:      KindTip,
		Route:     parseRoute(a.Route),
		Handle:    a.Sender,
		Recipient: a.Recipient,
		Amount:    a.Amount,
		Asset:     asset,
		Reason:    a.Reason,
		Replayed:  true,
		AttemptID: a.AttemptID,
	}
	switch a.Status {
	case journal.StatusConfirmed:
		out.Status = StatusConfirmed
	case journal.StatusFailed:
		out.Status = StatusFailed
	default:
		out.Status = StatusPending
	}
	if sig, err := solana.SignatureFromBase58(a.Signature); err == nil {
		out.Signature = sig
	}
	return out
}

// Deposit credits amount from the authority's token account to raw.
func (e *Engine) Deposit(ctx context.Context, raw, amount string) (Outcome, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Outcome{}, err
	}
	units, err := balance.USDC.Parse(amount)
	if err != nil {
		return Outcome{}, err
	}
	if units == 0 {
		return Outcome{}, wrapf(common.ErrValidation, "amount must be positive")
	}
	registered, err := e.balances.Registered(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	if !registered {
		return Outcome{}, wrapf(common.ErrRecipientUnregistered, "@%s", h)
	}

	ix, err := e.builder.Deposit(h, e.authority.PublicKey(), units)
	if err != nil {
		return Outcome{}, err
	}
	conf, subErr := e.submit(ctx, "deposit", []solana.Instruction{ix})
	return settle(Outcome{Kind: KindDeposit, Handle: h, Amount: units, Asset: balance.USDC}, conf, subErr)
}

// Withdraw sends amount from raw to the token account of destination. The
// custodied key signs for custodied wallets, the authority for external ones.
func (e *Engine) Withdraw(ctx context.Context, raw, destination, amount string) (Outcome, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Outcome{}, err
	}
	dest, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return Outcome{}, wrapf(common.ErrValidation, "invalid destination address")
	}
	units, err := balance.USDC.Parse(amount)
	if err != nil {
		return Outcome{}, err
	}
	if units == 0 {
		return Outcome{}, wrapf(common.ErrValidation, "amount must be positive")
	}

	rec, ok, err := e.custody.Lookup(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, wrapf(common.ErrSenderUnregistered, "@%s", h)
	}
	bal, err := e.balances.BalanceOf(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	if !bal.Registered {
		return Outcome{}, wrapf(common.ErrSenderUnregistered, "@%s has no ledger account", h)
	}
	if bal.Available < units {
		return Outcome{}, wrapf(common.ErrInsufficientBalance, "@%s has %s", h, balance.USDC.String(bal.Available))
	}

	out := Outcome{Kind: KindWithdraw, Handle: h, Destination: dest, Amount: units, Asset: balance.USDC}

	if rec.External() {
		ix, err := e.builder.Withdraw(h, e.authority.PublicKey(), dest, units)
		if err != nil {
			return Outcome{}, err
		}
		conf, subErr := e.submit(ctx, "withdraw", []solana.Instruction{ix})
		return settle(out, conf, subErr)
	}

	var result Outcome
	err = e.custody.WithSigner(ctx, h, func(s solana.Signer) error {
		ix, err := e.builder.Withdraw(h, s.PublicKey(), dest, units)
		if err != nil {
			return err
		}
		conf, subErr := e.submit(ctx, "withdraw", []solana.Instruction{ix}, s)
		result, err = settle(out, conf, subErr)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return result, nil
}
