package routing

import (
	"context"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/custody"
	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Register creates a custodied wallet for raw and registers it on the
// ledger. Pending escrow is claimed by the same instruction. A record left
// without an on-chain account by an earlier failure is resumed.
func (e *Engine) Register(ctx context.Context, raw string) (Outcome, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Outcome{}, err
	}
	release, err := e.acquire(h)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	rec, ok, err := e.custody.Lookup(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	if ok && rec.Registered {
		return Outcome{}, wrapf(common.ErrAlreadyRegistered, "%s", h)
	}

	onChain, err := e.balances.Registered(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	if onChain {
		if ok {
			return e.ReconcileHandle(ctx, h)
		}
		return Outcome{}, wrapf(common.ErrAlreadyRegistered, "%s is registered on the ledger", h)
	}

	if !ok {
		if rec, err = e.custody.Generate(ctx, h); err != nil {
			e.metrics.ObserveRegistration("error")
			return Outcome{}, err
		}
	} else {
		e.logger.Info(ctx, "resuming registration", "handle", h)
	}
	return e.submitRegistration(ctx, rec)
}

// RegisterExternal records an externally owned wallet for raw and registers
// the handle with the authority as on-chain owner.
func (e *Engine) RegisterExternal(ctx context.Context, raw, wallet string) (Outcome, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Outcome{}, err
	}
	pub, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return Outcome{}, wrapf(common.ErrValidation, "invalid wallet address")
	}
	release, err := e.acquire(h)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	rec, ok, err := e.custody.Lookup(ctx, h)
	if err != nil {
		return Outcome{}, err
	}
	switch {
	case !ok:
		onChain, err := e.balances.Registered(ctx, h)
		if err != nil {
			return Outcome{}, err
		}
		if onChain {
			return Outcome{}, wrapf(common.ErrAlreadyRegistered, "%s is registered on the ledger", h)
		}
		if rec, err = e.custody.RegisterExternal(ctx, h, pub); err != nil {
			return Outcome{}, err
		}
	case rec.Registered || !rec.External() || rec.PublicID != pub:
		return Outcome{}, wrapf(common.ErrAlreadyRegistered, "%s", h)
	}
	return e.submitRegistration(ctx, rec)
}

func (e *Engine) acquire(h string) (func(), error) {
	if _, busy := e.inflight.LoadOrStore(h, struct{}{}); busy {
		return nil, wrapf(common.ErrAlreadyRegistered, "registration of %s in progress", h)
	}
	return func() { e.inflight.Delete(h) }, nil
}

func (e *Engine) submitRegistration(ctx context.Context, rec custody.Record) (Outcome, error) {
	out := Outcome{Kind: KindRegister, Handle: rec.Handle, Wallet: rec.PublicID, Asset: balance.USDC}

	pre, err := e.balances.BalanceOf(ctx, rec.Handle)
	if err != nil {
		return Outcome{}, err
	}
	out.Claimed = pre.Escrowed

	if rec.External() {
		ix, err := e.builder.RegisterUser(rec.Handle, e.authority.PublicKey())
		if err != nil {
			return Outcome{}, err
		}
		conf, subErr := e.submit(ctx, "register_user", []solana.Instruction{ix})
		return e.finishRegistration(ctx, out, rec, conf, subErr)
	}

	var conf ledger.Confirmation
	var subErr error
	err = e.custody.WithSigner(ctx, rec.Handle, func(s solana.Signer) error {
		fund := solana.SystemTransfer(e.authority.PublicKey(), s.PublicKey(), e.cfg.RegistrationFunding)
		ix, err := e.builder.RegisterUser(rec.Handle, s.PublicKey())
		if err != nil {
			return err
		}
		conf, subErr = e.submit(ctx, "register_user", []solana.Instruction{fund, ix}, s)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return e.finishRegistration(ctx, out, rec, conf, subErr)
}

func (e *Engine) finishRegistration(ctx context.Context, out Outcome, rec custody.Record, conf ledger.Confirmation, subErr error) (Outcome, error) {
	if subErr != nil && ledger.IsAlreadyInUse(subErr) {
		return e.ReconcileHandle(ctx, rec.Handle)
	}
	out, err := settle(out, conf, subErr)
	if err != nil {
		e.metrics.ObserveRegistration("error")
		return Outcome{}, err
	}
	e.metrics.ObserveRegistration(out.Status.String())
	if out.Status != StatusConfirmed {
		e.logger.Warn(ctx, "registration not confirmed", "handle", rec.Handle, "status", out.Status.String(), "reason", out.Reason)
		return out, nil
	}

	if _, err := e.custody.MarkRegistered(ctx, rec.Handle); err != nil {
		e.logger.Error(ctx, "registration confirmed but not recorded", "handle", rec.Handle, "signature", out.Signature.String(), "error", err)
		return out, err
	}
	e.logger.Info(ctx, "handle registered", "handle", rec.Handle, "signature", out.Signature.String())
	return out, nil
}

// ReconcileHandle re-reads the user account of raw and repairs the local
// record when the ledger shows the registration happened.
func (e *Engine) ReconcileHandle(ctx context.Context, raw string) (Outcome, error) {
	rec, ok, err := e.custody.Lookup(ctx, raw)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, wrapf(common.ErrorNotFound, "no custody record for %s", raw)
	}
	out := Outcome{Kind: KindRegister, Handle: rec.Handle, Wallet: rec.PublicID, Asset: balance.USDC, Noop: true}

	u, err := e.deriver.User(rec.Handle)
	if err != nil {
		return Outcome{}, err
	}
	st, err := ledger.Load(ctx, e.ledger, u.Address)
	if err != nil {
		return Outcome{}, err
	}
	switch v := st.(type) {
	case ledger.UserAccount:
		if v.Owner != e.ownerOf(rec) {
			out.Status = StatusFailed
			out.Reason = "handle is registered on the ledger with a different owner"
			return out, nil
		}
		out.Status = StatusConfirmed
		if !rec.Registered {
			if _, err := e.custody.MarkRegistered(ctx, rec.Handle); err != nil {
				return out, err
			}
			e.logger.Info(ctx, "registration reconciled", "handle", rec.Handle)
		}
		return out, nil
	case ledger.Malformed:
		return Outcome{}, v.Reason
	}
	out.Status = StatusFailed
	out.Reason = "handle is not registered on the ledger"
	return out, nil
}
