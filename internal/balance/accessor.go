package balance

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/derive"
	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Balance is what a handle holds, in smallest units.
type Balance struct {
	// Available is the token balance of the registered user account.
	Available uint64
	// Escrowed is the amount waiting in the handle's escrow.
	Escrowed uint64
	// Native is the lamport balance of the wallet on record, if any.
	Native uint64
	// Registered reports whether the user account exists on the ledger.
	Registered bool
}

// Wallets resolves the wallet recorded for a handle.
type Wallets interface {
	Wallet(ctx context.Context, handle string) (solana.PublicKey, bool, error)
}

// Accessor reads balances. Missing accounts read as zero.
type Accessor struct {
	ledger  ledger.Ledger
	deriver *derive.Deriver
	wallets Wallets
}

// NewAccessor builds an accessor; wallets may be nil to skip native balances.
func NewAccessor(l ledger.Ledger, d *derive.Deriver, wallets Wallets) *Accessor {
	return &Accessor{ledger: l, deriver: d, wallets: wallets}
}

// BalanceOf reads the user and escrow accounts of raw. Transport errors are
// returned; absent or foreign accounts are zero.
func (a *Accessor) BalanceOf(ctx context.Context, raw string) (Balance, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Balance{}, err
	}
	set, err := a.deriver.All(h)
	if err != nil {
		return Balance{}, err
	}

	var b Balance
	st, err := ledger.Load(ctx, a.ledger, set.User.Address)
	if err != nil {
		return Balance{}, fmt.Errorf("read user account: %w", err)
	}
	switch v := st.(type) {
	case ledger.UserAccount:
		b.Available = v.Balance
		b.Registered = true
	case ledger.Malformed:
		return Balance{}, v.Reason
	}

	st, err = ledger.Load(ctx, a.ledger, set.Escrow.Address)
	if err != nil {
		return Balance{}, fmt.Errorf("read escrow account: %w", err)
	}
	switch v := st.(type) {
	case ledger.EscrowAccount:
		b.Escrowed = v.Amount
	case ledger.Malformed:
		return Balance{}, v.Reason
	}

	if a.wallets != nil {
		wallet, ok, err := a.wallets.Wallet(ctx, h)
		if err != nil {
			return Balance{}, err
		}
		if ok {
			if b.Native, err = ledger.Lamports(ctx, a.ledger, wallet); err != nil {
				return Balance{}, fmt.Errorf("read wallet: %w", err)
			}
		}
	}
	return b, nil
}

// Registered reports whether the user account of raw exists on the ledger.
// An invalid handle is a validation error.
func (a *Accessor) Registered(ctx context.Context, raw string) (bool, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return false, err
	}
	u, err := a.deriver.User(h)
	if err != nil {
		return false, err
	}
	st, err := ledger.Load(ctx, a.ledger, u.Address)
	if err != nil {
		return false, err
	}
	switch v := st.(type) {
	case ledger.UserAccount:
		return true, nil
	case ledger.Malformed:
		return false, v.Reason
	}
	return false, nil
}
