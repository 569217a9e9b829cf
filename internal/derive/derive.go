// Package derive maps handles to the deterministic on-chain accounts the tip
// program uses. Every derivation is pure; results are cached only to avoid
// repeating the bump search.
package derive

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Namespace tags. They are part of the on-chain contract and prefix-free, so
// seeds from different namespaces never collide.
const (
	TagMaster = "master_wallet"
	TagUser   = "user"
	TagToken  = "token"
	TagEscrow = "escrow"
)

// Namespaces lists every tag in use.
var Namespaces = []string{TagMaster, TagUser, TagToken, TagEscrow}

// Account is a derived address together with the inputs that produced it.
type Account struct {
	Namespace string
	Seeds     [][]byte
	Authority solana.PublicKey
	Address   solana.PublicKey
	Bump      uint8
}

var findProgramAddress = solana.FindProgramAddress

// Derive computes tag || parts... || authority under program. Handles passed
// in parts must already be normalized; the Deriver methods do that.
func Derive(program solana.PublicKey, tag string, parts [][]byte, authority solana.PublicKey) (Account, error) {
	seeds := make([][]byte, 0, len(parts)+2)
	seeds = append(seeds, []byte(tag))
	seeds = append(seeds, parts...)
	seeds = append(seeds, authority.Bytes())

	addr, bump, err := findProgramAddress(seeds, program)
	if err != nil {
		return Account{}, fmt.Errorf("derive %s: %w", tag, err)
	}
	return Account{Namespace: tag, Seeds: seeds, Authority: authority, Address: addr, Bump: bump}, nil
}

// Deriver binds the program id, bot authority and token mint, and memoizes
// results in a concurrency-safe map.
type Deriver struct {
	program   solana.PublicKey
	authority solana.PublicKey
	mint      solana.PublicKey

	cache sync.Map
}

func NewDeriver(program, authority, mint solana.PublicKey) *Deriver {
	return &Deriver{program: program, authority: authority, mint: mint}
}

func (d *Deriver) Program() solana.PublicKey   { return d.program }
func (d *Deriver) Authority() solana.PublicKey { return d.authority }
func (d *Deriver) Mint() solana.PublicKey      { return d.mint }

func (d *Deriver) cached(key string, fn func() (Account, error)) (Account, error) {
	if v, ok := d.cache.Load(key); ok {
		return v.(Account), nil
	}
	acc, err := fn()
	if err != nil {
		return Account{}, err
	}
	v, _ := d.cache.LoadOrStore(key, acc)
	return v.(Account), nil
}

// Master is the single root account owned by the bot authority.
func (d *Deriver) Master() (Account, error) {
	return d.cached(TagMaster, func() (Account, error) {
		return Derive(d.program, TagMaster, nil, d.authority)
	})
}

// User is the per-handle ledger account. Handles are normalized first, so
// "@Bob" and "bob" derive the same address.
func (d *Deriver) User(raw string) (Account, error) {
	return d.underMaster(TagUser, raw)
}

// Escrow holds tips for a handle that has not registered yet.
func (d *Deriver) Escrow(raw string) (Account, error) {
	return d.underMaster(TagEscrow, raw)
}

func (d *Deriver) underMaster(tag, raw string) (Account, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Account{}, err
	}
	return d.cached(tag+"/"+h, func() (Account, error) {
		master, err := d.Master()
		if err != nil {
			return Account{}, err
		}
		return Derive(d.program, tag, [][]byte{[]byte(h)}, master.Address)
	})
}

// Token is the token holding account owned by the user account of handle.
func (d *Deriver) Token(raw string) (Account, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Account{}, err
	}
	return d.cached(TagToken+"/"+h, func() (Account, error) {
		user, err := d.User(h)
		if err != nil {
			return Account{}, err
		}
		return Derive(d.program, TagToken, nil, user.Address)
	})
}

// EscrowToken is the associated token account of the escrow account.
func (d *Deriver) EscrowToken(raw string) (solana.PublicKey, error) {
	escrow, err := d.Escrow(raw)
	if err != nil {
		return solana.PublicKey{}, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(escrow.Address, d.mint)
	return ata, err
}

// AssociatedToken is the canonical token account of an arbitrary wallet.
func (d *Deriver) AssociatedToken(owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, d.mint)
	return ata, err
}

// Set bundles every account of a handle.
type Set struct {
	Master      Account
	User        Account
	Token       Account
	Escrow      Account
	EscrowToken solana.PublicKey
}

// All derives every account of raw.
func (d *Deriver) All(raw string) (Set, error) {
	var s Set
	var err error
	if s.Master, err = d.Master(); err != nil {
		return s, err
	}
	if s.User, err = d.User(raw); err != nil {
		return s, err
	}
	if s.Token, err = d.Token(raw); err != nil {
		return s, err
	}
	if s.Escrow, err = d.Escrow(raw); err != nil {
		return s, err
	}
	s.EscrowToken, err = d.EscrowToken(raw)
	return s, err
}

// PrefixFree reports whether no tag is a prefix of another.
func PrefixFree(tags []string) bool {
	for i, a := range tags {
		for j, b := range tags {
			if i != j && strings.HasPrefix(b, a) {
				return false
			}
		}
	}
	return true
}
