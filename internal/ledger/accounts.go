package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/borsh"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/instruction"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

var (
	masterDiscriminator = instruction.Discriminator("account", "MasterWallet")
	userDiscriminator   = instruction.Discriminator("account", "UserAccount")
	escrowDiscriminator = instruction.Discriminator("account", "EscrowAccount")
)

// State is the decoded content of an address: one of NotFound, Malformed,
// MasterWallet, UserAccount or EscrowAccount.
type State interface {
	state()
}

type NotFound struct{}

type Malformed struct {
	Reason error
}

type MasterWallet struct {
	Authority    solana.PublicKey
	TotalUsers   uint64
	TotalEscrows uint64
	Bump         uint8
}

type UserAccount struct {
	Handle        string
	Owner         solana.PublicKey
	Balance       uint64
	EscrowBalance uint64
	Bump          uint8
}

type EscrowAccount struct {
	Handle string
	Amount uint64
	Bump   uint8
}

func (NotFound) state()      {}
func (Malformed) state()     {}
func (MasterWallet) state()  {}
func (UserAccount) state()   {}
func (EscrowAccount) state() {}

func (m MasterWallet) Encode() []byte {
	return borsh.NewWriter(8+49).Raw(masterDiscriminator[:]).
		Raw(m.Authority[:]).U64(m.TotalUsers).U64(m.TotalEscrows).U8(m.Bump).Bytes()
}

func (u UserAccount) Encode() []byte {
	return borsh.NewWriter(8+4+len(u.Handle)+49).Raw(userDiscriminator[:]).
		String(u.Handle).Raw(u.Owner[:]).U64(u.Balance).U64(u.EscrowBalance).U8(u.Bump).Bytes()
}

func (e EscrowAccount) Encode() []byte {
	return borsh.NewWriter(8+4+len(e.Handle)+9).Raw(escrowDiscriminator[:]).
		String(e.Handle).U64(e.Amount).U8(e.Bump).Bytes()
}

// Decode classifies raw account data by discriminator. Trailing bytes are
// allowed because accounts are allocated at their maximum size.
func Decode(data []byte) State {
	if len(data) == 0 {
		return NotFound{}
	}
	if len(data) < instruction.TagLength {
		return Malformed{Reason: fmt.Errorf("%w: %d bytes", common.ErrMalformedAccount, len(data))}
	}

	var disc [instruction.TagLength]byte
	copy(disc[:], data)
	r := borsh.NewReader(data[instruction.TagLength:])

	var (
		st  State
		err error
	)
	switch disc {
	case masterDiscriminator:
		st, err = decodeMaster(r)
	case userDiscriminator:
		st, err = decodeUser(r)
	case escrowDiscriminator:
		st, err = decodeEscrow(r)
	default:
		err = fmt.Errorf("unknown discriminator %x", disc)
	}
	if err != nil {
		return Malformed{Reason: fmt.Errorf("%w: %v", common.ErrMalformedAccount, err)}
	}
	return st
}

func readKey(r *borsh.Reader) (solana.PublicKey, error) {
	b, err := r.Raw(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b)
}

func decodeMaster(r *borsh.Reader) (State, error) {
	var m MasterWallet
	var err error
	if m.Authority, err = readKey(r); err != nil {
		return nil, err
	}
	if m.TotalUsers, err = r.U64(); err != nil {
		return nil, err
	}
	if m.TotalEscrows, err = r.U64(); err != nil {
		return nil, err
	}
	if m.Bump, err = r.U8(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeUser(r *borsh.Reader) (State, error) {
	var u UserAccount
	var err error
	if u.Handle, err = r.String(handle.MaxLen); err != nil {
		return nil, err
	}
	if u.Owner, err = readKey(r); err != nil {
		return nil, err
	}
	if u.Balance, err = r.U64(); err != nil {
		return nil, err
	}
	if u.EscrowBalance, err = r.U64(); err != nil {
		return nil, err
	}
	if u.Bump, err = r.U8(); err != nil {
		return nil, err
	}
	return u, nil
}

func decodeEscrow(r *borsh.Reader) (State, error) {
	var e EscrowAccount
	var err error
	if e.Handle, err = r.String(handle.MaxLen); err != nil {
		return nil, err
	}
	if e.Amount, err = r.U64(); err != nil {
		return nil, err
	}
	if e.Bump, err = r.U8(); err != nil {
		return nil, err
	}
	return e, nil
}

// Load fetches addr and decodes it. A missing account is NotFound, not an
// error; transport failures are returned as errors.
func Load(ctx context.Context, l Ledger, addr solana.PublicKey) (State, error) {
	acc, err := l.FetchAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return NotFound{}, nil
		}
		return nil, err
	}
	return Decode(acc.Data), nil
}

// Lamports returns the native balance of addr; a missing account holds zero.
func Lamports(ctx context.Context, l Ledger, addr solana.PublicKey) (uint64, error) {
	acc, err := l.FetchAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acc.Lamports, nil
}
