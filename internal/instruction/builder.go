package instruction

import (
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/derive"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Builder produces complete program instructions: encoded payload plus the
// account list in the order and with the flags the program expects.
type Builder struct {
	d *derive.Deriver
}

func NewBuilder(d *derive.Deriver) *Builder {
	return &Builder{d: d}
}

func (b *Builder) instruction(op Op, args Args, metas []solana.AccountMeta) (solana.Instruction, error) {
	data, err := Encode(op, args)
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{Program: b.d.Program(), Accounts: metas, Data: data}, nil
}

// Initialize creates the master account. The bot authority pays and signs.
func (b *Builder) Initialize() (solana.Instruction, error) {
	master, err := b.d.Master()
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpInitialize, Args{}, []solana.AccountMeta{
		solana.Meta(master.Address).Writable(),
		solana.Meta(b.d.Authority()).Writable().Signer(),
		solana.Meta(solana.SystemProgramID),
	})
}

// RegisterUser creates the user account of handle and sweeps its escrow in the
// same instruction. owner pays rent and becomes the recorded owner.
func (b *Builder) RegisterUser(handle string, owner solana.PublicKey) (solana.Instruction, error) {
	s, err := b.d.All(handle)
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpRegisterUser, Args{Handle: handle}, []solana.AccountMeta{
		solana.Meta(s.Master.Address).Writable(),
		solana.Meta(s.User.Address).Writable(),
		solana.Meta(owner).Writable().Signer(),
		solana.Meta(s.Token.Address).Writable(),
		solana.Meta(s.Escrow.Address).Writable(),
		solana.Meta(s.EscrowToken).Writable(),
		solana.Meta(b.d.Mint()),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.AssociatedTokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysvarRentID),
	})
}

// Deposit credits handle from the depositor's associated token account.
func (b *Builder) Deposit(handle string, depositor solana.PublicKey, amount uint64) (solana.Instruction, error) {
	master, err := b.d.Master()
	if err != nil {
		return solana.Instruction{}, err
	}
	user, err := b.d.User(handle)
	if err != nil {
		return solana.Instruction{}, err
	}
	token, err := b.d.Token(handle)
	if err != nil {
		return solana.Instruction{}, err
	}
	source, err := b.d.AssociatedToken(depositor)
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpDeposit, Args{Amount: amount}, []solana.AccountMeta{
		solana.Meta(master.Address),
		solana.Meta(user.Address).Writable(),
		solana.Meta(depositor).Writable().Signer(),
		solana.Meta(source).Writable(),
		solana.Meta(token.Address).Writable(),
		solana.Meta(b.d.Mint()),
		solana.Meta(solana.TokenProgramID),
	})
}

// Tip moves amount between two registered handles.
func (b *Builder) Tip(sender, recipient string, amount uint64) (solana.Instruction, error) {
	if sender == recipient {
		return solana.Instruction{}, fmt.Errorf("%w: sender equals recipient", ErrInvalidArgs)
	}
	from, err := b.d.All(sender)
	if err != nil {
		return solana.Instruction{}, err
	}
	to, err := b.d.All(recipient)
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpTip, Args{Handle: recipient, Amount: amount}, []solana.AccountMeta{
		solana.Meta(from.Master.Address).Writable(),
		solana.Meta(from.User.Address).Writable(),
		solana.Meta(to.User.Address).Writable(),
		solana.Meta(from.Token.Address).Writable(),
		solana.Meta(to.Token.Address).Writable(),
		solana.Meta(b.d.Mint()),
		solana.Meta(solana.TokenProgramID),
	})
}

// TipToEscrow moves amount from a registered sender into the escrow of an
// unregistered recipient. payer funds escrow creation when needed.
func (b *Builder) TipToEscrow(sender, recipient string, payer solana.PublicKey, amount uint64) (solana.Instruction, error) {
	if sender == recipient {
		return solana.Instruction{}, fmt.Errorf("%w: sender equals recipient", ErrInvalidArgs)
	}
	from, err := b.d.All(sender)
	if err != nil {
		return solana.Instruction{}, err
	}
	to, err := b.d.All(recipient)
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpTipToEscrow, Args{Handle: recipient, Amount: amount}, []solana.AccountMeta{
		solana.Meta(from.Master.Address).Writable(),
		solana.Meta(from.User.Address).Writable(),
		solana.Meta(to.Escrow.Address).Writable(),
		solana.Meta(payer).Writable().Signer(),
		solana.Meta(from.Token.Address).Writable(),
		solana.Meta(to.EscrowToken).Writable(),
		solana.Meta(b.d.Mint()),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.AssociatedTokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysvarRentID),
	})
}

// Withdraw sends amount from handle to the associated token account of
// destination. owner must be the owner recorded at registration.
func (b *Builder) Withdraw(handle string, owner, destination solana.PublicKey, amount uint64) (solana.Instruction, error) {
	s, err := b.d.All(handle)
	if err != nil {
		return solana.Instruction{}, err
	}
	dest, err := b.d.AssociatedToken(destination)
	if err != nil {
		return solana.Instruction{}, err
	}
	return b.instruction(OpWithdraw, Args{Amount: amount}, []solana.AccountMeta{
		solana.Meta(s.Master.Address),
		solana.Meta(s.User.Address).Writable(),
		solana.Meta(owner).Signer(),
		solana.Meta(s.Token.Address).Writable(),
		solana.Meta(dest).Writable(),
		solana.Meta(destination),
		solana.Meta(b.d.Mint()),
		solana.Meta(solana.TokenProgramID),
	})
}
