package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/derive"
	"github.com/dmitrijs2005/tipbot/internal/instruction"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

const (
	// DefaultRent is charged per account created by the program.
	DefaultRent uint64 = 2_000_000
	// SignatureFee is charged to the fee payer per required signature.
	SignatureFee uint64 = 5_000
)

type simState struct {
	data     map[solana.PublicKey][]byte
	lamports map[solana.PublicKey]uint64
	tokens   map[solana.PublicKey]uint64
}

func (s simState) clone() simState {
	c := simState{
		data:     make(map[solana.PublicKey][]byte, len(s.data)),
		lamports: make(map[solana.PublicKey]uint64, len(s.lamports)),
		tokens:   make(map[solana.PublicKey]uint64, len(s.tokens)),
	}
	for k, v := range s.data {
		c.data[k] = append([]byte(nil), v...)
	}
	for k, v := range s.lamports {
		c.lamports[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

type faultKind int

const (
	faultReject faultKind = iota + 1
	faultDrop
	faultLoseConfirmation
)

type fault struct {
	kind   faultKind
	reason string
}

// Simulator is an in-process ledger that executes the tip program's
// instructions against in-memory state. Transactions are atomic: a failing
// instruction leaves no trace.
type Simulator struct {
	mu      sync.Mutex
	program solana.PublicKey
	mint    solana.PublicKey
	rent    uint64

	state  simState
	sigs   map[solana.Signature]SignatureState
	slot   uint64
	faults []fault
}

func NewSimulator(program, mint solana.PublicKey) *Simulator {
	return &Simulator{
		program: program,
		mint:    mint,
		rent:    DefaultRent,
		state: simState{
			data:     map[solana.PublicKey][]byte{},
			lamports: map[solana.PublicKey]uint64{},
			tokens:   map[solana.PublicKey]uint64{},
		},
		sigs: map[solana.Signature]SignatureState{},
	}
}

// Airdrop credits native lamports to addr.
func (s *Simulator) Airdrop(addr solana.PublicKey, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.lamports[addr] += lamports
}

// MintTo credits amount tokens to the associated token account of owner.
func (s *Simulator) MintTo(owner solana.PublicKey, amount uint64) error {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, s.mint)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tokens[ata] += amount
	return nil
}

// TokenBalance returns the token amount held at a token account address.
func (s *Simulator) TokenBalance(addr solana.PublicKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.tokens[addr]
}

// RejectNext makes the next Submit fail with reason without executing.
func (s *Simulator) RejectNext(reason string) {
	s.pushFault(fault{kind: faultReject, reason: reason})
}

// DropNext makes the next Submit report an unknown outcome without executing.
func (s *Simulator) DropNext() {
	s.pushFault(fault{kind: faultDrop})
}

// LoseNextConfirmation executes the next Submit but reports an unknown outcome.
func (s *Simulator) LoseNextConfirmation() {
	s.pushFault(fault{kind: faultLoseConfirmation})
}

func (s *Simulator) pushFault(f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

func (s *Simulator) popFault() *fault {
	if len(s.faults) == 0 {
		return nil
	}
	f := s.faults[0]
	s.faults = s.faults[1:]
	return &f
}

func (s *Simulator) Submit(ctx context.Context, sub Submission) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := solana.NewTransaction(sub.Instructions, s.blockhash(), sub.FeePayer.PublicKey())
	if err != nil {
		return Confirmation{}, err
	}
	if err := tx.Sign(sub.allSigners()...); err != nil {
		return Confirmation{}, err
	}
	conf := Confirmation{Signature: tx.Signature()}

	f := s.popFault()
	if f != nil {
		switch f.kind {
		case faultReject:
			return Confirmation{}, &RejectedError{Reason: f.reason}
		case faultDrop:
			return conf, fmt.Errorf("%w: simulated drop", common.ErrUnknownOutcome)
		}
	}

	if _, dup := s.sigs[conf.Signature]; dup {
		return Confirmation{}, &RejectedError{Reason: "This transaction has already been processed"}
	}

	signers := make(map[solana.PublicKey]bool)
	for _, pk := range tx.Message.Signers() {
		signers[pk] = true
	}

	next := s.state.clone()
	fee := SignatureFee * uint64(len(tx.Signatures))
	if next.lamports[tx.Message.AccountKeys[0]] < fee {
		return Confirmation{}, &RejectedError{Reason: "Attempt to debit an account but found no record of a prior credit: insufficient funds for fee"}
	}
	next.lamports[tx.Message.AccountKeys[0]] -= fee

	for i, ix := range sub.Instructions {
		if err := s.execute(&next, ix, signers); err != nil {
			return Confirmation{}, &RejectedError{Reason: fmt.Sprintf("instruction %d: %s", i, err)}
		}
	}

	s.state = next
	s.slot++
	conf.Slot = s.slot
	s.sigs[conf.Signature] = SignatureState{Status: StatusConfirmed}

	if f != nil && f.kind == faultLoseConfirmation {
		return conf, fmt.Errorf("%w: simulated timeout", common.ErrUnknownOutcome)
	}
	return conf, nil
}

func (s *Simulator) blockhash() solana.Hash {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], s.slot)
	return solana.Hash(sha256.Sum256(b[:]))
}

func (s *Simulator) FetchAccount(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.state.data[addr]; ok {
		return &Account{Address: addr, Lamports: s.state.lamports[addr], Owner: s.program, Data: append([]byte(nil), d...)}, nil
	}
	if _, ok := s.state.tokens[addr]; ok {
		return &Account{Address: addr, Lamports: s.state.lamports[addr], Owner: solana.TokenProgramID}, nil
	}
	if l, ok := s.state.lamports[addr]; ok && l > 0 {
		return &Account{Address: addr, Lamports: l, Owner: solana.SystemProgramID}, nil
	}
	return nil, ErrAccountNotFound
}

func (s *Simulator) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error) {
	if err := ctx.Err(); err != nil {
		return SignatureState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sigs[sig]; ok {
		return st, nil
	}
	return SignatureState{Status: StatusUnknown}, nil
}

type execCtx struct {
	st      *simState
	ix      solana.Instruction
	signers map[solana.PublicKey]bool
	rent    uint64
}

func (e *execCtx) keys(n int) ([]solana.PublicKey, error) {
	if len(e.ix.Accounts) < n {
		return nil, fmt.Errorf("not enough account keys: want %d, got %d", n, len(e.ix.Accounts))
	}
	out := make([]solana.PublicKey, n)
	for i := 0; i < n; i++ {
		out[i] = e.ix.Accounts[i].PublicKey
	}
	return out, nil
}

func (e *execCtx) requireSigner(pk solana.PublicKey) error {
	if !e.signers[pk] {
		return fmt.Errorf("missing required signature for %s", pk)
	}
	return nil
}

func (e *execCtx) create(addr, payer solana.PublicKey, data []byte) error {
	if _, exists := e.st.data[addr]; exists {
		return fmt.Errorf("Allocate: account Address { address: %s, base: None } already in use", addr)
	}
	if err := e.debit(payer, e.rent); err != nil {
		return err
	}
	e.st.data[addr] = data
	e.st.lamports[addr] += e.rent
	return nil
}

func (e *execCtx) debit(payer solana.PublicKey, lamports uint64) error {
	if e.st.lamports[payer] < lamports {
		return fmt.Errorf("Transfer: insufficient lamports %d, need %d", e.st.lamports[payer], lamports)
	}
	e.st.lamports[payer] -= lamports
	return nil
}

func (e *execCtx) moveTokens(from, to solana.PublicKey, amount uint64) error {
	if e.st.tokens[from] < amount {
		return fmt.Errorf("Error: insufficient funds")
	}
	e.st.tokens[from] -= amount
	e.st.tokens[to] += amount
	return nil
}

func (e *execCtx) master(addr solana.PublicKey) (MasterWallet, error) {
	m, ok := Decode(e.st.data[addr]).(MasterWallet)
	if !ok {
		return MasterWallet{}, fmt.Errorf("AccountNotInitialized: master_wallet")
	}
	return m, nil
}

func (e *execCtx) user(addr solana.PublicKey) (UserAccount, error) {
	u, ok := Decode(e.st.data[addr]).(UserAccount)
	if !ok {
		return UserAccount{}, fmt.Errorf("AccountNotInitialized: user_account")
	}
	return u, nil
}

func (s *Simulator) execute(st *simState, ix solana.Instruction, signers map[solana.PublicKey]bool) error {
	e := &execCtx{st: st, ix: ix, signers: signers, rent: s.rent}

	if ix.Program == solana.SystemProgramID {
		lamports, ok := solana.DecodeSystemTransfer(ix.Data)
		if !ok {
			return fmt.Errorf("unsupported system instruction")
		}
		k, err := e.keys(2)
		if err != nil {
			return err
		}
		if err := e.requireSigner(k[0]); err != nil {
			return err
		}
		if err := e.debit(k[0], lamports); err != nil {
			return err
		}
		st.lamports[k[1]] += lamports
		return nil
	}

	if ix.Program != s.program {
		return fmt.Errorf("unsupported program %s", ix.Program)
	}

	op, args, err := instruction.Decode(ix.Data)
	if err != nil {
		return fmt.Errorf("InstructionDidNotDeserialize: %v", err)
	}

	switch op {
	case instruction.OpInitialize:
		return s.initialize(e)
	case instruction.OpRegisterUser:
		return s.registerUser(e, args.Handle)
	case instruction.OpDeposit:
		return s.deposit(e, args.Amount)
	case instruction.OpTip:
		return s.tip(e, args.Amount, args.Handle)
	case instruction.OpTipToEscrow:
		return s.tipToEscrow(e, args.Amount, args.Handle)
	case instruction.OpWithdraw:
		return s.withdraw(e, args.Amount)
	}
	return fmt.Errorf("unsupported op %s", op)
}

func (s *Simulator) expect(got solana.PublicKey, tag string, parts [][]byte, authority solana.PublicKey) (derive.Account, error) {
	want, err := derive.Derive(s.program, tag, parts, authority)
	if err != nil {
		return derive.Account{}, err
	}
	if want.Address != got {
		return derive.Account{}, fmt.Errorf("ConstraintSeeds: %s account mismatch", tag)
	}
	return want, nil
}

func (s *Simulator) initialize(e *execCtx) error {
	k, err := e.keys(2)
	if err != nil {
		return err
	}
	masterAddr, authority := k[0], k[1]
	if err := e.requireSigner(authority); err != nil {
		return err
	}
	m, err := s.expect(masterAddr, derive.TagMaster, nil, authority)
	if err != nil {
		return err
	}
	return e.create(masterAddr, authority, MasterWallet{Authority: authority, Bump: m.Bump}.Encode())
}

func (s *Simulator) registerUser(e *execCtx, h string) error {
	k, err := e.keys(6)
	if err != nil {
		return err
	}
	masterAddr, userAddr, owner, userToken, escrowAddr, escrowToken := k[0], k[1], k[2], k[3], k[4], k[5]

	if err := e.requireSigner(owner); err != nil {
		return err
	}
	master, err := e.master(masterAddr)
	if err != nil {
		return err
	}
	userPDA, err := s.expect(userAddr, derive.TagUser, [][]byte{[]byte(h)}, masterAddr)
	if err != nil {
		return err
	}
	if _, err := s.expect(userToken, derive.TagToken, nil, userAddr); err != nil {
		return err
	}
	escrowPDA, err := s.expect(escrowAddr, derive.TagEscrow, [][]byte{[]byte(h)}, masterAddr)
	if err != nil {
		return err
	}
	wantEscrowToken, _, err := solana.FindAssociatedTokenAddress(escrowAddr, s.mint)
	if err != nil {
		return err
	}
	if wantEscrowToken != escrowToken {
		return fmt.Errorf("InvalidEscrowTokenAccount: Invalid escrow token account")
	}

	user := UserAccount{Handle: h, Owner: owner, Bump: userPDA.Bump}
	if err := e.create(userAddr, owner, nil); err != nil {
		return err
	}
	if _, ok := e.st.tokens[userToken]; !ok {
		if err := e.debit(owner, e.rent); err != nil {
			return err
		}
		e.st.tokens[userToken] = 0
	}

	escrow, hasEscrow := Decode(e.st.data[escrowAddr]).(EscrowAccount)
	if !hasEscrow {
		escrow = EscrowAccount{Handle: h, Bump: escrowPDA.Bump}
		if err := e.create(escrowAddr, owner, nil); err != nil {
			return err
		}
	} else if escrow.Handle != h {
		return fmt.Errorf("EscrowHandleMismatch: Escrow handle mismatch")
	}

	if escrow.Amount > 0 {
		if err := e.moveTokens(escrowToken, userToken, escrow.Amount); err != nil {
			return err
		}
		user.Balance = escrow.Amount
		user.EscrowBalance = escrow.Amount
		escrow.Amount = 0
	}

	master.TotalUsers++
	e.st.data[masterAddr] = master.Encode()
	e.st.data[userAddr] = user.Encode()
	e.st.data[escrowAddr] = escrow.Encode()
	return nil
}

func (s *Simulator) deposit(e *execCtx, amount uint64) error {
	k, err := e.keys(5)
	if err != nil {
		return err
	}
	masterAddr, userAddr, depositor, source, userToken := k[0], k[1], k[2], k[3], k[4]

	if err := e.requireSigner(depositor); err != nil {
		return err
	}
	if _, err := e.master(masterAddr); err != nil {
		return err
	}
	user, err := e.user(userAddr)
	if err != nil {
		return err
	}
	if _, err := s.expect(userToken, derive.TagToken, nil, userAddr); err != nil {
		return err
	}
	if err := e.moveTokens(source, userToken, amount); err != nil {
		return err
	}
	user.Balance += amount
	e.st.data[userAddr] = user.Encode()
	return nil
}

func (s *Simulator) tip(e *execCtx, amount uint64, recipient string) error {
	if amount == 0 {
		return fmt.Errorf("InvalidAmount: Invalid amount")
	}
	k, err := e.keys(5)
	if err != nil {
		return err
	}
	masterAddr, senderAddr, recipientAddr, senderToken, recipientToken := k[0], k[1], k[2], k[3], k[4]

	if _, err := e.master(masterAddr); err != nil {
		return err
	}
	if _, err := s.expect(recipientAddr, derive.TagUser, [][]byte{[]byte(recipient)}, masterAddr); err != nil {
		return err
	}
	sender, err := e.user(senderAddr)
	if err != nil {
		return err
	}
	rcpt, err := e.user(recipientAddr)
	if err != nil {
		return err
	}
	if rcpt.Handle != recipient {
		return fmt.Errorf("EscrowHandleMismatch: Escrow handle mismatch")
	}
	if sender.Balance < amount {
		return fmt.Errorf("InsufficientBalance: Insufficient balance")
	}
	if err := e.moveTokens(senderToken, recipientToken, amount); err != nil {
		return err
	}
	sender.Balance -= amount
	rcpt.Balance += amount
	e.st.data[senderAddr] = sender.Encode()
	e.st.data[recipientAddr] = rcpt.Encode()
	return nil
}

func (s *Simulator) tipToEscrow(e *execCtx, amount uint64, recipient string) error {
	if amount == 0 {
		return fmt.Errorf("InvalidAmount: Invalid amount")
	}
	k, err := e.keys(6)
	if err != nil {
		return err
	}
	masterAddr, senderAddr, escrowAddr, payer, senderToken, escrowToken := k[0], k[1], k[2], k[3], k[4], k[5]

	if err := e.requireSigner(payer); err != nil {
		return err
	}
	master, err := e.master(masterAddr)
	if err != nil {
		return err
	}
	sender, err := e.user(senderAddr)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("InsufficientBalance: Insufficient balance")
	}
	escrowPDA, err := s.expect(escrowAddr, derive.TagEscrow, [][]byte{[]byte(recipient)}, masterAddr)
	if err != nil {
		return err
	}
	wantEscrowToken, _, err := solana.FindAssociatedTokenAddress(escrowAddr, s.mint)
	if err != nil {
		return err
	}
	if wantEscrowToken != escrowToken {
		return fmt.Errorf("InvalidEscrowTokenAccount: Invalid escrow token account")
	}

	escrow, ok := Decode(e.st.data[escrowAddr]).(EscrowAccount)
	if !ok {
		escrow = EscrowAccount{Handle: recipient, Bump: escrowPDA.Bump}
		if err := e.create(escrowAddr, payer, nil); err != nil {
			return err
		}
	} else if escrow.Handle != recipient {
		return fmt.Errorf("EscrowHandleMismatch: Escrow handle mismatch")
	}

	if _, ok := e.st.tokens[escrowToken]; !ok {
		if err := e.debit(payer, e.rent); err != nil {
			return err
		}
		e.st.tokens[escrowToken] = 0
	}
	if err := e.moveTokens(senderToken, escrowToken, amount); err != nil {
		return err
	}

	sender.Balance -= amount
	escrow.Amount += amount
	master.TotalEscrows++
	e.st.data[senderAddr] = sender.Encode()
	e.st.data[escrowAddr] = escrow.Encode()
	e.st.data[masterAddr] = master.Encode()
	return nil
}

func (s *Simulator) withdraw(e *execCtx, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("InvalidAmount: Invalid amount")
	}
	k, err := e.keys(5)
	if err != nil {
		return err
	}
	masterAddr, userAddr, owner, userToken, dest := k[0], k[1], k[2], k[3], k[4]

	if err := e.requireSigner(owner); err != nil {
		return err
	}
	if _, err := e.master(masterAddr); err != nil {
		return err
	}
	user, err := e.user(userAddr)
	if err != nil {
		return err
	}
	if user.Owner != owner {
		return fmt.Errorf("ConstraintHasOne: A has one constraint was violated")
	}
	if user.Balance < amount {
		return fmt.Errorf("InsufficientBalance: Insufficient balance")
	}
	if err := e.moveTokens(userToken, dest, amount); err != nil {
		return err
	}
	user.Balance -= amount
	e.st.data[userAddr] = user.Encode()
	return nil
}
