package routing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/cryptox"
	"github.com/dmitrijs2005/tipbot/internal/custody"
	"github.com/dmitrijs2005/tipbot/internal/journal"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("JDj9z4vXUj46cRX4UmnfLgV2fGNw2Qnjewr5qzgeHrSo")
	testMint    = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

type flakyStore struct {
	mu      sync.Mutex
	records []custody.Record
	saves   int
	failAt  int
}

func (s *flakyStore) Load(context.Context) ([]custody.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]custody.Record(nil), s.records...), nil
}

func (s *flakyStore) Save(_ context.Context, records []custody.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saves == s.failAt {
		return errors.New("disk full")
	}
	s.records = append([]custody.Record(nil), records...)
	return nil
}

type harness struct {
	eng     *Engine
	sim     *ledger.Simulator
	auth    *solana.Keypair
	reg     *custody.Registry
	store   *flakyStore
	journal *journal.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	auth, err := solana.NewKeypair()
	require.NoError(t, err)
	sim := ledger.NewSimulator(testProgram, testMint)
	sim.Airdrop(auth.PublicKey(), 10_000_000_000)
	require.NoError(t, sim.MintTo(auth.PublicKey(), 1_000_000_000))

	sealer, err := cryptox.NewSealer([]byte("test"))
	require.NoError(t, err)
	store := &flakyStore{}
	reg := custody.NewRegistry(store, sealer, logging.Nop{})
	require.NoError(t, reg.Open(ctx))

	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jr.Close() })

	eng := NewEngine(Deps{
		Ledger:    sim,
		Custody:   reg,
		Journal:   jr,
		Authority: auth,
		Program:   testProgram,
		Mint:      testMint,
		Config:    Config{Cluster: "devnet"},
	})
	out, err := eng.InitializeMaster(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, out.Status)

	return &harness{eng: eng, sim: sim, auth: auth, reg: reg, store: store, journal: jr}
}

func (h *harness) register(t *testing.T, handle string) Outcome {
	t.Helper()
	out, err := h.eng.Register(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, out.Status, out.Reason)
	return out
}

func (h *harness) deposit(t *testing.T, handle, amount string) {
	t.Helper()
	out, err := h.eng.Deposit(context.Background(), handle, amount)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, out.Status, out.Reason)
}

func (h *harness) balance(t *testing.T, handle string) balance.Balance {
	t.Helper()
	b, err := h.eng.Balance(context.Background(), handle)
	require.NoError(t, err)
	return b
}

func TestInitializeMasterTwiceIsNoop(t *testing.T) {
	h := newHarness(t)

	out, err := h.eng.InitializeMaster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.True(t, out.Noop)
	assert.Equal(t, "Master wallet already initialized.", out.Reply("devnet"))
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.register(t, "@Alice")
	assert.Equal(t, "alice", out.Handle)
	assert.False(t, out.Signature.IsZero())

	rec, ok, err := h.reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Registered)
	assert.Equal(t, rec.PublicID, out.Wallet)

	b := h.balance(t, "alice")
	assert.True(t, b.Registered)
	assert.NotZero(t, b.Native, "custodied wallet keeps the unspent funding")

	_, err = h.eng.Register(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrAlreadyRegistered)
}

func TestRegisterInFlightIsRejected(t *testing.T) {
	h := newHarness(t)
	release, err := h.eng.acquire("alice")
	require.NoError(t, err)

	_, err = h.eng.Register(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrAlreadyRegistered)

	release()
	h.register(t, "alice")
}

func TestEscrowScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "10")

	route, err := h.eng.SelectRoute(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, RouteEscrow, route)

	out, err := h.eng.Tip(ctx, TipRequest{Sender: "alice", Recipient: "@bob", Amount: "2"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, RouteEscrow, out.Route)
	assert.Contains(t, out.Reply("devnet"), "held in escrow until @bob registers")

	assert.Equal(t, balance.Balance{Escrowed: 2_000_000}, h.balance(t, "bob"))
	assert.Equal(t, uint64(8_000_000), h.balance(t, "alice").Available)

	reg := h.register(t, "bob")
	assert.Equal(t, uint64(2_000_000), reg.Claimed)
	assert.Contains(t, reg.Reply("devnet"), "Claimed 2 USDC")

	b := h.balance(t, "bob")
	assert.Equal(t, uint64(2_000_000), b.Available)
	assert.Zero(t, b.Escrowed)

	route, err = h.eng.SelectRoute(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, RouteDirect, route)

	out, err = h.eng.Tip(ctx, TipRequest{Sender: "bob", Recipient: "alice", Amount: "0.5", Asset: "usdc"})
	require.NoError(t, err)
	assert.Equal(t, RouteDirect, out.Route)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, uint64(8_500_000), h.balance(t, "alice").Available)
	assert.Equal(t, uint64(1_500_000), h.balance(t, "bob").Available)
}

func TestSelectRouteNormalizesRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.register(t, "bob")
	h.deposit(t, "alice", "5")

	for _, raw := range []string{"bob", "@Bob", " @BOB "} {
		route, err := h.eng.SelectRoute(ctx, raw)
		require.NoError(t, err, raw)
		assert.Equal(t, RouteDirect, route, raw)
	}

	_, err := h.eng.SelectRoute(ctx, "@")
	assert.ErrorIs(t, err, common.ErrValidation)

	out, err := h.eng.Tip(ctx, TipRequest{Sender: "@Alice", Recipient: "@Bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, RouteDirect, out.Route)
	assert.Equal(t, uint64(1_000_000), h.balance(t, "bob").Available)
	assert.Zero(t, h.balance(t, "@BOB").Escrowed)
}

func TestTipValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "1")

	tests := []struct {
		name string
		req  TipRequest
		want error
	}{
		{"self", TipRequest{Sender: "alice", Recipient: "@ALICE", Amount: "1"}, common.ErrValidation},
		{"native", TipRequest{Sender: "alice", Recipient: "bob", Amount: "1", Asset: "SOL"}, common.ErrValidation},
		{"below minimum", TipRequest{Sender: "alice", Recipient: "bob", Amount: "0.0009"}, common.ErrValidation},
		{"zero", TipRequest{Sender: "alice", Recipient: "bob", Amount: "0"}, common.ErrValidation},
		{"bad amount", TipRequest{Sender: "alice", Recipient: "bob", Amount: "lots"}, common.ErrValidation},
		{"bad handle", TipRequest{Sender: "alice", Recipient: "b o b", Amount: "1"}, common.ErrValidation},
		{"unregistered sender", TipRequest{Sender: "carol", Recipient: "bob", Amount: "1"}, common.ErrSenderUnregistered},
		{"insufficient", TipRequest{Sender: "alice", Recipient: "bob", Amount: "1.000001"}, common.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.eng.Tip(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.NotEmpty(t, ReplyForError(err))
		})
	}
}

func TestTipLedgerRejection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "1")

	h.sim.RejectNext("Program log: Error: Insufficient balance")
	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "insufficient balance", out.Reason)
	assert.ErrorIs(t, out.Err(), common.ErrLedgerRejected)
	assert.Equal(t, "Tip failed: insufficient balance", out.Reply("devnet"))

	a, ok, err := h.journal.Get("m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusFailed, a.Status)
}

func TestTipIsIdempotentByMessageID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")

	req := TipRequest{MessageID: "tweet-1", Sender: "alice", Recipient: "bob", Amount: "1"}
	first, err := h.eng.Tip(ctx, req)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, first.Status)
	assert.NotEmpty(t, first.AttemptID)

	second, err := h.eng.Tip(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, RouteEscrow, second.Route)

	assert.Equal(t, uint64(4_000_000), h.balance(t, "alice").Available)
	assert.Equal(t, uint64(1_000_000), h.balance(t, "bob").Escrowed)
}

func TestUnknownOutcomeIsReconciled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")

	h.sim.LoseNextConfirmation()
	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.ErrorIs(t, out.Err(), common.ErrUnknownOutcome)
	assert.Contains(t, out.Reply("devnet"), "confirmation pending")

	replay, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, replay.Status, "pending attempts are never resubmitted")

	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Confirmed)

	a, _, err := h.journal.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, a.Status)
	assert.Equal(t, uint64(4_000_000), h.balance(t, "alice").Available)
}

func TestDroppedTipExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")

	h.sim.DropNext()
	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)

	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.StillPending)

	h.eng.now = func() time.Time { return time.Now().Add(time.Hour) }
	rep, err = h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	a, _, err := h.journal.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusFailed, a.Status)
	assert.Equal(t, "transaction expired", a.Reason)
	assert.Equal(t, uint64(5_000_000), h.balance(t, "alice").Available)
}

type failingJournal struct {
	*journal.Store
	mu      sync.Mutex
	fail    int // remaining Update failures, negative for all
	updates int
}

func (j *failingJournal) Update(messageID string, fn func(*journal.Attempt) error) (journal.Attempt, error) {
	j.mu.Lock()
	j.updates++
	fail := j.fail != 0
	if j.fail > 0 {
		j.fail--
	}
	j.mu.Unlock()
	if fail {
		return journal.Attempt{}, errors.New("journal write failed")
	}
	return j.Store.Update(messageID, fn)
}

type statusErrLedger struct{ ledger.Ledger }

func (statusErrLedger) SignatureStatus(context.Context, solana.Signature) (ledger.SignatureState, error) {
	return ledger.SignatureState{}, errors.New("rpc timeout")
}

func TestTipJournalFailureIsNotMarkedFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")
	h.eng.journal = &failingJournal{Store: h.journal, fail: -1}

	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.ErrorIs(t, err, common.ErrPersistence)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.False(t, out.Signature.IsZero())
	assert.Contains(t, ReplyForError(err), "could not be recorded")

	a, ok, err := h.journal.Get("m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusPending, a.Status)
	assert.Empty(t, a.Signature)
	require.NotNil(t, a.Snapshot)
	assert.Equal(t, journal.Snapshot{SenderAvailable: 5_000_000}, *a.Snapshot)

	h.eng.now = func() time.Time { return time.Now().Add(time.Hour) }
	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{NeedsReview: 1}, rep)

	a, _, err = h.journal.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusPending, a.Status)

	replay, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, uint64(4_000_000), h.balance(t, "alice").Available)
	assert.Equal(t, uint64(1_000_000), h.balance(t, "bob").Escrowed)
}

func TestTipJournalUpdateIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")
	jr := &failingJournal{Store: h.journal, fail: 1}
	h.eng.journal = jr

	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, 2, jr.updates)

	a, _, err := h.journal.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, a.Status)
	assert.Equal(t, out.Signature.String(), a.Signature)
}

func TestUnsignedAttemptSettlesAgainstBalances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")

	_, _, err := h.journal.Begin(journal.Attempt{
		MessageID: "untouched", Sender: "alice", Recipient: "bob", Amount: 1_000_000, Asset: "USDC", Route: "escrow",
		Snapshot: &journal.Snapshot{SenderAvailable: 5_000_000},
	})
	require.NoError(t, err)
	_, _, err = h.journal.Begin(journal.Attempt{
		MessageID: "legacy", Sender: "alice", Recipient: "bob", Amount: 1_000_000, Asset: "USDC", Route: "escrow",
	})
	require.NoError(t, err)

	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{StillPending: 2}, rep, "inside the grace period nothing settles")

	h.eng.now = func() time.Time { return time.Now().Add(time.Hour) }
	rep, err = h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Failed: 1, NeedsReview: 1}, rep)

	a, _, err := h.journal.Get("untouched")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusFailed, a.Status)
	assert.Equal(t, "never submitted", a.Reason)

	a, _, err = h.journal.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusPending, a.Status)
}

func TestReconcileContinuesPastStatusErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "5")

	h.sim.LoseNextConfirmation()
	out, err := h.eng.Tip(ctx, TipRequest{MessageID: "m1", Sender: "alice", Recipient: "bob", Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)

	h.store.failAt = h.store.saves + 2
	_, err = h.eng.Register(ctx, "carol")
	require.ErrorIs(t, err, common.ErrPersistence)

	h.eng.ledger = statusErrLedger{h.sim}
	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{StillPending: 1, Registrations: 1}, rep)

	h.eng.ledger = h.sim
	rep, err = h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Confirmed: 1}, rep)
}

func TestRegisterFlushFailureIsReconciled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.failAt = 2

	out, err := h.eng.Register(ctx, "alice")
	require.ErrorIs(t, err, common.ErrPersistence)
	assert.Equal(t, StatusConfirmed, out.Status)
	assert.False(t, out.Signature.IsZero())

	rec, ok, err := h.reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.Registered)

	rep, err := h.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Registrations)

	rec, _, err = h.reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rec.Registered)
}

func TestRegisterResumesAfterRejection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sim.RejectNext("Blockhash not found")
	out, err := h.eng.Register(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)

	rec, ok, err := h.reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.Registered)

	again := h.register(t, "alice")
	assert.Equal(t, rec.PublicID, again.Wallet, "the stored key is reused")
}

func TestRegisterExternalAndWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wallet, err := solana.NewKeypair()
	require.NoError(t, err)

	_, err = h.eng.RegisterExternal(ctx, "dave", "not-an-address")
	assert.ErrorIs(t, err, common.ErrValidation)

	out, err := h.eng.RegisterExternal(ctx, "dave", wallet.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, wallet.PublicKey(), out.Wallet)

	_, err = h.eng.RegisterExternal(ctx, "dave", wallet.PublicKey().String())
	assert.ErrorIs(t, err, common.ErrAlreadyRegistered)

	h.deposit(t, "dave", "3")
	w, err := h.eng.Withdraw(ctx, "dave", wallet.PublicKey().String(), "1")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, w.Status, w.Reason)

	ata, err := h.eng.Deriver().AssociatedToken(wallet.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), h.sim.TokenBalance(ata))
	assert.Equal(t, uint64(2_000_000), h.balance(t, "dave").Available)
}

func TestWithdrawCustodied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice")
	h.deposit(t, "alice", "2")
	dest, err := solana.NewKeypair()
	require.NoError(t, err)

	out, err := h.eng.Withdraw(ctx, "alice", dest.PublicKey().String(), "1.5")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, out.Status, out.Reason)
	assert.Contains(t, out.Reply("devnet"), "Withdrew 1.5 USDC")

	_, err = h.eng.Withdraw(ctx, "alice", dest.PublicKey().String(), "1")
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	_, err = h.eng.Withdraw(ctx, "ghost", dest.PublicKey().String(), "1")
	assert.ErrorIs(t, err, common.ErrSenderUnregistered)
}

func TestDepositUnregistered(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Deposit(context.Background(), "nobody", "1")
	assert.ErrorIs(t, err, common.ErrRecipientUnregistered)
}

func TestBalanceOfNobody(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, balance.Balance{}, h.balance(t, "nobody"))
}
