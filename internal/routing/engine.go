// Package routing decides how value moves between handles and drives the
// resulting ledger submissions: registration with escrow claim, direct and
// escrow tips, deposits, withdrawals and reconciliation of unknown outcomes.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/custody"
	"github.com/dmitrijs2005/tipbot/internal/derive"
	"github.com/dmitrijs2005/tipbot/internal/instruction"
	"github.com/dmitrijs2005/tipbot/internal/journal"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/metrics"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// DefaultRegistrationFunding is the lamports sent to a custodied wallet so it
// can pay rent for the accounts created at registration.
const DefaultRegistrationFunding uint64 = 10_000_000

// Custody is the slice of the custody registry the engine relies on.
type Custody interface {
	Lookup(ctx context.Context, h string) (custody.Record, bool, error)
	Generate(ctx context.Context, h string) (custody.Record, error)
	RegisterExternal(ctx context.Context, h string, pub solana.PublicKey) (custody.Record, error)
	MarkRegistered(ctx context.Context, h string) (custody.Record, error)
	WithSigner(ctx context.Context, h string, fn func(solana.Signer) error) error
	Wallet(ctx context.Context, h string) (solana.PublicKey, bool, error)
	Records() []custody.Record
}

// Journal records tip attempts by inbound message id.
type Journal interface {
	Begin(a journal.Attempt) (journal.Attempt, bool, error)
	Update(messageID string, fn func(*journal.Attempt) error) (journal.Attempt, error)
	Get(messageID string) (journal.Attempt, bool, error)
	Pending() ([]journal.Attempt, error)
}

type Config struct {
	// Cluster names the network in explorer links.
	Cluster string
	// RegistrationFunding overrides DefaultRegistrationFunding when non-zero.
	RegistrationFunding uint64
	// PendingGrace is how long an attempt without a signature stays pending
	// before reconciliation marks it failed.
	PendingGrace time.Duration
}

// Deps wires the engine. Journal and Metrics are optional.
type Deps struct {
	Ledger    ledger.Ledger
	Custody   Custody
	Journal   Journal
	Authority solana.Signer
	Program   solana.PublicKey
	Mint      solana.PublicKey
	Metrics   *metrics.Metrics
	Logger    logging.Logger
	Config    Config
}

// Engine routes operations. It holds no lock around check-then-submit; the
// ledger enforces balances at execution time.
type Engine struct {
	ledger    ledger.Ledger
	custody   Custody
	journal   Journal
	authority solana.Signer
	deriver   *derive.Deriver
	builder   *instruction.Builder
	balances  *balance.Accessor
	metrics   *metrics.Metrics
	logger    logging.Logger
	cfg       Config

	inflight sync.Map
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	cfg := d.Config
	if cfg.RegistrationFunding == 0 {
		cfg.RegistrationFunding = DefaultRegistrationFunding
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "devnet"
	}
	if cfg.PendingGrace == 0 {
		cfg.PendingGrace = 5 * time.Minute
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	deriver := derive.NewDeriver(d.Program, d.Authority.PublicKey(), d.Mint)
	return &Engine{
		ledger:    d.Ledger,
		custody:   d.Custody,
		journal:   d.Journal,
		authority: d.Authority,
		deriver:   deriver,
		builder:   instruction.NewBuilder(deriver),
		balances:  balance.NewAccessor(d.Ledger, deriver, d.Custody),
		metrics:   d.Metrics,
		logger:    logger.With("module", "routing"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Cluster is the network name used in explorer links.
func (e *Engine) Cluster() string { return e.cfg.Cluster }

// Deriver exposes the account derivations the engine uses.
func (e *Engine) Deriver() *derive.Deriver { return e.deriver }

// InitializeMaster creates the master wallet. Re-initialization is reported
// as a confirmed no-op.
func (e *Engine) InitializeMaster(ctx context.Context) (Outcome, error) {
	ix, err := e.builder.Initialize()
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Kind: KindInitialize}

	conf, err := e.submit(ctx, "initialize", []solana.Instruction{ix})
	if err != nil {
		if ledger.IsAlreadyInUse(err) {
			out.Status = StatusConfirmed
			out.Noop = true
			e.logger.Info(ctx, "master wallet already initialized")
			return out, nil
		}
		return settle(out, conf, err)
	}
	out.Status = StatusConfirmed
	out.Signature = conf.Signature
	e.logger.Info(ctx, "master wallet initialized", "signature", conf.Signature.String())
	return out, nil
}

// Balance reads the balances of h.
func (e *Engine) Balance(ctx context.Context, h string) (balance.Balance, error) {
	return e.balances.BalanceOf(ctx, h)
}

// submit sends ixs with the authority as fee payer.
func (e *Engine) submit(ctx context.Context, op string, ixs []solana.Instruction, signers ...solana.Signer) (ledger.Confirmation, error) {
	start := time.Now()
	conf, err := e.ledger.Submit(ctx, ledger.Submission{
		Instructions: ixs,
		FeePayer:     e.authority,
		Signers:      signers,
	})
	e.metrics.ObserveLedger(op, start, err)
	if err != nil {
		e.logger.Warn(ctx, "ledger submission did not confirm", "op", op, "error", err)
	}
	return conf, err
}

// settle folds a submission error into out. Rejections and unknown outcomes
// become outcome states; anything else happened before the transaction left
// the process and is returned as an error.
func settle(out Outcome, conf ledger.Confirmation, err error) (Outcome, error) {
	var re *ledger.RejectedError
	switch {
	case err == nil:
		out.Status = StatusConfirmed
		out.Signature = conf.Signature
		return out, nil
	case errors.As(err, &re):
		out.Status = StatusFailed
		out.Reason = rejectionReason(re)
		return out, nil
	case errors.Is(err, common.ErrUnknownOutcome):
		out.Status = StatusPending
		out.Signature = conf.Signature
		return out, nil
	}
	return Outcome{}, err
}

func rejectionReason(re *ledger.RejectedError) string {
	switch ledger.Classify(re) {
	case ledger.RejectionInsufficientBalance:
		return "insufficient balance"
	case ledger.RejectionInsufficientFunds:
		return "insufficient funds"
	case ledger.RejectionHandleMismatch:
		return "escrow handle mismatch"
	case ledger.RejectionUnauthorized:
		return "not authorized"
	case ledger.RejectionAlreadyInUse:
		return "account already exists"
	}
	reason := strings.TrimSpace(re.Reason)
	if i := strings.IndexByte(reason, '\n'); i >= 0 {
		reason = reason[:i]
	}
	if reason == "" {
		return "rejected by ledger"
	}
	return reason
}

func (e *Engine) ownerOf(rec custody.Record) solana.PublicKey {
	if rec.External() {
		return e.authority.PublicKey()
	}
	return rec.PublicID
}

func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
}
