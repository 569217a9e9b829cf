package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/netx"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// RPCConfig holds client configuration.
type RPCConfig struct {
	URL            string
	Commitment     string
	Timeout        time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	RequestsPerSec float64
	Burst          int
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int64
	Message string
	Logs    []string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// RPCLedger talks JSON-RPC 2.0 to a cluster node.
type RPCLedger struct {
	cfg     RPCConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewRPCLedger creates a new RPC-backed ledger.
func NewRPCLedger(cfg RPCConfig, l logging.Logger) (*RPCLedger, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RPCLedger{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  l.With("module", "rpc_ledger"),
	}, nil
}

func (c *RPCLedger) call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := netx.PostJSON(ctx, c.http, c.cfg.URL, body)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: invalid json response", method)
	}

	resp := gjson.ParseBytes(raw)
	if e := resp.Get("error"); e.Exists() && e.Type != gjson.Null {
		rpcErr := &RPCError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
		for _, l := range e.Get("data.logs").Array() {
			rpcErr.Logs = append(rpcErr.Logs, l.String())
		}
		return gjson.Result{}, rpcErr
	}
	return resp.Get("result"), nil
}

func (c *RPCLedger) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.call(ctx, "getLatestBlockhash", map[string]any{"commitment": c.cfg.Commitment})
	if err != nil {
		return solana.Hash{}, err
	}
	return solana.HashFromBase58(res.Get("value.blockhash").String())
}

// Submit signs, sends and waits for confirmation. Failures before the
// transaction leaves the process are plain errors; a node refusal is a
// RejectedError; anything after sending without a verdict is
// ErrUnknownOutcome together with the signature.
func (c *RPCLedger) Submit(ctx context.Context, sub Submission) (Confirmation, error) {
	bh, err := c.latestBlockhash(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(sub.Instructions, bh, sub.FeePayer.PublicKey())
	if err != nil {
		return Confirmation{}, err
	}
	if err := tx.Sign(sub.allSigners()...); err != nil {
		return Confirmation{}, err
	}
	raw, err := tx.Serialize()
	if err != nil {
		return Confirmation{}, err
	}

	conf := Confirmation{Signature: tx.Signature()}
	_, err = c.call(ctx, "sendTransaction", base64.StdEncoding.EncodeToString(raw), map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.cfg.Commitment,
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return Confirmation{}, &RejectedError{Reason: rpcErr.Message, Logs: rpcErr.Logs}
		}
		c.logger.Warn(ctx, "send outcome unknown", "signature", conf.Signature.String(), "error", err)
		return conf, fmt.Errorf("%w: %v", common.ErrUnknownOutcome, err)
	}

	return c.awaitConfirmation(ctx, conf)
}

func (c *RPCLedger) awaitConfirmation(ctx context.Context, conf Confirmation) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, slot, err := c.signatureStatus(ctx, conf.Signature)
		if err == nil {
			switch st.Status {
			case StatusConfirmed:
				conf.Slot = slot
				return conf, nil
			case StatusFailed:
				return conf, &RejectedError{Reason: st.Reason}
			}
		} else {
			c.logger.Debug(ctx, "status poll failed", "signature", conf.Signature.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			return conf, fmt.Errorf("%w: confirmation not observed: %v", common.ErrUnknownOutcome, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *RPCLedger) signatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, uint64, error) {
	res, err := c.call(ctx, "getSignatureStatuses", []string{sig.String()}, map[string]any{"searchTransactionHistory": true})
	if err != nil {
		return SignatureState{}, 0, err
	}
	v := res.Get("value.0")
	if !v.Exists() || v.Type == gjson.Null {
		return SignatureState{Status: StatusUnknown}, 0, nil
	}
	if e := v.Get("err"); e.Exists() && e.Type != gjson.Null {
		return SignatureState{Status: StatusFailed, Reason: e.Raw}, v.Get("slot").Uint(), nil
	}
	switch v.Get("confirmationStatus").String() {
	case "confirmed", "finalized":
		return SignatureState{Status: StatusConfirmed}, v.Get("slot").Uint(), nil
	default:
		return SignatureState{Status: StatusPending}, v.Get("slot").Uint(), nil
	}
}

// SignatureStatus reports the settled state of sig.
func (c *RPCLedger) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error) {
	st, _, err := c.signatureStatus(ctx, sig)
	return st, err
}

// FetchAccount reads addr with base64 data encoding.
func (c *RPCLedger) FetchAccount(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	res, err := c.call(ctx, "getAccountInfo", addr.String(), map[string]any{
		"encoding":   "base64",
		"commitment": c.cfg.Commitment,
	})
	if err != nil {
		return nil, err
	}
	v := res.Get("value")
	if !v.Exists() || v.Type == gjson.Null {
		return nil, ErrAccountNotFound
	}

	owner, err := solana.PublicKeyFromBase58(v.Get("owner").String())
	if err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(v.Get("data.0").String())
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}
	return &Account{Address: addr, Lamports: v.Get("lamports").Uint(), Owner: owner, Data: data}, nil
}
