package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/routing"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

func (s *GRPCServer) InitializeMaster(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.logger.Info(ctx, "Initialize master request")
	out, err := s.engine.InitializeMaster(ctx)
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h := stringField(req, "handle")
	s.logger.Info(ctx, "Registration request", "handle", h)
	out, err := s.engine.Register(ctx, h)
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) RegisterExternal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h := stringField(req, "handle")
	s.logger.Info(ctx, "External registration request", "handle", h)
	out, err := s.engine.RegisterExternal(ctx, h, stringField(req, "wallet"))
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) Tip(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tr := routing.TipRequest{
		MessageID: stringField(req, "message_id"),
		Sender:    stringField(req, "sender"),
		Recipient: stringField(req, "recipient"),
		Amount:    stringField(req, "amount"),
		Asset:     stringField(req, "asset"),
	}
	s.logger.Info(ctx, "Tip request", "message_id", tr.MessageID, "handle", tr.Sender)
	out, err := s.engine.Tip(ctx, tr)
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.engine.Deposit(ctx, stringField(req, "handle"), stringField(req, "amount"))
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.engine.Withdraw(ctx, stringField(req, "handle"), stringField(req, "destination"), stringField(req, "amount"))
	return s.outcome(ctx, out, err)
}

func (s *GRPCServer) Balance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	b, err := s.engine.Balance(ctx, stringField(req, "handle"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"registered": b.Registered,
		"available":  balance.USDC.Format(b.Available),
		"escrowed":   balance.USDC.Format(b.Escrowed),
		"native":     balance.SOL.Format(b.Native),
		"asset":      balance.USDC.Symbol,
	})
}

func (s *GRPCServer) Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rep, err := s.engine.Reconcile(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"confirmed":     rep.Confirmed,
		"failed":        rep.Failed,
		"still_pending": rep.StillPending,
		"needs_review":  rep.NeedsReview,
		"registrations": rep.Registrations,
	})
}

// outcome renders out, or maps err to a status. A persistence error after a
// confirmed registration still carries the outcome in the status details.
func (s *GRPCServer) outcome(ctx context.Context, out routing.Outcome, err error) (*structpb.Struct, error) {
	if err != nil {
		st := status.New(codeFor(err), routing.ReplyForError(err))
		if out.Status == routing.StatusConfirmed {
			if body, mErr := outcomeStruct(out, s.engine.Cluster()); mErr == nil {
				if withDetails, dErr := st.WithDetails(body); dErr == nil {
					st = withDetails
				}
			}
		}
		s.logError(ctx, err)
		return nil, st.Err()
	}
	return outcomeStruct(out, s.engine.Cluster())
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	s.logError(ctx, err)
	return status.Error(codeFor(err), routing.ReplyForError(err))
}

func (s *GRPCServer) logError(ctx context.Context, err error) {
	if codeFor(err) == codes.Internal {
		s.logger.Error(ctx, err.Error())
		return
	}
	s.logger.Info(ctx, "request refused", "error", err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrAlreadyRegistered):
		return codes.AlreadyExists
	case errors.Is(err, common.ErrSenderUnregistered),
		errors.Is(err, common.ErrRecipientUnregistered),
		errors.Is(err, common.ErrInsufficientBalance):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

func outcomeStruct(out routing.Outcome, cluster string) (*structpb.Struct, error) {
	m := map[string]any{
		"kind":     out.Kind.String(),
		"status":   out.Status.String(),
		"reply":    out.Reply(cluster),
		"noop":     out.Noop,
		"replayed": out.Replayed,
	}
	if out.Route != routing.RouteNone {
		m["route"] = out.Route.String()
	}
	if out.Handle != "" {
		m["handle"] = out.Handle
	}
	if out.Recipient != "" {
		m["recipient"] = out.Recipient
	}
	if out.Amount > 0 {
		m["amount"] = out.Asset.Format(out.Amount)
		m["asset"] = out.Asset.Symbol
	}
	if !out.Wallet.IsZero() {
		m["wallet"] = out.Wallet.String()
	}
	if !out.Destination.IsZero() {
		m["destination"] = out.Destination.String()
	}
	if out.Claimed > 0 {
		m["claimed"] = balance.USDC.Format(out.Claimed)
	}
	if !out.Signature.IsZero() {
		m["signature"] = out.Signature.String()
		m["explorer_url"] = routing.ExplorerURL(out.Signature, cluster)
	}
	if out.Reason != "" {
		m["reason"] = out.Reason
	}
	if out.AttemptID != "" {
		m["attempt_id"] = out.AttemptID
	}
	return structpb.NewStruct(m)
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}
