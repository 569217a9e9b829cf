package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/metrics"
	pb "github.com/dmitrijs2005/tipbot/internal/proto"
	"github.com/dmitrijs2005/tipbot/internal/routing"
	"google.golang.org/grpc"
)

// Engine is the routing surface exposed over gRPC.
type Engine interface {
	Cluster() string
	InitializeMaster(ctx context.Context) (routing.Outcome, error)
	Register(ctx context.Context, handle string) (routing.Outcome, error)
	RegisterExternal(ctx context.Context, handle, wallet string) (routing.Outcome, error)
	Tip(ctx context.Context, req routing.TipRequest) (routing.Outcome, error)
	Balance(ctx context.Context, handle string) (balance.Balance, error)
	Deposit(ctx context.Context, handle, amount string) (routing.Outcome, error)
	Withdraw(ctx context.Context, handle, destination, amount string) (routing.Outcome, error)
	Reconcile(ctx context.Context) (routing.ReconcileReport, error)
}

type GRPCServer struct {
	address   string
	engine    Engine
	logger    logging.Logger
	metrics   *metrics.Metrics
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, e Engine, m *metrics.Metrics, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		engine:    e,
		metrics:   m,
		jwtSecret: []byte(secretKey),
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve runs the service on lis. Cancelling ctx stops the server gracefully
// and Serve then returns nil.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor))
	pb.RegisterTipServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
