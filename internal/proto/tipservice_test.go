package proto

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type echoServer struct{}

func echo(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) { return in, nil }

func (echoServer) Ping(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}
func (echoServer) InitializeMaster(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) RegisterExternal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Tip(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Balance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Deposit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Withdraw(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}
func (echoServer) Reconcile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return echo(ctx, in)
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/tipbot.service.TipService/Tip", FullMethod(MethodTip))
}

func TestRoundTripOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	var seen []string
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, h grpc.UnaryHandler) (interface{}, error) {
		seen = append(seen, info.FullMethod)
		return h(ctx, req)
	}))
	RegisterTipServiceServer(srv, echoServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := NewTipServiceClient(conn)
	out, err := c.Call(context.Background(), MethodPing, nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", out["status"])

	out, err = c.Call(context.Background(), MethodTip, map[string]any{"sender": "alice", "amount": "1.5"})
	require.NoError(t, err)
	assert.Equal(t, "alice", out["sender"])
	assert.Equal(t, []string{FullMethod(MethodPing), FullMethod(MethodTip)}, seen)
}
