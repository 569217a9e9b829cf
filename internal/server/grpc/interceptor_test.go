package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/metrics"
	pb "github.com/dmitrijs2005/tipbot/internal/proto"
	"github.com/dmitrijs2005/tipbot/internal/server/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *GRPCServer {
	return &GRPCServer{
		logger:    logging.Nop{},
		jwtSecret: []byte(secret),
		engine:    &fakeEngine{},
	}
}

func withToken(tok string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: tok})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_PingAllowsWithoutToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodPing)}
	called := false

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodTip)}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())
}

func TestInterceptor_InvalidToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodRegister)}

	_, err := s.accessTokenInterceptor(withToken("not-a-valid-jwt"), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called with invalid token")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "invalid token", status.Convert(err).Message())
}

func TestInterceptor_ExpiredToken(t *testing.T) {
	s := newTestServer("secret")
	tok, err := auth.GenerateToken("ops", []byte("secret"), -time.Second)
	require.NoError(t, err)
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodRegister)}

	_, err = s.accessTokenInterceptor(withToken(tok), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	})
	assert.Equal(t, "token expired", status.Convert(err).Message())
}

func TestInterceptor_ValidTokenSetsOperator(t *testing.T) {
	s := newTestServer("secret")
	tok, err := auth.GenerateToken("ops", []byte("secret"), time.Minute)
	require.NoError(t, err)
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodTip)}

	var got string
	_, err = s.accessTokenInterceptor(withToken(tok), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		got = operatorFrom(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ops", got)
}

func TestMetricsInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer("secret")
	s.metrics = metrics.New(reg)
	info := &grpc.UnaryServerInfo{FullMethod: pb.FullMethod(pb.MethodTip)}

	_, _ = s.metricsInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	_, _ = s.metricsInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})

	n, err := testutil.GatherAndCount(reg, "tipbot_grpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
