package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	pb "github.com/dmitrijs2005/tipbot/internal/proto"
	"github.com/dmitrijs2005/tipbot/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const operatorKey ctxKey = "operator"

// operatorFrom returns the operator authenticated for ctx, if any.
func operatorFrom(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}

// accessTokenInterceptor requires a valid access token on every method except Ping.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if info.FullMethod == pb.FullMethod(pb.MethodPing) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	operator, err := auth.GetOperatorFromToken(accessToken, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "rejected access token", "method", info.FullMethod, "error", err)
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	ctx = logging.WithFields(ctx, "operator", operator)
	return handler(context.WithValue(ctx, operatorKey, operator), req)
}

// metricsInterceptor counts requests by method and status code and logs slow calls.
func (s *GRPCServer) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	method := info.FullMethod
	if i := strings.LastIndexByte(method, '/'); i >= 0 {
		method = method[i+1:]
	}
	ctx = logging.WithFields(ctx, "method", method)

	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.ObserveRequest(method, status.Code(err).String())

	if d := time.Since(start); d > 5*time.Second {
		s.logger.Warn(ctx, "slow request", "duration", d.String())
	}
	return resp, err
}
