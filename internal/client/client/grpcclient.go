package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tipbot/internal/common"
	pb "github.com/dmitrijs2005/tipbot/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenSource mints a fresh access token.
type TokenSource func() (string, error)

type caller interface {
	Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      caller
	tokens      TokenSource

	mu          sync.Mutex
	accessToken string
}

// ServerError is a refusal reported by the server. Message is user-facing.
type ServerError struct {
	Code    codes.Code
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewGRPCClient(endpoint string, tokens TokenSource) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpoint, tokens: tokens}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewTipServiceClient(conn)
	return c, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) token(refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && !refresh {
		return c.accessToken, nil
	}
	tok, err := c.tokens()
	if err != nil {
		return "", err
	}
	c.accessToken = tok
	return tok, nil
}

// accessTokenInterceptor attaches the access token and retries once with a
// freshly minted token when the server reports it expired.
func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method == pb.FullMethod(pb.MethodPing) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	tok, err := c.token(false)
	if err != nil {
		return err
	}
	err = invoker(withAccessToken(ctx, tok), method, req, reply, cc, opts...)
	if !isExpired(err) {
		return err
	}

	tok, err = c.token(true)
	if err != nil {
		return err
	}
	return invoker(withAccessToken(ctx, tok), method, req, reply, cc, opts...)
}

func isExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == "token expired"
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.client.Call(ctx, pb.MethodPing, nil)
	if err != nil {
		return mapError(err)
	}
	if resp["status"] != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	resp, err := c.client.Call(ctx, method, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	}
	return &ServerError{Code: st.Code(), Message: st.Message()}
}

// IsServerError reports whether err is a refusal from the server.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	ok := errors.As(err, &se)
	return se, ok
}
