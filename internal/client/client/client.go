package client

import "context"

// Client is the operator's view of the TipService API.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Call(ctx context.Context, method string, req map[string]any) (map[string]any, error)
}
