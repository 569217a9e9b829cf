// Package logging is the structured logger shared by the tipbot server, the
// routing engine and the operator CLI. Records are JSON with service and env
// tags; request-scoped fields travel in the context via WithFields, and keys
// naming secrets are redacted before they are written.
package logging

import "context"

// Logger takes alternating key-value pairs after the message:
//
//	log.Info(ctx, "tip confirmed", "route", "escrow", "signature", sig)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}

var (
	_ Logger = (*SlogLogger)(nil)
	_ Logger = Nop{}
)
