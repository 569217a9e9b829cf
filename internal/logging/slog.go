package logging

import (
	"context"
	"log/slog"
	"strings"
)

type fieldsKey struct{}

// WithFields returns a context whose key-value pairs are appended to every
// record logged with it, e.g. the operator and method of a gRPC call.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(fieldsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fieldsFrom(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).([]any)
	return f
}

var secretKeyParts = []string{"secret", "passphrase", "password", "private", "token", "seed"}

// isSecretKey reports whether a log key names key material or credentials.
func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range secretKeyParts {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// scrub replaces the values of secret-looking string keys. Pre-built slog.Attr
// values are checked by key too.
func scrub(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			if isSecretKey(a.Key) {
				a = slog.String(a.Key, RedactedValue)
			}
			out = append(out, a)
		case string:
			if i+1 >= len(args) {
				out = append(out, a)
				continue
			}
			v := args[i+1]
			if isSecretKey(a) {
				v = RedactedValue
			}
			out = append(out, a, v)
			i++
		default:
			out = append(out, a)
		}
	}
	return out
}

// SlogLogger adapts *slog.Logger to Logger. Context fields are appended and
// secret-looking keys are redacted before the record reaches the handler.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.l.Enabled(ctx, level) {
		return
	}
	all := append(scrub(fieldsFrom(ctx)), scrub(args)...)
	s.l.Log(ctx, level, msg, all...)
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelDebug, msg, args)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelInfo, msg, args)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelWarn, msg, args)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelError, msg, args)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(scrub(args)...)}
}
