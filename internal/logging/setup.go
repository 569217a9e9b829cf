package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the process-wide handler built by Setup.
type Options struct {
	Service string
	Env     string
	// File, when set, routes output to a size-rotated file instead of stdout.
	File  string
	Level slog.Level
}

// newFileWriter is a seam so tests can observe rotation settings.
var newFileWriter = func(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}

// Setup builds a JSON slog handler with timestamp/severity/message keys, tags
// every line with the service and environment, and installs it as the slog
// default.
func Setup(opts Options) *SlogLogger {
	var out io.Writer = os.Stdout
	if f := strings.TrimSpace(opts.File); f != "" {
		out = newFileWriter(f)
	}
	return NewSlogLogger(newBase(out, opts))
}

func newBase(out io.Writer, opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	args := []any{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		args = append(args, slog.String("env", env))
	}

	base := slog.New(handler).With(args...)
	slog.SetDefault(base)
	return base
}
