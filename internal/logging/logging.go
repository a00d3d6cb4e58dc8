// Package logging provides the context-scoped logger convention used
// throughout DirShare, mirroring the teacher's own
// repo/logging.GetContextLoggerFunc pattern: each package declares
//
//	var log = logging.GetContextLoggerFunc("dirshare/scanner")
//
// and always logs through a context, so a future request/session ID can be
// attached to the logger without touching call sites.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKeyType struct{}

var contextKey contextKeyType

// SetDefault installs l as the base logger used to derive module loggers.
// Called once by cmd/dirshare during startup; safe to leave unset in tests,
// in which case a no-op logger is used.
func SetDefault(l *zap.Logger) {
	defaultLogger = l
}

var defaultLogger = zap.NewNop()

// WithLogger returns a context carrying l, so that module loggers derived
// via GetContextLoggerFunc pick it up instead of the package default.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

func fromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(contextKey).(*zap.Logger); ok && l != nil {
		return l
	}

	return defaultLogger
}

// GetContextLoggerFunc returns a function that, given a context, returns a
// *zap.SugaredLogger scoped to module. Call once per package:
//
//	var log = logging.GetContextLoggerFunc("dirshare/applier")
func GetContextLoggerFunc(module string) func(ctx context.Context) *zap.SugaredLogger {
	return func(ctx context.Context) *zap.SugaredLogger {
		return fromContext(ctx).Named(module).Sugar()
	}
}
