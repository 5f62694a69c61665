// Package logging provides the structured logging sink every component
// writes to. It wraps log/slog behind a small interface so call sites
// depend on a contract rather than the global default logger, following
// the middleware logging shape the corpus uses around provider calls.
package logging

import (
	"context"
	"log/slog"
)

// Logger is the structured info/warn/error sink collaborator described
// in . It never fails.
type Logger interface {
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	base *slog.Logger
}

// New wraps base (or slog.Default() if nil) as a Logger.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{base: base}
}

func (l *slogLogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

func (l *slogLogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

// Nop is a Logger that discards everything, used as a default when no
// logger is configured so components never need a nil check.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}

// TenantAttr and QueryAttr build the tenant_id and query_id attributes.
// The pipeline's log records carry tenant_id; none of them attaches
// query_id.
func TenantAttr(tenantID string) slog.Attr { return slog.String("tenant_id", tenantID) }
func QueryAttr(queryID string) slog.Attr   { return slog.String("query_id", queryID) }
