// Package requestctx carries the request-scoped logger and trace metadata.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures the W3C trace identifiers of the current request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// HasLogger reports whether a request logger was attached.
func HasLogger(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	return ok
}

// WithTrace stores trace metadata on ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the trace metadata when present.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the trace identifier or an empty string.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
