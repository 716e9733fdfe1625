package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopfield/api/internal/platform/requestctx"
)

const tracerName = "github.com/shopfield/api/internal/platform/observability"

// TraceMiddleware continues an incoming W3C traceparent, starts a server span and stores the trace ids on the
// request context. The response echoes the traceparent of the server span.
func TraceMiddleware() func(http.Handler) http.Handler {
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, spanNameFromRequest(r), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(standardSpanAttributes(r)...)

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
					TraceID: spanCtx.TraceID().String(),
					SpanID:  spanCtx.SpanID().String(),
					Sampled: spanCtx.IsSampled(),
				})
				propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func spanNameFromRequest(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s %s", r.Method, path)
}

func standardSpanAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", r.URL.Path),
	}
	if host := r.Host; host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}
