package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopfield/api/internal/platform/auth"
)

const (
	// DefaultHeader carries the client supplied key.
	DefaultHeader    = "Idempotency-Key"
	replayHeaderName = "X-Idempotent-Replay"
	anonymous        = "anonymous"
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      func() time.Time
	logger     *zap.Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods replaces the guarded HTTP methods. POST is guarded by default.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			cfg.methods = set
		}
	}
}

// WithLogger injects the logger used for store failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays the stored response of a request whose Idempotency-Key was already used by the same
// caller for the same request. Requests without the header pass through untouched. Server errors are not
// recorded so the client may retry them under the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: DefaultHeader,
		ttl:        DefaultTTL,
		methods:    map[string]struct{}{http.MethodPost: {}},
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid_body", "unable to read request body")
				return
			}

			ctx := r.Context()
			requester := extractRequester(ctx)
			fingerprint := requestFingerprint(r, body, requester)
			scoped := key + "|" + requester
			logger := cfg.logger.With(zap.String("idempotencyKey", key), zap.String("requester", requester))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					respondError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key already used for a different request")
					return
				}
				logger.Error("idempotency reserve failed", zap.Error(err))
				respondError(w, http.StatusServiceUnavailable, "idempotency_unavailable", "unable to process idempotency key")
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				respondError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
				return
			}

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			if recorder.Status() >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), scoped, fingerprint); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			} else {
				response := Response{Status: recorder.Status(), Headers: recorder.header, Body: recorder.Body()}
				if err := store.SaveResponse(context.WithoutCancel(ctx), scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
					logger.Error("idempotency save failed", zap.Error(err))
					_ = store.Release(context.WithoutCancel(ctx), scoped, fingerprint)
				}
			}

			if err := recorder.Commit(); err != nil {
				logger.Debug("idempotency flush failed", zap.Error(err))
			}
		})
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		requester,
	}
	if len(body) > 0 {
		parts = append(parts, sha256Hex(body))
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func extractRequester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.Subject != "" {
		return identity.Subject
	}
	return anonymous
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for key, values := range record.ResponseHeaders {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

// responseRecorder buffers the downstream response until it has been persisted.
type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 && status > 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	if r.body.Len() == 0 {
		return nil
	}
	return r.body.Bytes()
}

func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for key, values := range r.header {
		dst[key] = values
	}
	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}
