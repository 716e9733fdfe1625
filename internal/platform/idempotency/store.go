// Package idempotency replays stored responses for repeated requests carrying the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Status represents the lifecycle state of an idempotency record.
type Status string

const (
	// DefaultTTL is the default duration that idempotency records are retained.
	DefaultTTL = 24 * time.Hour
	// StatusPending indicates that a request has reserved the key but not yet persisted a response.
	StatusPending Status = "pending"
	// StatusCompleted indicates that the response for the key has been stored and can be replayed.
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve an idempotency key.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should process the request.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous response was found and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request is currently processing this key.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving a key, including the stored record if available.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the persisted response for an idempotency key.
type Record struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

// Response represents the HTTP response that should be stored for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency reservations and responses. Records expire after the supplied ttl.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

// ErrFingerprintMismatch is returned when an idempotency key is reused with a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func newPendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (r Record) complete(resp Response, now time.Time, ttl time.Duration) Record {
	r.Status = StatusCompleted
	r.ResponseStatus = resp.Status
	r.ResponseHeaders = sanitizeHeaders(resp.Headers)
	r.ResponseBody = nil
	if len(resp.Body) > 0 {
		r.ResponseBody = append([]byte(nil), resp.Body...)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.ExpiresAt = now.Add(ttl)
	return r
}

// reservationFor classifies an existing, unexpired record for the given fingerprint.
func reservationFor(record Record, fingerprint string) (Reservation, error) {
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

func storageKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizeHeaders(header http.Header) map[string][]string {
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if shouldOmitHeader(canonical) {
			continue
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func shouldOmitHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}
