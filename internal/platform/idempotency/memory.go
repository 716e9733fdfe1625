package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Expired records are replaced on the next reservation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements the Store interface.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storageKey(key)
	record, ok := s.records[id]
	if !ok || !now.Before(record.ExpiresAt) {
		record = newPendingRecord(key, fingerprint, now, ttl)
		s.records[id] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	return reservationFor(record, fingerprint)
}

// SaveResponse implements the Store interface.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storageKey(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint}
	}
	s.records[id] = record.complete(resp, now, ttl)
	return nil
}

// Release deletes the reservation so that subsequent attempts may retry.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := storageKey(key)
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}
