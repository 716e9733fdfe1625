package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idempotency:"

// RedisStore keeps records as JSON values whose Redis TTL matches the record expiry. Reservations use
// SET NX so concurrent duplicates observe the pending record.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + storageKey(key)
}

// Reserve implements the Store interface.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record := newPendingRecord(key, fingerprint, now, ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(key), payload, ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if created {
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}

	existing, err := s.load(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return s.Reserve(ctx, key, fingerprint, now, ttl)
	}
	if err != nil {
		return Reservation{}, err
	}
	return reservationFor(existing, fingerprint)
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record, err := s.load(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		record = Record{Key: key, Fingerprint: fingerprint}
	case err != nil:
		return err
	case record.Fingerprint != fingerprint:
		return ErrFingerprintMismatch
	}

	payload, err := json.Marshal(record.complete(resp, now, ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release removes the reservation when it still belongs to fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	record, err := s.load(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if record.Fingerprint != fingerprint {
		return nil
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string) (Record, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}
