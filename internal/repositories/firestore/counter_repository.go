package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/shopfield/api/internal/platform/firestore"
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository issues sequence numbers from documents in the counters collection.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
		clock:    time.Now,
	}, nil
}

// Next atomically increments the counter identified by counterID and returns the new value. It always runs
// in a transaction of its own so sequence numbers are never rolled back with a caller's transaction.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counters.next: counter id is required")
	}
	if step <= 0 {
		step = 1
	}

	now := r.clock().UTC()
	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			next = step
			return tx.Create(ref, counterDocument{CurrentValue: next, UpdatedAt: now})
		case codes.OK:
		default:
			return err
		}

		var doc counterDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("counters.next decode %s: %w", id, err)
		}
		next = doc.CurrentValue + step
		return tx.Set(ref, counterDocument{CurrentValue: next, UpdatedAt: now})
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}
