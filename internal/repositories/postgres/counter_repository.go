package postgres

import (
	"context"
	"fmt"
	"strings"

	ppostgres "github.com/shopfield/api/internal/platform/postgres"
)

// CounterRepository issues sequence values from the counters table.
type CounterRepository struct {
	db *ppostgres.DB
}

// Next increments the counter by step and returns the new value. The first call for a counter returns step.
// Inside a unit of work the increment commits or rolls back with the caller.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, fmt.Errorf("counters.next: counter id is required")
	}
	if step <= 0 {
		return 0, fmt.Errorf("counters.next: step must be positive, got %d", step)
	}
	var value int64
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO counters (id, value) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET value = counters.value + EXCLUDED.value
		RETURNING value`, counterID, step).Scan(&value)
	if err != nil {
		return 0, ppostgres.WrapError("counters.next", err)
	}
	return value, nil
}
