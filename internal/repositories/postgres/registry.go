// Package postgres implements the repositories on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"

	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

// Registry exposes Postgres backed repositories sharing one pool.
type Registry struct {
	db         *ppostgres.DB
	orders     *OrderRepository
	items      *OrderItemRepository
	products   *ProductRepository
	customers  *CustomerRepository
	addresses  *AddressRepository
	categories *CategoryRepository
	counters   *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every repository on top of db.
func NewRegistry(db *ppostgres.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry requires db")
	}
	return &Registry{
		db:         db,
		orders:     &OrderRepository{db: db},
		items:      &OrderItemRepository{db: db},
		products:   &ProductRepository{db: db},
		customers:  &CustomerRepository{db: db},
		addresses:  &AddressRepository{db: db},
		categories: &CategoryRepository{db: db},
		counters:   &CounterRepository{db: db},
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.db.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.items }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Customers() repositories.CustomerRepository   { return r.customers }
func (r *Registry) Addresses() repositories.AddressRepository    { return r.addresses }
func (r *Registry) Categories() repositories.CategoryRepository  { return r.categories }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }

// RunInTx runs fn inside a read committed transaction. Stock debits rely on conditional updates rather than
// row locks taken up front.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, func(txCtx context.Context) error {
		return fn(repositories.ContextWithTx(txCtx))
	})
}

// Ping checks connectivity for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
