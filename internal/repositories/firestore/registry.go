// Package firestore implements the repositories on Cloud Firestore.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// Registry exposes Firestore backed repositories sharing one provider.
type Registry struct {
	provider   *pfirestore.Provider
	orders     *OrderRepository
	items      *OrderItemRepository
	products   *ProductRepository
	customers  *CustomerRepository
	addresses  *AddressRepository
	categories *CategoryRepository
	counters   *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every Firestore repository on top of provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		orders:     NewOrderRepository(provider),
		items:      NewOrderItemRepository(provider),
		products:   NewProductRepository(provider),
		customers:  NewCustomerRepository(provider),
		addresses:  NewAddressRepository(provider),
		categories: NewCategoryRepository(provider),
		counters:   counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.items }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Customers() repositories.CustomerRepository   { return r.customers }
func (r *Registry) Addresses() repositories.AddressRepository    { return r.addresses }
func (r *Registry) Categories() repositories.CategoryRepository  { return r.categories }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }

// RunInTx runs fn inside a Firestore transaction. Firestore requires every read to happen before the first
// write, so callers read all documents they depend on up front.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		return fn(repositories.ContextWithTx(txCtx))
	})
}

// Ping checks connectivity for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx)
}
