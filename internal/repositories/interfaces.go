package repositories

import (
	"context"

	domain "github.com/shopfield/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Products() ProductRepository
	Customers() CustomerRepository
	Addresses() AddressRepository
	Categories() CategoryRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repositories invoked with the context passed to fn participate in the transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers. FindByID hydrates the customer summary and items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// OrderItemRepository persists order line items.
type OrderItemRepository interface {
	FindByID(ctx context.Context, orderID, itemID string) (domain.OrderItem, error)
	FindByProduct(ctx context.Context, orderID, productID string) (domain.OrderItem, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	Save(ctx context.Context, item domain.OrderItem) error
	// Delete removes the item when it belongs to the order and returns the number of removed rows.
	Delete(ctx context.Context, orderID, itemID string) (int, error)
}

// ProductRepository persists catalog products and their stock.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
	// DecrementStock subtracts amount from the product stock. It joins the transaction carried by ctx and
	// fails with a conflict when the stock would become negative.
	DecrementStock(ctx context.Context, productID string, amount int) error
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.Page[domain.Customer], error)
}

// AddressRepository persists customer addresses. Deleting a customer removes its addresses.
type AddressRepository interface {
	Insert(ctx context.Context, address domain.Address) error
	Update(ctx context.Context, address domain.Address) error
	Delete(ctx context.Context, addressID string) error
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
	// ListByCustomer returns the default address first, then the rest by id descending.
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error)
	// ClearDefault unsets the default flag on every address of the customer except exceptID.
	ClearDefault(ctx context.Context, customerID, exceptID string) error
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindByName(ctx context.Context, name string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderListFilter narrows order listings. Search matches the order code, customer name or customer email.
type OrderListFilter struct {
	Status     *domain.OrderStatus
	Search     string
	CustomerID string
	Pagination domain.Pagination
}

// ProductListFilter narrows product listings. Search matches name or description.
type ProductListFilter struct {
	Search     string
	CategoryID string
	ActiveOnly bool
	Pagination domain.Pagination
}

// CustomerListFilter narrows customer listings. Search matches name or email.
type CustomerListFilter struct {
	Search     string
	Pagination domain.Pagination
}
