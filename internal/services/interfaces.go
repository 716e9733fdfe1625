package services

import (
	"context"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Money              = domain.Money
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Product            = domain.Product
	Category           = domain.Category
	Customer           = domain.Customer
	Address            = domain.Address
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService owns the order lifecycle: item edits with stock checks, totals, status changes and the
// transactional pay operation that debits stock.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error)
	UpdateItem(ctx context.Context, cmd UpdateOrderItemCommand) (Order, error)
	RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error)
	Pay(ctx context.Context, cmd PayOrderCommand) (Order, error)
}

// CatalogService manages categories and products.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// CustomerService manages customer records.
type CustomerService interface {
	ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.Page[Customer], error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (Customer, error)
	UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// AddressService manages the shipping addresses of a customer and keeps at most one of them default.
type AddressService interface {
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
	GetAddress(ctx context.Context, addressID string) (Address, error)
	CreateAddress(ctx context.Context, cmd CreateAddressCommand) (Address, error)
	UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, addressID string) error
}

// SystemService exposes operational metadata for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

type OrderListFilter = repositories.OrderListFilter

type ProductListFilter = repositories.ProductListFilter

type CustomerListFilter = repositories.CustomerListFilter

type CreateOrderCommand struct {
	CustomerID string
}

type AddOrderItemCommand struct {
	OrderID   string
	ProductID string
	Quantity  int
}

type UpdateOrderItemCommand struct {
	OrderID  string
	ItemID   string
	Quantity int
}

type RemoveOrderItemCommand struct {
	OrderID string
	ItemID  string
}

type SetOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
}

type PayOrderCommand struct {
	OrderID string
}

type UpsertCategoryCommand struct {
	CategoryID  string
	Name        string
	Description string
}

type CreateProductCommand struct {
	Name        string
	Description string
	Price       Money
	Stock       int
	Active      *bool
	ImageURL    string
	CategoryID  string
}

// UpdateProductCommand applies the non-nil fields to an existing product.
type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Price       *Money
	Stock       *int
	Active      *bool
	ImageURL    *string
	CategoryID  *string
}

type CreateCustomerCommand struct {
	Name  string
	Email string
	Phone string
}

// UpdateCustomerCommand applies the non-nil fields to an existing customer.
type UpdateCustomerCommand struct {
	CustomerID string
	Name       *string
	Email      *string
	Phone      *string
}

type CreateAddressCommand struct {
	CustomerID string
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	ZipCode    string
	IsDefault  bool
}

// UpdateAddressCommand applies the non-nil fields to an existing address. Setting IsDefault to false only
// unsets the flag on this address.
type UpdateAddressCommand struct {
	AddressID  string
	Street     *string
	Number     *string
	Complement *string
	District   *string
	City       *string
	State      *string
	ZipCode    *string
	IsDefault  *bool
}
