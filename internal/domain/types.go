package domain

import (
	"time"
)

// Pagination defines offset based paging inputs for list operations. Page is 1-based.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip for the requested page.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Page wraps a paged list result alongside the total number of matching rows.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusOpen is the initial state; items can be edited freely.
	OrderStatusOpen OrderStatus = "OPEN"
	// OrderStatusAwaitingPayment indicates the customer finished editing and payment is pending.
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	// OrderStatusPaid is terminal. Stock has been debited for every item.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusCanceled is terminal. No stock side effects.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusAwaitingPayment, OrderStatusPaid, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Editable reports whether items of an order in this status may change.
func (s OrderStatus) Editable() bool {
	return s != OrderStatusPaid && s != OrderStatusCanceled
}

// Category groups products in the catalog.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a sellable catalog entry. Stock is only debited when an order is paid.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       Money
	Stock       int
	Active      bool
	ImageURL    string
	CategoryID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Customer owns orders.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is a shipping address owned by a customer. At most one address per customer is the default.
type Address struct {
	ID         string
	CustomerID string
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	ZipCode    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CustomerSummary is the denormalised customer reference embedded in orders.
type CustomerSummary struct {
	ID    string
	Name  string
	Email string
}

// ProductSummary is the denormalised product reference embedded in order items.
type ProductSummary struct {
	ID   string
	Name string
}

// Order aggregates line items for a single customer purchase.
type Order struct {
	ID         string
	Code       string
	CustomerID string
	Customer   CustomerSummary
	Status     OrderStatus
	Subtotal   Money
	TotalItems int
	Total      Money
	Items      []OrderItem
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem is one product line in an order. UnitPrice is a snapshot taken when the line was created.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Product   ProductSummary
	Quantity  int
	UnitPrice Money
	LineTotal Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recalculate sets LineTotal from UnitPrice and Quantity.
func (i *OrderItem) Recalculate() {
	i.LineTotal = i.UnitPrice.Mul(i.Quantity)
}

// ApplyTotals recomputes the derived totals of the order from the supplied items.
func (o *Order) ApplyTotals(items []OrderItem) {
	subtotal := ZeroMoney()
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
		count += item.Quantity
	}
	o.Subtotal = subtotal
	o.TotalItems = count
	o.Total = subtotal
}

// PageOf slices rows according to p and reports the full row count as Total.
func PageOf[T any](rows []T, p Pagination) Page[T] {
	total := len(rows)
	offset := p.Offset()
	if offset > total {
		offset = total
	}
	end := total
	if p.Limit > 0 && offset+p.Limit < total {
		end = offset + p.Limit
	}
	return Page[T]{
		Items: append([]T(nil), rows[offset:end]...),
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
	}
}
