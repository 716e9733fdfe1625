package firestore

import (
	"time"

	domain "github.com/shopfield/api/internal/domain"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "items"
	productsCollection   = "products"
	customersCollection  = "customers"
	addressesCollection  = "addresses"
	categoriesCollection = "categories"
	countersCollection   = "counters"
)

// Money is stored as integer cents so Firestore can compare and sum it without floating point drift.

type orderDocument struct {
	Code          string     `firestore:"code"`
	CustomerID    string     `firestore:"customerId"`
	CustomerName  string     `firestore:"customerName"`
	CustomerEmail string     `firestore:"customerEmail"`
	Status        string     `firestore:"status"`
	SubtotalCents int64      `firestore:"subtotalCents"`
	TotalCents    int64      `firestore:"totalCents"`
	TotalItems    int        `firestore:"totalItems"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

type orderItemDocument struct {
	OrderID        string    `firestore:"orderId"`
	ProductID      string    `firestore:"productId"`
	ProductName    string    `firestore:"productName"`
	Quantity       int       `firestore:"quantity"`
	UnitPriceCents int64     `firestore:"unitPriceCents"`
	LineTotalCents int64     `firestore:"lineTotalCents"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	PriceCents  int64     `firestore:"priceCents"`
	Stock       int       `firestore:"stock"`
	Active      bool      `firestore:"active"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type customerDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type addressDocument struct {
	AddressID  string    `firestore:"addressId"`
	CustomerID string    `firestore:"customerId"`
	Street     string    `firestore:"street"`
	Number     string    `firestore:"number"`
	Complement string    `firestore:"complement,omitempty"`
	District   string    `firestore:"district"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	ZipCode    string    `firestore:"zipCode"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	NameKey     string    `firestore:"nameKey"`
	Description string    `firestore:"description,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		Code:          order.Code,
		CustomerID:    order.CustomerID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		Status:        string(order.Status),
		SubtotalCents: order.Subtotal.Cents(),
		TotalCents:    order.Total.Cents(),
		TotalItems:    order.TotalItems,
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:         id,
		Code:       doc.Code,
		CustomerID: doc.CustomerID,
		Customer: domain.CustomerSummary{
			ID:    doc.CustomerID,
			Name:  doc.CustomerName,
			Email: doc.CustomerEmail,
		},
		Status:     domain.OrderStatus(doc.Status),
		Subtotal:   domain.MoneyFromCents(doc.SubtotalCents),
		Total:      domain.MoneyFromCents(doc.TotalCents),
		TotalItems: doc.TotalItems,
		PaidAt:     doc.PaidAt,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func fromDomainOrderItem(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		OrderID:        item.OrderID,
		ProductID:      item.ProductID,
		ProductName:    item.Product.Name,
		Quantity:       item.Quantity,
		UnitPriceCents: item.UnitPrice.Cents(),
		LineTotalCents: item.LineTotal.Cents(),
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toDomainOrderItem(id string, doc orderItemDocument) domain.OrderItem {
	return domain.OrderItem{
		ID:        id,
		OrderID:   doc.OrderID,
		ProductID: doc.ProductID,
		Product:   domain.ProductSummary{ID: doc.ProductID, Name: doc.ProductName},
		Quantity:  doc.Quantity,
		UnitPrice: domain.MoneyFromCents(doc.UnitPriceCents),
		LineTotal: domain.MoneyFromCents(doc.LineTotalCents),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.Price.Cents(),
		Stock:       product.Stock,
		Active:      product.Active,
		ImageURL:    product.ImageURL,
		CategoryID:  product.CategoryID,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func toDomainProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       domain.MoneyFromCents(doc.PriceCents),
		Stock:       doc.Stock,
		Active:      doc.Active,
		ImageURL:    doc.ImageURL,
		CategoryID:  doc.CategoryID,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func fromDomainCustomer(customer domain.Customer) customerDocument {
	return customerDocument{
		Name:      customer.Name,
		Email:     customer.Email,
		Phone:     customer.Phone,
		CreatedAt: customer.CreatedAt,
		UpdatedAt: customer.UpdatedAt,
	}
}

func toDomainCustomer(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:        id,
		Name:      doc.Name,
		Email:     doc.Email,
		Phone:     doc.Phone,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func fromDomainAddress(address domain.Address) addressDocument {
	return addressDocument{
		AddressID:  address.ID,
		CustomerID: address.CustomerID,
		Street:     address.Street,
		Number:     address.Number,
		Complement: address.Complement,
		District:   address.District,
		City:       address.City,
		State:      address.State,
		ZipCode:    address.ZipCode,
		IsDefault:  address.IsDefault,
		CreatedAt:  address.CreatedAt,
		UpdatedAt:  address.UpdatedAt,
	}
}

func toDomainAddress(id string, doc addressDocument) domain.Address {
	return domain.Address{
		ID:         id,
		CustomerID: doc.CustomerID,
		Street:     doc.Street,
		Number:     doc.Number,
		Complement: doc.Complement,
		District:   doc.District,
		City:       doc.City,
		State:      doc.State,
		ZipCode:    doc.ZipCode,
		IsDefault:  doc.IsDefault,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
