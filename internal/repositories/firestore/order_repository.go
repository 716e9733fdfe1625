package firestore

import (
	"context"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/shopfield/api/internal/domain"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// OrderRepository stores order headers in the orders collection. Items live in the orders/{id}/items
// subcollection and are loaded through OrderItemRepository.
type OrderRepository struct {
	base      *pfirestore.BaseRepository[orderDocument]
	items     *OrderItemRepository
	customers *pfirestore.BaseRepository[customerDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) *OrderRepository {
	return &OrderRepository{
		base:      pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		items:     NewOrderItemRepository(provider),
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if _, err := r.customers.Get(ctx, order.CustomerID); err != nil {
		if repositories.IsNotFound(err) {
			return repositories.NewConflict("orders.insert", "customer %s does not exist", order.CustomerID)
		}
		return err
	}
	return r.base.Create(ctx, order.ID, fromDomainOrder(order))
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	doc := fromDomainOrder(order)
	updates := []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "subtotalCents", Value: doc.SubtotalCents},
		{Path: "totalCents", Value: doc.TotalCents},
		{Path: "totalItems", Value: doc.TotalItems},
		{Path: "paidAt", Value: doc.PaidAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	return r.base.Update(ctx, order.ID, updates)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := toDomainOrder(doc.ID, doc.Data)

	// The customer document is authoritative; the denormalised copy only serves list search.
	if customer, err := r.customers.Get(ctx, order.CustomerID); err == nil {
		order.Customer = domain.CustomerSummary{ID: customer.ID, Name: customer.Data.Name, Email: customer.Data.Email}
	} else if !repositories.IsNotFound(err) {
		return domain.Order{}, err
	}

	items, err := r.items.ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// List filters by status and customer in Firestore and applies free text search and paging in memory,
// since Firestore has no substring matching.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.CustomerID != "" {
			q = q.Where("customerId", "==", filter.CustomerID)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	rows := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := toDomainOrder(doc.ID, doc.Data)
		if search != "" && !matchesAny(search, order.Code, order.Customer.Name, order.Customer.Email) {
			continue
		}
		rows = append(rows, order)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return domain.PageOf(rows, filter.Pagination), nil
}

func matchesAny(needle string, values ...string) bool {
	for _, value := range values {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}
