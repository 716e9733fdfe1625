package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/shopfield/api/internal/domain"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// OrderItemRepository stores line items under orders/{orderId}/items.
type OrderItemRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewOrderItemRepository constructs a Firestore-backed order item repository.
func NewOrderItemRepository(provider *pfirestore.Provider) *OrderItemRepository {
	return &OrderItemRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}
}

func (r *OrderItemRepository) collection(orderID string) *pfirestore.BaseRepository[orderItemDocument] {
	path := fmt.Sprintf("%s/%s/%s", ordersCollection, orderID, orderItemsCollection)
	return pfirestore.NewBaseRepository[orderItemDocument](r.provider, path, nil, nil)
}

func (r *OrderItemRepository) FindByID(ctx context.Context, orderID, itemID string) (domain.OrderItem, error) {
	doc, err := r.collection(orderID).Get(ctx, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return toDomainOrderItem(doc.ID, doc.Data), nil
}

func (r *OrderItemRepository) FindByProduct(ctx context.Context, orderID, productID string) (domain.OrderItem, error) {
	docs, err := r.collection(orderID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).Limit(1)
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	if len(docs) == 0 {
		return domain.OrderItem{}, repositories.NewNotFound("order_items.find_by_product", "order %s has no item for product %s", orderID, productID)
	}
	return toDomainOrderItem(docs[0].ID, docs[0].Data), nil
}

func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	docs, err := r.collection(orderID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainOrderItem(doc.ID, doc.Data))
	}
	return items, nil
}

// Save upserts the item. A second line for the same product is rejected with a conflict; the check is a
// query, so two concurrent first additions of a product can still race.
func (r *OrderItemRepository) Save(ctx context.Context, item domain.OrderItem) error {
	existing, err := r.FindByProduct(ctx, item.OrderID, item.ProductID)
	switch {
	case err == nil && existing.ID != item.ID:
		return repositories.NewConflict("order_items.save", "order %s already has an item for product %s", item.OrderID, item.ProductID)
	case err != nil && !repositories.IsNotFound(err):
		return err
	}
	if item.Product.Name == "" {
		if product, err := r.products.Get(ctx, item.ProductID); err == nil {
			item.Product = domain.ProductSummary{ID: item.ProductID, Name: product.Data.Name}
		}
	}
	return r.collection(item.OrderID).Set(ctx, item.ID, fromDomainOrderItem(item))
}

func (r *OrderItemRepository) Delete(ctx context.Context, orderID, itemID string) (int, error) {
	items := r.collection(orderID)
	if _, err := items.Get(ctx, itemID); err != nil {
		if repositories.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if err := items.Delete(ctx, itemID); err != nil {
		return 0, err
	}
	return 1, nil
}
