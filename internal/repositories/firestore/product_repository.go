package firestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/shopfield/api/internal/domain"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// ProductRepository stores catalog products in the products collection.
type ProductRepository struct {
	provider   *pfirestore.Provider
	base       *pfirestore.BaseRepository[productDocument]
	categories *pfirestore.BaseRepository[categoryDocument]
	items      *pfirestore.BaseRepository[orderItemDocument]
	clock      func() time.Time
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) *ProductRepository {
	return &ProductRepository{
		provider:   provider,
		base:       pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		categories: pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil),
		items:      pfirestore.NewBaseRepository[orderItemDocument](provider, orderItemsCollection, nil, nil),
		clock:      time.Now,
	}
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if err := r.ensureCategory(ctx, "products.insert", product.CategoryID); err != nil {
		return err
	}
	return r.base.Create(ctx, product.ID, fromDomainProduct(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if err := r.ensureCategory(ctx, "products.update", product.CategoryID); err != nil {
		return err
	}
	if _, err := r.base.Get(ctx, product.ID); err != nil {
		return err
	}
	return r.base.Set(ctx, product.ID, fromDomainProduct(product))
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if _, err := r.base.Get(ctx, productID); err != nil {
		return err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	referenced, err := r.items.Exists(ctx, client.CollectionGroup(orderItemsCollection).Where("productId", "==", productID))
	if err != nil {
		return err
	}
	if referenced {
		return repositories.NewConflict("products.delete", "product %s is referenced by orders", productID)
	}
	return r.base.Delete(ctx, productID)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.CategoryID != "" {
			q = q.Where("categoryId", "==", filter.CategoryID)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	rows := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := toDomainProduct(doc.ID, doc.Data)
		if search != "" && !matchesAny(search, product.Name, product.Description) {
			continue
		}
		rows = append(rows, product)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return domain.PageOf(rows, filter.Pagination), nil
}

// DecrementStock debits the stock of a product.
//
// Inside a unit of work the caller has already read the product in the same transaction, so the debit is a
// server side increment and Firestore aborts the commit if the document changed after that read. Outside a
// transaction the read, check and write run in a transaction of their own.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("products.decrement_stock: amount must be positive, got %d", amount)
	}
	updates := []firestore.Update{
		{Path: "stock", Value: firestore.Increment(-amount)},
		{Path: "updatedAt", Value: r.clock().UTC()},
	}
	if pfirestore.TransactionFromContext(ctx) != nil {
		return r.base.Update(ctx, productID, updates)
	}

	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := r.base.Get(txCtx, productID)
		if err != nil {
			return err
		}
		if doc.Data.Stock < amount {
			return repositories.NewConflict("products.decrement_stock", "product %s has %d units, cannot debit %d", productID, doc.Data.Stock, amount)
		}
		return r.base.Update(txCtx, productID, updates)
	})
}

func (r *ProductRepository) ensureCategory(ctx context.Context, op, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	if _, err := r.categories.Get(ctx, categoryID); err != nil {
		if repositories.IsNotFound(err) {
			return repositories.NewConflict(op, "category %s does not exist", categoryID)
		}
		return err
	}
	return nil
}
