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

// CategoryRepository stores catalog categories. NameKey holds the lower-cased name used for uniqueness.
type CategoryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[categoryDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) *CategoryRepository {
	return &CategoryRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		if err := r.ensureNameFree(txCtx, "categories.insert", category.Name, category.ID); err != nil {
			return err
		}
		return r.base.Create(txCtx, category.ID, fromDomainCategory(category))
	})
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.base.Get(txCtx, category.ID); err != nil {
			return err
		}
		if err := r.ensureNameFree(txCtx, "categories.update", category.Name, category.ID); err != nil {
			return err
		}
		return r.base.Set(txCtx, category.ID, fromDomainCategory(category))
	})
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if _, err := r.base.Get(ctx, categoryID); err != nil {
		return err
	}
	coll, err := r.products.CollectionRef(ctx)
	if err != nil {
		return err
	}
	inUse, err := r.products.Exists(ctx, coll.Where("categoryId", "==", categoryID))
	if err != nil {
		return err
	}
	if inUse {
		return repositories.NewConflict("categories.delete", "category %s has products", categoryID)
	}
	return r.base.Delete(ctx, categoryID)
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc.ID, doc.Data), nil
}

func (r *CategoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameKey", "==", nameKey(name)).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, repositories.NewNotFound("categories.find_by_name", "category %q not found", name)
	}
	return toDomainCategory(docs[0].ID, docs[0].Data), nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("nameKey", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, toDomainCategory(doc.ID, doc.Data))
	}
	sort.SliceStable(categories, func(i, j int) bool {
		return nameKey(categories[i].Name) < nameKey(categories[j].Name)
	})
	return categories, nil
}

func (r *CategoryRepository) ensureNameFree(ctx context.Context, op, name, exceptID string) error {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameKey", "==", nameKey(name)).Limit(2)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != exceptID {
			return repositories.NewConflict(op, "category name %q already used", name)
		}
	}
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func fromDomainCategory(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:        category.Name,
		NameKey:     nameKey(category.Name),
		Description: category.Description,
		CreatedAt:   category.CreatedAt,
		UpdatedAt:   category.UpdatedAt,
	}
}

func toDomainCategory(id string, doc categoryDocument) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
