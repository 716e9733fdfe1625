package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/platform/textutil"
	"github.com/shopfield/api/internal/repositories"
)

const (
	categoryIDPrefix = "cat_"
	productIDPrefix  = "prd_"

	defaultProductPageSize = 12
	maxProductPageSize     = 100

	maxCatalogNameLength = 120
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied an invalid catalog payload.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the requested category or product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a uniqueness or reference constraint blocked the change.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Categories  repositories.CategoryRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	HTMLPolicy  *bluemonday.Policy
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	categories repositories.CategoryRepository
	products   repositories.ProductRepository
	clock      func() time.Time
	newID      func() string
	policy     *bluemonday.Policy
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService backed by the provided repositories.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	policy := deps.HTMLPolicy
	if policy == nil {
		policy = textutil.NewDescriptionPolicy()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		categories: deps.Categories,
		products:   deps.Products,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		policy:     policy,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return categories, nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.mapError(err)
	}
	return category, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	name, err := catalogName(cmd.Name, "category")
	if err != nil {
		return Category{}, err
	}
	if err := s.ensureCategoryNameFree(ctx, name, ""); err != nil {
		return Category{}, err
	}

	now := s.clock()
	category := Category{
		ID:          categoryIDPrefix + s.newID(),
		Name:        name,
		Description: textutil.StripTags(cmd.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.mapError(err)
	}
	s.logger(ctx, "catalog.category.created", map[string]any{"categoryId": category.ID})
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	category, err := s.GetCategory(ctx, cmd.CategoryID)
	if err != nil {
		return Category{}, err
	}
	name, err := catalogName(cmd.Name, "category")
	if err != nil {
		return Category{}, err
	}
	if !strings.EqualFold(name, category.Name) {
		if err := s.ensureCategoryNameFree(ctx, name, category.ID); err != nil {
			return Category{}, err
		}
	}
	category.Name = name
	category.Description = textutil.StripTags(cmd.Description)
	category.UpdatedAt = s.clock()
	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.mapError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID})
	return nil
}

func (s *catalogService) ensureCategoryNameFree(ctx context.Context, name, exceptID string) error {
	existing, err := s.categories.FindByName(ctx, name)
	switch {
	case err == nil && existing.ID != exceptID:
		return fmt.Errorf("%w: category %q already exists", ErrCatalogConflict, name)
	case err == nil, repositories.IsNotFound(err):
		return nil
	default:
		return s.mapError(err)
	}
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error) {
	filter.Search = textutil.NormalizeSearch(filter.Search)
	filter.CategoryID = strings.TrimSpace(filter.CategoryID)
	filter.Pagination = normalizePagination(filter.Pagination, defaultProductPageSize, maxProductPageSize)

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.Page[Product]{}, s.mapError(err)
	}
	page.Page = filter.Pagination.Page
	page.Limit = filter.Pagination.Limit
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name, err := catalogName(cmd.Name, "product")
	if err != nil {
		return Product{}, err
	}
	if cmd.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}
	categoryID, err := s.resolveCategory(ctx, cmd.CategoryID)
	if err != nil {
		return Product{}, err
	}

	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}

	now := s.clock()
	product := Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Description: s.policy.Sanitize(strings.TrimSpace(cmd.Description)),
		Price:       cmd.Price,
		Stock:       cmd.Stock,
		Active:      active,
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		CategoryID:  categoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapError(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "stock": product.Stock})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}

	if cmd.Name != nil {
		name, err := catalogName(*cmd.Name, "product")
		if err != nil {
			return Product{}, err
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = s.policy.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Price != nil {
		if cmd.Price.IsNegative() {
			return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	if cmd.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	if cmd.CategoryID != nil {
		categoryID, err := s.resolveCategory(ctx, *cmd.CategoryID)
		if err != nil {
			return Product{}, err
		}
		product.CategoryID = categoryID
	}

	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapError(err)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) resolveCategory(ctx context.Context, categoryID string) (string, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return "", nil
	}
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		if repositories.IsNotFound(err) {
			return "", fmt.Errorf("%w: category %s", ErrCatalogNotFound, categoryID)
		}
		return "", s.mapError(err)
	}
	return categoryID, nil
}

func (s *catalogService) mapError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		}
	}
	return err
}

func catalogName(raw, kind string) (string, error) {
	name := textutil.NormalizeName(textutil.StripTags(raw))
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", ErrCatalogInvalidInput, kind)
	}
	if len([]rune(name)) > maxCatalogNameLength {
		return "", fmt.Errorf("%w: %s name must be at most %d characters", ErrCatalogInvalidInput, kind, maxCatalogNameLength)
	}
	return name, nil
}
