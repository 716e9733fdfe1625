package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/platform/auth"
	"github.com/shopfield/api/internal/platform/httpx"
	"github.com/shopfield/api/internal/platform/pagination"
	"github.com/shopfield/api/internal/services"
)

const defaultProductPageSize = 12

// CatalogHandlers serves categories and products. Reads are public, writes require a staff or admin token.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{authn: authn, catalog: catalog}
}

// Routes registers /categories and /products.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{categoryID}", h.getCategory)
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)

	r.Group(func(w chi.Router) {
		if h.authn != nil {
			w.Use(h.authn.RequireRoles(auth.RoleStaff, auth.RoleAdmin))
		}
		w.Post("/categories", h.createCategory)
		w.Put("/categories/{categoryID}", h.updateCategory)
		w.Delete("/categories/{categoryID}", h.deleteCategory)
		w.Post("/products", h.createProduct)
		w.Put("/products/{productID}", h.updateProduct)
		w.Delete("/products/{productID}", h.deleteProduct)
	})
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

type createProductRequest struct {
	Name        string        `json:"name" validate:"required,max=180"`
	Description string        `json:"description" validate:"max=5000"`
	Price       *domain.Money `json:"price" validate:"required"`
	Stock       int           `json:"stock" validate:"gte=0"`
	Active      *bool         `json:"active"`
	ImageURL    string        `json:"imageUrl" validate:"omitempty,url"`
	CategoryID  string        `json:"categoryId" validate:"max=64"`
}

type updateProductRequest struct {
	Name        *string       `json:"name" validate:"omitempty,max=180"`
	Description *string       `json:"description" validate:"omitempty,max=5000"`
	Price       *domain.Money `json:"price"`
	Stock       *int          `json:"stock" validate:"omitempty,gte=0"`
	Active      *bool         `json:"active"`
	ImageURL    *string       `json:"imageUrl" validate:"omitempty,url"`
	CategoryID  *string       `json:"categoryId" validate:"omitempty,max=64"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type productPayload struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       domain.Money `json:"price"`
	Stock       int          `json:"stock"`
	Active      bool         `json:"active"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	CategoryID  string       `json:"categoryId,omitempty"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.catalog.GetCategory(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *CatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(r.Context(), services.UpsertCategoryCommand{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCategoryPayload(category))
}

func (h *CatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	category, err := h.catalog.UpdateCategory(r.Context(), services.UpsertCategoryCommand{
		CategoryID:  chi.URLParam(r, "categoryID"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *CatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := pagination.FromRequest(r, pagination.Options{DefaultLimit: defaultProductPageSize})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	filter := services.ProductListFilter{
		Search:     strings.TrimSpace(query.Get("search")),
		CategoryID: strings.TrimSpace(query.Get("categoryId")),
		Pagination: page,
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		activeOnly, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "active must be a boolean", http.StatusBadRequest))
			return
		}
		filter.ActiveOnly = activeOnly
	}

	result, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]productPayload, 0, len(result.Items))
	for _, product := range result.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, pagePayload(items, result.Total, result.Page, result.Limit))
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), services.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Stock:       req.Stock,
		Active:      req.Active,
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), services.UpdateProductCommand{
		ProductID:   chi.URLParam(r, "productID"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      req.Active,
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		Active:      product.Active,
		ImageURL:    product.ImageURL,
		CategoryID:  product.CategoryID,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		writeInfrastructureError(ctx, w, err, "catalog_error", "failed to process catalog request")
	}
}
