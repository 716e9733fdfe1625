package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories/memory"
)

func newCatalogFixture(t *testing.T) (CatalogService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	seq := 0
	svc, err := NewCatalogService(CatalogServiceDeps{
		Categories: store.Categories(),
		Products:   store.Products(),
		Clock:      func() time.Time { return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("%02d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc, store
}

func TestCatalogServiceCategoryLifecycle(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	ctx := context.Background()

	mugs, err := svc.CreateCategory(ctx, UpsertCategoryCommand{Name: "  Mugs  ", Description: "<b>Ceramic</b>"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if mugs.ID != "cat_01" || mugs.Name != "Mugs" || mugs.Description != "Ceramic" {
		t.Fatalf("unexpected category %+v", mugs)
	}

	if _, err := svc.CreateCategory(ctx, UpsertCategoryCommand{Name: "mugs"}); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}
	if _, err := svc.CreateCategory(ctx, UpsertCategoryCommand{Name: "   "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	renamed, err := svc.UpdateCategory(ctx, UpsertCategoryCommand{CategoryID: mugs.ID, Name: "Cups"})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if renamed.Name != "Cups" {
		t.Fatalf("expected rename, got %s", renamed.Name)
	}

	if _, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Tall cup", Price: domain.MustParseMoney("4.50"), Stock: 3, CategoryID: mugs.ID}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if err := svc.DeleteCategory(ctx, mugs.ID); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected category in use conflict, got %v", err)
	}
	if err := svc.DeleteCategory(ctx, "cat_missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductCommand{
		Name:        "Blue mug",
		Description: `<p>Glazed<script>alert(1)</script></p>`,
		Price:       domain.MustParseMoney("12.90"),
		Stock:       4,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if !product.Active {
		t.Fatalf("expected products to default to active")
	}
	if strings.Contains(product.Description, "script") {
		t.Fatalf("expected description sanitised, got %q", product.Description)
	}
	if product.Price.String() != "12.90" {
		t.Fatalf("unexpected price %s", product.Price)
	}

	if _, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Bad", Price: domain.MustParseMoney("-1.00")}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected negative price rejection, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Bad", Stock: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected negative stock rejection, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Orphan", CategoryID: "cat_nope"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected unknown category, got %v", err)
	}
}

func TestCatalogServiceUpdateProductAppliesPartialChanges(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	ctx := context.Background()
	product, err := svc.CreateProduct(ctx, CreateProductCommand{Name: "Pen", Price: domain.MustParseMoney("2.00"), Stock: 10})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	stock := 25
	inactive := false
	updated, err := svc.UpdateProduct(ctx, UpdateProductCommand{ProductID: product.ID, Stock: &stock, Active: &inactive})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Stock != 25 || updated.Active || updated.Name != "Pen" || updated.Price.String() != "2.00" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	negative := -3
	if _, err := svc.UpdateProduct(ctx, UpdateProductCommand{ProductID: product.ID, Stock: &negative}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid stock, got %v", err)
	}
	if _, err := svc.UpdateProduct(ctx, UpdateProductCommand{ProductID: "prd_missing"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogServiceListProductsPaging(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		if _, err := svc.CreateProduct(ctx, CreateProductCommand{Name: fmt.Sprintf("Item %d", i), Price: domain.MustParseMoney("1.00")}); err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
	}

	page, err := svc.ListProducts(ctx, ProductListFilter{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if page.Limit != defaultProductPageSize || len(page.Items) != 12 || page.Total != 15 {
		t.Fatalf("unexpected first page %d/%d/%d", page.Limit, len(page.Items), page.Total)
	}

	page, err = svc.ListProducts(ctx, ProductListFilter{Pagination: Pagination{Page: 2}})
	if err != nil {
		t.Fatalf("ListProducts page 2: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items on page 2, got %d", len(page.Items))
	}

	page, err = svc.ListProducts(ctx, ProductListFilter{Search: "  ITEM 1"})
	if err != nil {
		t.Fatalf("ListProducts search: %v", err)
	}
	// "Item 1" and "Item 10" through "Item 14".
	if page.Total != 6 {
		t.Fatalf("expected 6 search hits, got %d", page.Total)
	}
}

func TestCatalogServiceDeleteReferencedProduct(t *testing.T) {
	svc, store := newCatalogFixture(t)
	ctx := context.Background()
	product, _ := svc.CreateProduct(ctx, CreateProductCommand{Name: "Lamp", Price: domain.MustParseMoney("30.00"), Stock: 2})

	if err := store.Customers().Insert(ctx, domain.Customer{ID: "cus_1", Name: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if err := store.Orders().Insert(ctx, domain.Order{ID: "ord_1", CustomerID: "cus_1", Status: domain.OrderStatusOpen}); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if err := store.OrderItems().Save(ctx, domain.OrderItem{ID: "itm_1", OrderID: "ord_1", ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("save item: %v", err)
	}

	if err := svc.DeleteProduct(ctx, product.ID); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
