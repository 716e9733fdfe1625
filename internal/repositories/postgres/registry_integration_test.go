//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	domain "github.com/shopfield/api/internal/domain"
	pconfig "github.com/shopfield/api/internal/platform/config"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
	pgrepo "github.com/shopfield/api/internal/repositories/postgres"
	"github.com/shopfield/api/internal/services"
)

func newRegistry(t *testing.T) *pgrepo.Registry {
	t.Helper()
	dsn := os.Getenv("API_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("API_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := ppostgres.Open(ctx, pconfig.PostgresConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	registry, err := pgrepo.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	return registry
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func TestPostgresOrderPaymentFlow(t *testing.T) {
	registry := newRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().UTC()

	customerID := uniqueID("cus_")
	if err := registry.Customers().Insert(ctx, domain.Customer{ID: customerID, Name: "Ana", Email: customerID + "@example.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	mugID, plateID := uniqueID("prd_mug_"), uniqueID("prd_plate_")
	for _, product := range []domain.Product{
		{ID: mugID, Name: "Mug", Price: domain.MustParseMoney("12.50"), Stock: 3, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: plateID, Name: "Plate", Price: domain.MustParseMoney("8.00"), Stock: 1, Active: true, CreatedAt: now, UpdatedAt: now},
	} {
		if err := registry.Products().Insert(ctx, product); err != nil {
			t.Fatalf("insert product: %v", err)
		}
	}

	svc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     registry.Orders(),
		Items:      registry.OrderItems(),
		Products:   registry.Products(),
		Customers:  registry.Customers(),
		Counters:   registry.Counters(),
		UnitOfWork: registry,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.CreateOrder(ctx, services.CreateOrderCommand{CustomerID: customerID})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := svc.AddItem(ctx, services.AddOrderItemCommand{OrderID: order.ID, ProductID: mugID, Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	order, err = svc.AddItem(ctx, services.AddOrderItemCommand{OrderID: order.ID, ProductID: plateID, Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if order.Total.String() != "33.00" || order.TotalItems != 3 {
		t.Fatalf("unexpected totals %s/%d", order.Total, order.TotalItems)
	}

	paid, err := svc.Pay(ctx, services.PayOrderCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil {
		t.Fatalf("expected PAID with timestamp, got %s", paid.Status)
	}

	mug, _ := registry.Products().FindByID(ctx, mugID)
	plate, _ := registry.Products().FindByID(ctx, plateID)
	if mug.Stock != 1 || plate.Stock != 0 {
		t.Fatalf("unexpected stock mug=%d plate=%d", mug.Stock, plate.Stock)
	}

	page, err := registry.Orders().List(ctx, repositories.OrderListFilter{Search: order.Code, Pagination: domain.Pagination{Page: 1, Limit: 10}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || page.Items[0].Customer.Name != "Ana" {
		t.Fatalf("unexpected search page %+v", page)
	}

	if err := registry.Products().Delete(ctx, mugID); !repositories.IsConflict(err) {
		t.Fatalf("expected referenced product delete to conflict, got %v", err)
	}
	if err := registry.Customers().Delete(ctx, customerID); !repositories.IsConflict(err) {
		t.Fatalf("expected customer with orders delete to conflict, got %v", err)
	}
}

func TestPostgresDecrementStockRollsBack(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	lampID := uniqueID("prd_lamp_")
	if err := registry.Products().Insert(ctx, domain.Product{ID: lampID, Name: "Lamp", Price: domain.MustParseMoney("40.00"), Stock: 2, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := registry.Products().DecrementStock(ctx, lampID, 3); !repositories.IsConflict(err) {
		t.Fatalf("expected overdraw conflict, got %v", err)
	}
	if err := registry.Products().DecrementStock(ctx, "prd_missing", 1); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	boom := errors.New("boom")
	err := registry.RunInTx(ctx, func(txCtx context.Context) error {
		if err := registry.Products().DecrementStock(txCtx, lampID, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	product, _ := registry.Products().FindByID(ctx, lampID)
	if product.Stock != 2 {
		t.Fatalf("expected rolled back stock 2, got %d", product.Stock)
	}
}

func TestPostgresAddressDefaultAndCascade(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	customerID := uniqueID("cus_")
	if err := registry.Customers().Insert(ctx, domain.Customer{ID: customerID, Name: "Bia", Email: customerID + "@example.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	svc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses:  registry.Addresses(),
		Customers:  registry.Customers(),
		UnitOfWork: registry,
	})
	if err != nil {
		t.Fatalf("NewAddressService: %v", err)
	}

	cmd := services.CreateAddressCommand{CustomerID: customerID, Street: "Rua A", Number: "1", District: "Centro", City: "Recife", State: "PE", ZipCode: "50000-000", IsDefault: true}
	first, err := svc.CreateAddress(ctx, cmd)
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	cmd.Street = "Rua B"
	second, err := svc.CreateAddress(ctx, cmd)
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}

	rows, err := svc.ListAddresses(ctx, customerID)
	if err != nil {
		t.Fatalf("ListAddresses: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != second.ID || !rows[0].IsDefault || rows[1].ID != first.ID || rows[1].IsDefault {
		t.Fatalf("expected %s as the only default, got %+v", second.ID, rows)
	}

	if err := registry.Customers().Delete(ctx, customerID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	if _, err := registry.Addresses().FindByID(ctx, first.ID); !repositories.IsNotFound(err) {
		t.Fatalf("expected address removed with customer, got %v", err)
	}
}
