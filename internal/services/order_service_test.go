package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
	"github.com/shopfield/api/internal/repositories/memory"
)

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

// failingDecrementProducts fails the nth DecrementStock call after applying the earlier ones.
type failingDecrementProducts struct {
	repositories.ProductRepository
	failOn int
	calls  int
}

func (f *failingDecrementProducts) DecrementStock(ctx context.Context, productID string, amount int) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("storage offline")
	}
	return f.ProductRepository.DecrementStock(ctx, productID, amount)
}

type orderFixture struct {
	store  *memory.Store
	svc    OrderService
	events *captureOrderEvents
}

func newOrderFixture(t *testing.T, products repositories.ProductRepository) orderFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	if err := store.Customers().Insert(ctx, domain.Customer{ID: "cus_7", Name: "Clara", Email: "clara@example.com"}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	seedProduct(t, store, "prd_10", "Notebook", "5.00", 10)
	seedProduct(t, store, "prd_11", "Pen", "3.00", 1)

	if products == nil {
		products = store.Products()
	}

	seq := 0
	events := &captureOrderEvents{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Items:      store.OrderItems(),
		Products:   products,
		Customers:  store.Customers(),
		Counters:   store.Counters(),
		UnitOfWork: store,
		Clock: func() time.Time {
			return time.Date(2025, time.May, 4, 10, 0, 0, 0, time.UTC)
		},
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("%03d", seq)
		},
		Events: events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return orderFixture{store: store, svc: svc, events: events}
}

func seedProduct(t *testing.T, store *memory.Store, id, name, price string, stock int) {
	t.Helper()
	product := domain.Product{ID: id, Name: name, Price: domain.MustParseMoney(price), Stock: stock, Active: true}
	if err := store.Products().Insert(context.Background(), product); err != nil {
		t.Fatalf("insert product %s: %v", id, err)
	}
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	product, err := store.Products().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find product %s: %v", id, err)
	}
	return product.Stock
}

func assertTotals(t *testing.T, order Order, subtotal string, totalItems int) {
	t.Helper()
	if order.Subtotal.String() != subtotal || order.Total.String() != subtotal {
		t.Fatalf("expected subtotal/total %s, got %s/%s", subtotal, order.Subtotal, order.Total)
	}
	if order.TotalItems != totalItems {
		t.Fatalf("expected %d items, got %d", totalItems, order.TotalItems)
	}
	sum := domain.ZeroMoney()
	count := 0
	for _, item := range order.Items {
		if !item.LineTotal.Equal(item.UnitPrice.Mul(item.Quantity)) {
			t.Fatalf("line total mismatch for %s: %s", item.ID, item.LineTotal)
		}
		sum = sum.Add(item.LineTotal)
		count += item.Quantity
	}
	if !sum.Equal(order.Subtotal) || count != order.TotalItems {
		t.Fatalf("totals do not match items: sum=%s count=%d order=%+v", sum, count, order)
	}
}

func TestOrderServiceCreateOrder(t *testing.T) {
	fx := newOrderFixture(t, nil)

	order, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: " cus_7 "})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != domain.OrderStatusOpen {
		t.Fatalf("expected OPEN, got %s", order.Status)
	}
	if order.Code != "ORD-2025-000001" {
		t.Fatalf("unexpected code %s", order.Code)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ prefix, got %s", order.ID)
	}
	if order.Customer.Name != "Clara" {
		t.Fatalf("expected customer summary, got %+v", order.Customer)
	}
	assertTotals(t, order, "0.00", 0)
	if got := fx.events.types(); len(got) != 1 || got[0] != orderEventCreated {
		t.Fatalf("expected created event, got %v", got)
	}

	second, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "cus_7"})
	if err != nil {
		t.Fatalf("CreateOrder second: %v", err)
	}
	if second.Code != "ORD-2025-000002" {
		t.Fatalf("expected sequential code, got %s", second.Code)
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	fx := newOrderFixture(t, nil)

	if _, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "cus_missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceAddItemMergesLines(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	order, err = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	assertTotals(t, order, "10.00", 2)

	order, err = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 3})
	if err != nil {
		t.Fatalf("AddItem merge: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 5 || order.Items[0].LineTotal.String() != "25.00" {
		t.Fatalf("unexpected merged line %+v", order.Items[0])
	}
	assertTotals(t, order, "25.00", 5)

	if stock := stockOf(t, fx.store, "prd_10"); stock != 10 {
		t.Fatalf("stock must not move before payment, got %d", stock)
	}
}

func TestOrderServiceAddItemChecksRequestedQuantity(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})

	_, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 2})
	if !errors.Is(err, ErrInsufficientStock) || !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	stored, err := fx.svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(stored.Items) != 0 {
		t.Fatalf("expected no items after rejected add, got %d", len(stored.Items))
	}
	assertTotals(t, stored, "0.00", 0)
}

func TestOrderServiceAddItemValidation(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})

	if _, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 0}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if _, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_404", Quantity: 1}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: "ord_404", ProductID: "prd_10", Quantity: 1}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

func TestOrderServiceUpdateItemUsesAbsoluteQuantity(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := order.Items[0].ID

	order, err = fx.svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: itemID, Quantity: 7})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	assertTotals(t, order, "35.00", 7)

	if _, err := fx.svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: itemID, Quantity: 11}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := fx.svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: "itm_missing", Quantity: 1}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestOrderServiceRemoveItem(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	assertTotals(t, order, "13.00", 3)

	var penID string
	for _, item := range order.Items {
		if item.ProductID == "prd_11" {
			penID = item.ID
		}
	}

	other, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	if _, err := fx.svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: other.ID, ItemID: penID}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found when removing through another order, got %v", err)
	}

	order, err = fx.svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: order.ID, ItemID: penID})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	assertTotals(t, order, "10.00", 2)
}

func TestOrderServicePayDebitsStock(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	paid, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", paid)
	}
	assertTotals(t, paid, "13.00", 3)
	if stock := stockOf(t, fx.store, "prd_10"); stock != 8 {
		t.Fatalf("expected notebook stock 8, got %d", stock)
	}
	if stock := stockOf(t, fx.store, "prd_11"); stock != 0 {
		t.Fatalf("expected pen stock 0, got %d", stock)
	}

	again, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("second Pay: %v", err)
	}
	if again.Status != domain.OrderStatusPaid {
		t.Fatalf("expected still paid, got %s", again.Status)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 8 {
		t.Fatalf("second payment must not debit, got %d", stock)
	}

	paidEvents := 0
	for _, typ := range fx.events.types() {
		if typ == orderEventPaid {
			paidEvents++
		}
	}
	if paidEvents != 1 {
		t.Fatalf("expected exactly one paid event, got %d", paidEvents)
	}
}

func TestOrderServicePayRejectsEmptyOrder(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})

	_, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	if !errors.Is(err, ErrOrderInvalidState) || !strings.Contains(err.Error(), "order has no items") {
		t.Fatalf("expected no items error, got %v", err)
	}
}

func TestOrderServicePayPreCheckLeavesStockUntouched(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 4})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	// Another sale drains the pen before payment.
	if err := fx.store.Products().DecrementStock(ctx, "prd_11", 1); err != nil {
		t.Fatalf("DecrementStock: %v", err)
	}

	_, err = fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 10 {
		t.Fatalf("expected notebook stock untouched, got %d", stock)
	}
	stored, _ := fx.svc.GetOrder(ctx, order.ID)
	if stored.Status != domain.OrderStatusOpen {
		t.Fatalf("expected order to remain OPEN, got %s", stored.Status)
	}
}

func TestOrderServicePayRollsBackOnStorageFailure(t *testing.T) {
	store := memory.NewStore()
	failing := &failingDecrementProducts{ProductRepository: store.Products(), failOn: 2}
	fx := newOrderFixtureWithStore(t, store, failing)
	ctx := context.Background()

	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if _, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID}); err == nil {
		t.Fatal("expected payment failure")
	}
	if failing.calls != 2 {
		t.Fatalf("expected the second debit to fail, got %d calls", failing.calls)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 10 {
		t.Fatalf("expected first debit rolled back, got %d", stock)
	}
	stored, _ := fx.svc.GetOrder(ctx, order.ID)
	if stored.Status != domain.OrderStatusOpen || stored.PaidAt != nil {
		t.Fatalf("expected unpaid order, got %+v", stored)
	}
}

func newOrderFixtureWithStore(t *testing.T, store *memory.Store, products repositories.ProductRepository) orderFixture {
	t.Helper()
	ctx := context.Background()
	if err := store.Customers().Insert(ctx, domain.Customer{ID: "cus_7", Name: "Clara", Email: "clara@example.com"}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	seedProduct(t, store, "prd_10", "Notebook", "5.00", 10)
	seedProduct(t, store, "prd_11", "Pen", "3.00", 1)

	events := &captureOrderEvents{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Items:      store.OrderItems(),
		Products:   products,
		Customers:  store.Customers(),
		Counters:   store.Counters(),
		UnitOfWork: store,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return orderFixture{store: store, svc: svc, events: events}
}

func TestOrderServicePaidOrderIsFrozen(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 1})
	if _, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	_, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 1})
	if !errors.Is(err, ErrOrderInvalidState) || !strings.Contains(err.Error(), "paid order cannot be edited") {
		t.Fatalf("expected paid edit rejection, got %v", err)
	}
	_, err = fx.svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: order.Items[0].ID, Quantity: 2})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected update rejection, got %v", err)
	}
	_, err = fx.svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: order.ID, ItemID: order.Items[0].ID})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected remove rejection, got %v", err)
	}
	_, err = fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusCanceled})
	if !errors.Is(err, ErrOrderInvalidState) || !strings.Contains(err.Error(), "paid order cannot change") {
		t.Fatalf("expected status change rejection, got %v", err)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 9 {
		t.Fatalf("expected stock 9, got %d", stock)
	}
}

func TestOrderServiceSetStatus(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 3})

	updated, err := fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: "awaiting_payment"})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected AWAITING_PAYMENT, got %s", updated.Status)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 10 {
		t.Fatalf("non-payment transitions must not touch stock, got %d", stock)
	}

	if _, err := fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: "SHIPPED"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}

	paid, err := fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusPaid})
	if err != nil {
		t.Fatalf("SetStatus PAID: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 7 {
		t.Fatalf("expected payment through status change to debit stock, got %d", stock)
	}
}

func TestOrderServiceCanceledOrderIsTerminal(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, _ = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 1})

	if _, err := fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusCanceled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := fx.svc.SetStatus(ctx, SetOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusOpen}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected canceled order to reject transitions, got %v", err)
	}
	if _, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected canceled order to reject payment, got %v", err)
	}
	if _, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 1}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected canceled order to reject edits, got %v", err)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 10 {
		t.Fatalf("expected stock untouched, got %d", stock)
	}
}

func TestOrderServiceListOrdersNormalisesPaging(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"}); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	page, err := fx.svc.ListOrders(ctx, OrderListFilter{Pagination: Pagination{Page: 0, Limit: 500}})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.Page != 1 || page.Limit != maxOrderPageSize || page.Total != 3 {
		t.Fatalf("unexpected page metadata %+v", page)
	}

	bad := domain.OrderStatus("LOST")
	if _, err := fx.svc.ListOrders(ctx, OrderListFilter{Status: &bad}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOperation(t *testing.T) {
	fx := newOrderFixture(t, nil)
	fx.events.err = errors.New("pubsub down")

	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     fx.store.Orders(),
		Items:      fx.store.OrderItems(),
		Products:   fx.store.Products(),
		Customers:  fx.store.Customers(),
		Counters:   fx.store.Counters(),
		UnitOfWork: fx.store,
		Events:     fx.events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "cus_7"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	found := false
	for _, event := range logged {
		if event == "order.event.publish.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatal("expected error for missing repositories")
	}
}

func TestOrderServiceItemsKeepUnitPriceSnapshot(t *testing.T) {
	fx := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := fx.svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, err := fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	setPrice := func(price string) {
		t.Helper()
		product, err := fx.store.Products().FindByID(ctx, "prd_10")
		if err != nil {
			t.Fatalf("find product: %v", err)
		}
		product.Price = domain.MustParseMoney(price)
		if err := fx.store.Products().Update(ctx, product); err != nil {
			t.Fatalf("update product: %v", err)
		}
	}

	setPrice("99.00")
	order, err = fx.svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem merge: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].UnitPrice.String() != "5.00" || order.Items[0].LineTotal.String() != "15.00" {
		t.Fatalf("expected merged line priced at 5.00, got %+v", order.Items)
	}
	assertTotals(t, order, "15.00", 3)

	setPrice("42.50")
	order, err = fx.svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: order.Items[0].ID, Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if order.Items[0].UnitPrice.String() != "5.00" || order.Items[0].LineTotal.String() != "20.00" {
		t.Fatalf("expected updated line priced at 5.00, got %+v", order.Items[0])
	}
	assertTotals(t, order, "20.00", 4)

	paid, err := fx.svc.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Total.String() != "20.00" {
		t.Fatalf("expected paid total 20.00, got %s", paid.Total)
	}
	if stock := stockOf(t, fx.store, "prd_10"); stock != 6 {
		t.Fatalf("expected stock 6 after payment, got %d", stock)
	}
}

// failingOrderUpdates fails every Update once armed, after the item write has already happened.
type failingOrderUpdates struct {
	repositories.OrderRepository
	armed bool
}

func (f *failingOrderUpdates) Update(ctx context.Context, order domain.Order) error {
	if f.armed {
		return errors.New("orders table locked")
	}
	return f.OrderRepository.Update(ctx, order)
}

func TestOrderServiceItemEditsRollBackWhenTotalsFail(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.Customers().Insert(ctx, domain.Customer{ID: "cus_7", Name: "Clara", Email: "clara@example.com"}); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	seedProduct(t, store, "prd_10", "Notebook", "5.00", 10)
	seedProduct(t, store, "prd_11", "Pen", "3.00", 1)

	orders := &failingOrderUpdates{OrderRepository: store.Orders()}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     orders,
		Items:      store.OrderItems(),
		Products:   store.Products(),
		Customers:  store.Customers(),
		Counters:   store.Counters(),
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, _ := svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "cus_7"})
	order, err = svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_10", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := order.Items[0].ID

	orders.armed = true
	if _, err := svc.AddItem(ctx, AddOrderItemCommand{OrderID: order.ID, ProductID: "prd_11", Quantity: 1}); err == nil {
		t.Fatal("expected add to fail")
	}
	if _, err := svc.UpdateItem(ctx, UpdateOrderItemCommand{OrderID: order.ID, ItemID: itemID, Quantity: 6}); err == nil {
		t.Fatal("expected update to fail")
	}
	if _, err := svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: order.ID, ItemID: itemID}); err == nil {
		t.Fatal("expected remove to fail")
	}
	orders.armed = false

	stored, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].ID != itemID || stored.Items[0].Quantity != 2 {
		t.Fatalf("expected the existing line to survive untouched, got %+v", stored.Items)
	}
	assertTotals(t, stored, "10.00", 2)
}
