package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventItemAdded     = "order.item.added"
	orderEventItemUpdated   = "order.item.updated"
	orderEventItemRemoved   = "order.item.removed"
	orderEventStatusChanged = "order.status.changed"
	orderEventPaid          = "order.paid"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"
	orderCounterID    = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order, or an entity it references, could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a business rule forbids the operation in the order's current state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrInsufficientStock is returned together with ErrOrderInvalidState when a product cannot cover a quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates a concurrent modification was detected while writing.
	ErrOrderConflict = errors.New("order: conflict")
)

const (
	msgPaidNotEditable      = "paid order cannot be edited"
	msgCanceledNotEditable  = "canceled order cannot be edited"
	msgPaidCannotChange     = "paid order cannot change"
	msgCanceledCannotChange = "canceled order cannot change"
	msgNoItems              = "order has no items"
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderCode      string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	Total          string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Items       repositories.OrderItemRepository
	Products    repositories.ProductRepository
	Customers   repositories.CustomerRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	items      repositories.OrderItemRepository
	products   repositories.ProductRepository
	customers  repositories.CustomerRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("order service: order item repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		items:      deps.Items,
		products:   deps.Products,
		customers:  deps.Customers,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Order{}, s.lookupError(err, "customer", customerID)
	}

	now := s.now()
	code, err := s.generateOrderCode(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:         orderIDPrefix + s.newID(),
		Code:       code,
		CustomerID: customer.ID,
		Customer: domain.CustomerSummary{
			ID:    customer.ID,
			Name:  customer.Name,
			Email: customer.Email,
		},
		Status:     domain.OrderStatusOpen,
		Subtotal:   domain.ZeroMoney(),
		TotalItems: 0,
		Total:      domain.ZeroMoney(),
		Items:      []OrderItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, orderEventCreated, map[string]any{"orderId": order.ID, "code": order.Code, "customerId": order.CustomerID})
	s.publishEvent(ctx, order, OrderEvent{Type: orderEventCreated, CurrentStatus: string(order.Status), OccurredAt: now})

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.Pagination = normalizePagination(filter.Pagination, defaultOrderPageSize, maxOrderPageSize)

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	page.Page = filter.Pagination.Page
	page.Limit = filter.Pagination.Limit
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	return s.loadOrder(ctx, orderID)
}

func (s *orderService) AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if productID == "" {
		return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}

	now := s.now()
	var item OrderItem
	err := s.editItems(ctx, orderID, func(txCtx context.Context, order Order, items []OrderItem) ([]OrderItem, error) {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return nil, s.lookupError(err, "product", productID)
		}
		// The check covers the quantity being added, not the merged line quantity.
		if product.Stock < cmd.Quantity {
			return nil, insufficientStock(product.ID, product.Stock, cmd.Quantity)
		}

		if idx := indexOfItem(items, func(i OrderItem) bool { return i.ProductID == product.ID }); idx >= 0 {
			// Merged lines keep the unit price captured when the line was created.
			item = items[idx]
			item.Quantity += cmd.Quantity
			item.UpdatedAt = now
		} else {
			item = OrderItem{
				ID:        orderItemIDPrefix + s.newID(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Product:   domain.ProductSummary{ID: product.ID, Name: product.Name},
				Quantity:  cmd.Quantity,
				UnitPrice: product.Price,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
		item.Recalculate()

		if err := s.items.Save(txCtx, item); err != nil {
			return nil, s.mapRepositoryError(err)
		}
		return upsertItem(items, item), nil
	})
	if err != nil {
		return Order{}, err
	}

	refreshed, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.publishEvent(ctx, refreshed, OrderEvent{
		Type:       orderEventItemAdded,
		OccurredAt: now,
		Metadata:   map[string]any{"itemId": item.ID, "productId": item.ProductID, "quantity": cmd.Quantity},
	})
	return refreshed, nil
}

func (s *orderService) UpdateItem(ctx context.Context, cmd UpdateOrderItemCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if orderID == "" || itemID == "" {
		return Order{}, fmt.Errorf("%w: order id and item id are required", ErrOrderInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}

	now := s.now()
	var item OrderItem
	previous := 0
	err := s.editItems(ctx, orderID, func(txCtx context.Context, _ Order, items []OrderItem) ([]OrderItem, error) {
		idx := indexOfItem(items, func(i OrderItem) bool { return i.ID == itemID })
		if idx < 0 {
			return nil, fmt.Errorf("%w: item %s", ErrOrderNotFound, itemID)
		}
		item = items[idx]

		product, err := s.products.FindByID(txCtx, item.ProductID)
		if err != nil {
			return nil, s.lookupError(err, "product", item.ProductID)
		}
		// Unlike AddItem, the target quantity is absolute.
		if product.Stock < cmd.Quantity {
			return nil, insufficientStock(product.ID, product.Stock, cmd.Quantity)
		}

		previous = item.Quantity
		item.Quantity = cmd.Quantity
		item.UpdatedAt = now
		item.Recalculate()

		if err := s.items.Save(txCtx, item); err != nil {
			return nil, s.mapRepositoryError(err)
		}
		return upsertItem(items, item), nil
	})
	if err != nil {
		return Order{}, err
	}

	refreshed, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.publishEvent(ctx, refreshed, OrderEvent{
		Type:       orderEventItemUpdated,
		OccurredAt: now,
		Metadata:   map[string]any{"itemId": item.ID, "previousQuantity": previous, "quantity": item.Quantity},
	})
	return refreshed, nil
}

func (s *orderService) RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if orderID == "" || itemID == "" {
		return Order{}, fmt.Errorf("%w: order id and item id are required", ErrOrderInvalidInput)
	}

	err := s.editItems(ctx, orderID, func(txCtx context.Context, order Order, items []OrderItem) ([]OrderItem, error) {
		deleted, err := s.items.Delete(txCtx, order.ID, itemID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		if deleted == 0 {
			return nil, fmt.Errorf("%w: item %s", ErrOrderNotFound, itemID)
		}
		remaining := make([]OrderItem, 0, len(items))
		for _, item := range items {
			if item.ID != itemID {
				remaining = append(remaining, item)
			}
		}
		return remaining, nil
	})
	if err != nil {
		return Order{}, err
	}

	refreshed, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.publishEvent(ctx, refreshed, OrderEvent{
		Type:       orderEventItemRemoved,
		OccurredAt: s.now(),
		Metadata:   map[string]any{"itemId": itemID},
	})
	return refreshed, nil
}

// editItems runs an item change and the totals update in one unit of work. The order is loaded and
// checked for editability inside the transaction; change receives the order's items as read there and
// returns the item set after its write. Every read happens before the first write, which Firestore
// transactions require.
func (s *orderService) editItems(ctx context.Context, orderID string, change func(ctx context.Context, order Order, items []OrderItem) ([]OrderItem, error)) error {
	return s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := ensureEditable(order); err != nil {
			return err
		}
		items, err := s.items.ListByOrder(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		next, err := change(txCtx, order, items)
		if err != nil {
			return err
		}
		return s.recalcTotals(txCtx, order, next)
	})
}

func indexOfItem(items []OrderItem, match func(OrderItem) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

func upsertItem(items []OrderItem, item OrderItem) []OrderItem {
	out := append([]OrderItem(nil), items...)
	if idx := indexOfItem(out, func(i OrderItem) bool { return i.ID == item.ID }); idx >= 0 {
		out[idx] = item
		return out
	}
	return append(out, item)
}

func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(cmd.Status))))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	switch order.Status {
	case domain.OrderStatusPaid:
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidState, msgPaidCannotChange)
	case domain.OrderStatusCanceled:
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidState, msgCanceledCannotChange)
	}

	if target == domain.OrderStatusPaid {
		return s.Pay(ctx, PayOrderCommand{OrderID: order.ID})
	}

	now := s.now()
	previous := order.Status
	order.Status = target
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, orderEventStatusChanged, map[string]any{"orderId": order.ID, "from": string(previous), "to": string(target)})
	s.publishEvent(ctx, order, OrderEvent{
		Type:           orderEventStatusChanged,
		PreviousStatus: string(previous),
		CurrentStatus:  string(target),
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderService) Pay(ctx context.Context, cmd PayOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}
	if err := s.validatePayable(ctx, order); err != nil {
		return Order{}, err
	}

	now := s.now()
	previous := order.Status
	alreadyPaid := false

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// Re-read inside the transaction so a concurrent payment or cancellation is observed and the
		// product reads are tracked by backends with optimistic transactions.
		current, err := s.orders.FindByID(txCtx, order.ID)
		if err != nil {
			return s.lookupError(err, "order", order.ID)
		}
		if current.Status == domain.OrderStatusPaid {
			alreadyPaid = true
			return nil
		}
		if err := s.validatePayable(txCtx, current); err != nil {
			return err
		}

		for _, item := range current.Items {
			if err := s.products.DecrementStock(txCtx, item.ProductID, item.Quantity); err != nil {
				if repositories.IsConflict(err) {
					return fmt.Errorf("%w: stock for product %s changed during payment: %v", ErrOrderConflict, item.ProductID, err)
				}
				return s.mapRepositoryError(err)
			}
		}

		current.Status = domain.OrderStatusPaid
		current.PaidAt = &now
		current.UpdatedAt = now
		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.pay.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return Order{}, err
	}

	paid, err := s.loadOrder(ctx, order.ID)
	if err != nil {
		return Order{}, err
	}
	if alreadyPaid {
		return paid, nil
	}

	s.logger(ctx, orderEventPaid, map[string]any{"orderId": paid.ID, "total": paid.Total.String(), "items": paid.TotalItems})
	s.publishEvent(ctx, paid, OrderEvent{
		Type:           orderEventPaid,
		PreviousStatus: string(previous),
		CurrentStatus:  string(paid.Status),
		OccurredAt:     now,
	})
	return paid, nil
}

// validatePayable checks every line against current stock before anything is written.
func (s *orderService) validatePayable(ctx context.Context, order Order) error {
	if order.Status == domain.OrderStatusCanceled {
		return fmt.Errorf("%w: canceled order cannot be paid", ErrOrderInvalidState)
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: %s", ErrOrderInvalidState, msgNoItems)
	}
	for _, item := range order.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return insufficientStock(item.ProductID, 0, item.Quantity)
			}
			return s.mapRepositoryError(err)
		}
		if product.Stock < item.Quantity {
			return insufficientStock(product.ID, product.Stock, item.Quantity)
		}
	}
	return nil
}

// recalcTotals persists the totals derived from items, the order's item set as read and changed inside the
// current unit of work.
func (s *orderService) recalcTotals(ctx context.Context, order Order, items []OrderItem) error {
	order.ApplyTotals(items)
	order.Items = items
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func ensureEditable(order Order) error {
	switch order.Status {
	case domain.OrderStatusPaid:
		return fmt.Errorf("%w: %s", ErrOrderInvalidState, msgPaidNotEditable)
	case domain.OrderStatusCanceled:
		return fmt.Errorf("%w: %s", ErrOrderInvalidState, msgCanceledNotEditable)
	}
	return nil
}

func insufficientStock(productID string, available, requested int) error {
	return fmt.Errorf("%w: %w for product %s (available %d, requested %d)", ErrOrderInvalidState, ErrInsufficientStock, productID, available, requested)
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.lookupError(err, "order", orderID)
	}
	return order, nil
}

func (s *orderService) lookupError(err error, entity, id string) error {
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: %s %s", ErrOrderNotFound, entity, id)
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}

	return err
}

func (s *orderService) generateOrderCode(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("ORD-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, order Order, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.OrderID = order.ID
	event.OrderCode = order.Code
	event.CustomerID = order.CustomerID
	if event.CurrentStatus == "" {
		event.CurrentStatus = string(order.Status)
	}
	event.Total = order.Total.String()
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func normalizePagination(p Pagination, defaultLimit, maxLimit int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}
