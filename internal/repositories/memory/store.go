// Package memory provides map backed repositories for tests and local runs.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
)

// Store keeps every entity in process memory. Transactions are serialised and implemented as
// snapshot/restore, so writes made outside RunInTx while a transaction is running can be lost on rollback.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	orders     map[string]domain.Order
	items      map[string]domain.OrderItem
	products   map[string]domain.Product
	customers  map[string]domain.Customer
	addresses  map[string]domain.Address
	categories map[string]domain.Category
	counters   map[string]int64
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		orders:     map[string]domain.Order{},
		items:      map[string]domain.OrderItem{},
		products:   map[string]domain.Product{},
		customers:  map[string]domain.Customer{},
		addresses:  map[string]domain.Address{},
		categories: map[string]domain.Category{},
		counters:   map[string]int64{},
	}
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository         { return orderRepo{s} }
func (s *Store) OrderItems() repositories.OrderItemRepository { return itemRepo{s} }
func (s *Store) Products() repositories.ProductRepository     { return productRepo{s} }
func (s *Store) Customers() repositories.CustomerRepository   { return customerRepo{s} }
func (s *Store) Addresses() repositories.AddressRepository    { return addressRepo{s} }
func (s *Store) Categories() repositories.CategoryRepository  { return categoryRepo{s} }
func (s *Store) Counters() repositories.CounterRepository     { return counterRepo{s} }

type snapshot struct {
	orders     map[string]domain.Order
	items      map[string]domain.OrderItem
	products   map[string]domain.Product
	customers  map[string]domain.Customer
	addresses  map[string]domain.Address
	categories map[string]domain.Category
	counters   map[string]int64
}

// RunInTx runs fn and restores the pre-transaction state if fn fails. Nested calls join the outer
// transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if repositories.InTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := snapshot{
		orders:     maps.Clone(s.orders),
		items:      maps.Clone(s.items),
		products:   maps.Clone(s.products),
		customers:  maps.Clone(s.customers),
		addresses:  maps.Clone(s.addresses),
		categories: maps.Clone(s.categories),
		counters:   maps.Clone(s.counters),
	}
	s.mu.RUnlock()

	if err := fn(repositories.ContextWithTx(ctx)); err != nil {
		s.mu.Lock()
		s.orders = snap.orders
		s.items = snap.items
		s.products = snap.products
		s.customers = snap.customers
		s.addresses = snap.addresses
		s.categories = snap.categories
		s.counters = snap.counters
		s.mu.Unlock()
		return err
	}
	return nil
}

func containsFold(value, needle string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

// Orders ---------------------------------------------------------------------

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return repositories.NewConflict("memory.orders.insert", "order %s already exists", order.ID)
	}
	if _, ok := r.s.customers[order.CustomerID]; !ok {
		return repositories.NewConflict("memory.orders.insert", "customer %s does not exist", order.CustomerID)
	}
	order.Items = nil
	r.s.orders[order.ID] = order
	return nil
}

func (r orderRepo) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; !ok {
		return repositories.NewNotFound("memory.orders.update", "order %s not found", order.ID)
	}
	order.Items = nil
	r.s.orders[order.ID] = order
	return nil
}

func (r orderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("memory.orders.get", "order %s not found", orderID)
	}
	order = r.s.hydrateCustomer(order)
	order.Items = r.s.itemsOf(orderID)
	return order, nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.TrimSpace(filter.Search)
	rows := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		order = r.s.hydrateCustomer(order)
		if search != "" && !containsFold(order.Code, search) && !containsFold(order.Customer.Name, search) && !containsFold(order.Customer.Email, search) {
			continue
		}
		rows = append(rows, order)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return domain.PageOf(rows, filter.Pagination), nil
}

func (s *Store) hydrateCustomer(order domain.Order) domain.Order {
	if customer, ok := s.customers[order.CustomerID]; ok {
		order.Customer = domain.CustomerSummary{ID: customer.ID, Name: customer.Name, Email: customer.Email}
	}
	return order
}

func (s *Store) itemsOf(orderID string) []domain.OrderItem {
	items := make([]domain.OrderItem, 0)
	for _, item := range s.items {
		if item.OrderID != orderID {
			continue
		}
		if product, ok := s.products[item.ProductID]; ok {
			item.Product = domain.ProductSummary{ID: product.ID, Name: product.Name}
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// Order items ----------------------------------------------------------------

type itemRepo struct{ s *Store }

func (r itemRepo) FindByID(_ context.Context, orderID, itemID string) (domain.OrderItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.items[itemID]
	if !ok || item.OrderID != orderID {
		return domain.OrderItem{}, repositories.NewNotFound("memory.order_items.get", "item %s not found in order %s", itemID, orderID)
	}
	return item, nil
}

func (r itemRepo) FindByProduct(_ context.Context, orderID, productID string) (domain.OrderItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, item := range r.s.items {
		if item.OrderID == orderID && item.ProductID == productID {
			return item, nil
		}
	}
	return domain.OrderItem{}, repositories.NewNotFound("memory.order_items.find_by_product", "order %s has no item for product %s", orderID, productID)
}

func (r itemRepo) ListByOrder(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.itemsOf(orderID), nil
}

func (r itemRepo) Save(_ context.Context, item domain.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[item.OrderID]; !ok {
		return repositories.NewConflict("memory.order_items.save", "order %s does not exist", item.OrderID)
	}
	if _, ok := r.s.products[item.ProductID]; !ok {
		return repositories.NewConflict("memory.order_items.save", "product %s does not exist", item.ProductID)
	}
	for id, existing := range r.s.items {
		if id != item.ID && existing.OrderID == item.OrderID && existing.ProductID == item.ProductID {
			return repositories.NewConflict("memory.order_items.save", "order %s already has an item for product %s", item.OrderID, item.ProductID)
		}
	}
	r.s.items[item.ID] = item
	return nil
}

func (r itemRepo) Delete(_ context.Context, orderID, itemID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok || item.OrderID != orderID {
		return 0, nil
	}
	delete(r.s.items, itemID)
	return 1, nil
}

// Products -------------------------------------------------------------------

type productRepo struct{ s *Store }

func (r productRepo) Insert(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; ok {
		return repositories.NewConflict("memory.products.insert", "product %s already exists", product.ID)
	}
	if product.CategoryID != "" {
		if _, ok := r.s.categories[product.CategoryID]; !ok {
			return repositories.NewConflict("memory.products.insert", "category %s does not exist", product.CategoryID)
		}
	}
	r.s.products[product.ID] = product
	return nil
}

func (r productRepo) Update(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; !ok {
		return repositories.NewNotFound("memory.products.update", "product %s not found", product.ID)
	}
	r.s.products[product.ID] = product
	return nil
}

func (r productRepo) Delete(_ context.Context, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[productID]; !ok {
		return repositories.NewNotFound("memory.products.delete", "product %s not found", productID)
	}
	for _, item := range r.s.items {
		if item.ProductID == productID {
			return repositories.NewConflict("memory.products.delete", "product %s is referenced by order %s", productID, item.OrderID)
		}
	}
	delete(r.s.products, productID)
	return nil
}

func (r productRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFound("memory.products.get", "product %s not found", productID)
	}
	return product, nil
}

func (r productRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.TrimSpace(filter.Search)
	rows := make([]domain.Product, 0, len(r.s.products))
	for _, product := range r.s.products {
		if filter.ActiveOnly && !product.Active {
			continue
		}
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" && !containsFold(product.Name, search) && !containsFold(product.Description, search) {
			continue
		}
		rows = append(rows, product)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return domain.PageOf(rows, filter.Pagination), nil
}

func (r productRepo) DecrementStock(_ context.Context, productID string, amount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return repositories.NewNotFound("memory.products.decrement_stock", "product %s not found", productID)
	}
	if product.Stock < amount {
		return repositories.NewConflict("memory.products.decrement_stock", "product %s has %d units, cannot debit %d", productID, product.Stock, amount)
	}
	product.Stock -= amount
	r.s.products[productID] = product
	return nil
}

// Customers ------------------------------------------------------------------

type customerRepo struct{ s *Store }

func (r customerRepo) Insert(_ context.Context, customer domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customer.ID]; ok {
		return repositories.NewConflict("memory.customers.insert", "customer %s already exists", customer.ID)
	}
	if r.s.emailTaken(customer.Email, "") {
		return repositories.NewConflict("memory.customers.insert", "email %s already registered", customer.Email)
	}
	r.s.customers[customer.ID] = customer
	return nil
}

func (r customerRepo) Update(_ context.Context, customer domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customer.ID]; !ok {
		return repositories.NewNotFound("memory.customers.update", "customer %s not found", customer.ID)
	}
	if r.s.emailTaken(customer.Email, customer.ID) {
		return repositories.NewConflict("memory.customers.update", "email %s already registered", customer.Email)
	}
	r.s.customers[customer.ID] = customer
	return nil
}

func (r customerRepo) Delete(_ context.Context, customerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customerID]; !ok {
		return repositories.NewNotFound("memory.customers.delete", "customer %s not found", customerID)
	}
	for _, order := range r.s.orders {
		if order.CustomerID == customerID {
			return repositories.NewConflict("memory.customers.delete", "customer %s has orders", customerID)
		}
	}
	delete(r.s.customers, customerID)
	for id, address := range r.s.addresses {
		if address.CustomerID == customerID {
			delete(r.s.addresses, id)
		}
	}
	return nil
}

func (r customerRepo) FindByID(_ context.Context, customerID string) (domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	customer, ok := r.s.customers[customerID]
	if !ok {
		return domain.Customer{}, repositories.NewNotFound("memory.customers.get", "customer %s not found", customerID)
	}
	return customer, nil
}

func (r customerRepo) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, customer := range r.s.customers {
		if strings.EqualFold(customer.Email, email) {
			return customer, nil
		}
	}
	return domain.Customer{}, repositories.NewNotFound("memory.customers.find_by_email", "customer with email %s not found", email)
}

func (r customerRepo) List(_ context.Context, filter repositories.CustomerListFilter) (domain.Page[domain.Customer], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.TrimSpace(filter.Search)
	rows := make([]domain.Customer, 0, len(r.s.customers))
	for _, customer := range r.s.customers {
		if search != "" && !containsFold(customer.Name, search) && !containsFold(customer.Email, search) {
			continue
		}
		rows = append(rows, customer)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return domain.PageOf(rows, filter.Pagination), nil
}

func (s *Store) emailTaken(email, exceptID string) bool {
	for id, customer := range s.customers {
		if id != exceptID && strings.EqualFold(customer.Email, email) {
			return true
		}
	}
	return false
}

// Addresses ------------------------------------------------------------------

type addressRepo struct{ s *Store }

func (r addressRepo) Insert(_ context.Context, address domain.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.addresses[address.ID]; ok {
		return repositories.NewConflict("memory.addresses.insert", "address %s already exists", address.ID)
	}
	if _, ok := r.s.customers[address.CustomerID]; !ok {
		return repositories.NewConflict("memory.addresses.insert", "customer %s does not exist", address.CustomerID)
	}
	r.s.addresses[address.ID] = address
	return nil
}

func (r addressRepo) Update(_ context.Context, address domain.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.addresses[address.ID]
	if !ok {
		return repositories.NewNotFound("memory.addresses.update", "address %s not found", address.ID)
	}
	address.CustomerID = existing.CustomerID
	r.s.addresses[address.ID] = address
	return nil
}

func (r addressRepo) Delete(_ context.Context, addressID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.addresses[addressID]; !ok {
		return repositories.NewNotFound("memory.addresses.delete", "address %s not found", addressID)
	}
	delete(r.s.addresses, addressID)
	return nil
}

func (r addressRepo) FindByID(_ context.Context, addressID string) (domain.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	address, ok := r.s.addresses[addressID]
	if !ok {
		return domain.Address{}, repositories.NewNotFound("memory.addresses.get", "address %s not found", addressID)
	}
	return address, nil
}

func (r addressRepo) ListByCustomer(_ context.Context, customerID string) ([]domain.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := make([]domain.Address, 0)
	for _, address := range r.s.addresses {
		if address.CustomerID == customerID {
			rows = append(rows, address)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].IsDefault != rows[j].IsDefault {
			return rows[i].IsDefault
		}
		return rows[i].ID > rows[j].ID
	})
	return rows, nil
}

func (r addressRepo) ClearDefault(_ context.Context, customerID, exceptID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, address := range r.s.addresses {
		if id == exceptID || address.CustomerID != customerID || !address.IsDefault {
			continue
		}
		address.IsDefault = false
		r.s.addresses[id] = address
	}
	return nil
}

// Categories -----------------------------------------------------------------

type categoryRepo struct{ s *Store }

func (r categoryRepo) Insert(_ context.Context, category domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[category.ID]; ok {
		return repositories.NewConflict("memory.categories.insert", "category %s already exists", category.ID)
	}
	if r.s.categoryNameTaken(category.Name, "") {
		return repositories.NewConflict("memory.categories.insert", "category name %q already used", category.Name)
	}
	r.s.categories[category.ID] = category
	return nil
}

func (r categoryRepo) Update(_ context.Context, category domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[category.ID]; !ok {
		return repositories.NewNotFound("memory.categories.update", "category %s not found", category.ID)
	}
	if r.s.categoryNameTaken(category.Name, category.ID) {
		return repositories.NewConflict("memory.categories.update", "category name %q already used", category.Name)
	}
	r.s.categories[category.ID] = category
	return nil
}

func (r categoryRepo) Delete(_ context.Context, categoryID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[categoryID]; !ok {
		return repositories.NewNotFound("memory.categories.delete", "category %s not found", categoryID)
	}
	for _, product := range r.s.products {
		if product.CategoryID == categoryID {
			return repositories.NewConflict("memory.categories.delete", "category %s has products", categoryID)
		}
	}
	delete(r.s.categories, categoryID)
	return nil
}

func (r categoryRepo) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	category, ok := r.s.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFound("memory.categories.get", "category %s not found", categoryID)
	}
	return category, nil
}

func (r categoryRepo) FindByName(_ context.Context, name string) (domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, category := range r.s.categories {
		if strings.EqualFold(category.Name, name) {
			return category, nil
		}
	}
	return domain.Category{}, repositories.NewNotFound("memory.categories.find_by_name", "category %q not found", name)
}

func (r categoryRepo) List(context.Context) ([]domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := make([]domain.Category, 0, len(r.s.categories))
	for _, category := range r.s.categories {
		rows = append(rows, category)
	}
	sort.Slice(rows, func(i, j int) bool { return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name) })
	return rows, nil
}

func (s *Store) categoryNameTaken(name, exceptID string) bool {
	for id, category := range s.categories {
		if id != exceptID && strings.EqualFold(category.Name, name) {
			return true
		}
	}
	return false
}

// Counters -------------------------------------------------------------------

type counterRepo struct{ s *Store }

func (r counterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[counterID] += step
	return r.s.counters[counterID], nil
}
