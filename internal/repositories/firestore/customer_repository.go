package firestore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/shopfield/api/internal/domain"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// CustomerRepository stores customers in the customers collection. Email uniqueness is checked inside a
// transaction so concurrent registrations of the same address conflict.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[customerDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

func (r *CustomerRepository) addresses(customerID string) *pfirestore.BaseRepository[addressDocument] {
	path := fmt.Sprintf("%s/%s/%s", customersCollection, customerID, addressesCollection)
	return pfirestore.NewBaseRepository[addressDocument](r.provider, path, nil, nil)
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) *CustomerRepository {
	return &CustomerRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		if err := r.ensureEmailFree(txCtx, "customers.insert", customer.Email, customer.ID); err != nil {
			return err
		}
		return r.base.Create(txCtx, customer.ID, fromDomainCustomer(customer))
	})
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.base.Get(txCtx, customer.ID); err != nil {
			return err
		}
		if err := r.ensureEmailFree(txCtx, "customers.update", customer.Email, customer.ID); err != nil {
			return err
		}
		return r.base.Set(txCtx, customer.ID, fromDomainCustomer(customer))
	})
}

// Delete removes the customer together with its addresses subcollection.
func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	return r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.base.Get(txCtx, customerID); err != nil {
			return err
		}
		coll, err := r.orders.CollectionRef(txCtx)
		if err != nil {
			return err
		}
		hasOrders, err := r.orders.Exists(txCtx, coll.Where("customerId", "==", customerID))
		if err != nil {
			return err
		}
		if hasOrders {
			return repositories.NewConflict("customers.delete", "customer %s has orders", customerID)
		}
		addresses := r.addresses(customerID)
		docs, err := addresses.Query(txCtx, nil)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := addresses.Delete(txCtx, doc.ID); err != nil {
				return err
			}
		}
		return r.base.Delete(txCtx, customerID)
	})
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return toDomainCustomer(doc.ID, doc.Data), nil
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", strings.ToLower(strings.TrimSpace(email))).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, repositories.NewNotFound("customers.find_by_email", "customer with email %s not found", email)
	}
	return toDomainCustomer(docs[0].ID, docs[0].Data), nil
}

func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.Page[domain.Customer], error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return domain.Page[domain.Customer]{}, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	rows := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		customer := toDomainCustomer(doc.ID, doc.Data)
		if search != "" && !matchesAny(search, customer.Name, customer.Email) {
			continue
		}
		rows = append(rows, customer)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return domain.PageOf(rows, filter.Pagination), nil
}

func (r *CustomerRepository) ensureEmailFree(ctx context.Context, op, email, exceptID string) error {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(2)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != exceptID {
			return repositories.NewConflict(op, "email %s already registered", email)
		}
	}
	return nil
}
