package firestore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"

	domain "github.com/shopfield/api/internal/domain"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/repositories"
)

// AddressRepository stores addresses under customers/{customerId}/addresses. Each document repeats its id
// so a collection group query can find an address without knowing the customer.
type AddressRepository struct {
	provider *pfirestore.Provider
	group    *pfirestore.BaseRepository[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) *AddressRepository {
	return &AddressRepository{
		provider: provider,
		group:    pfirestore.NewBaseRepository[addressDocument](provider, addressesCollection, nil, nil),
	}
}

func (r *AddressRepository) collection(customerID string) *pfirestore.BaseRepository[addressDocument] {
	path := fmt.Sprintf("%s/%s/%s", customersCollection, customerID, addressesCollection)
	return pfirestore.NewBaseRepository[addressDocument](r.provider, path, nil, nil)
}

// Insert writes without reading so it can follow ClearDefault inside a transaction. Callers check that
// the customer exists.
func (r *AddressRepository) Insert(ctx context.Context, address domain.Address) error {
	return r.collection(address.CustomerID).Create(ctx, address.ID, fromDomainAddress(address))
}

// Update is a blind field update; a missing document fails with not found when the write is applied.
func (r *AddressRepository) Update(ctx context.Context, address domain.Address) error {
	return r.collection(address.CustomerID).Update(ctx, address.ID, []firestore.Update{
		{Path: "street", Value: address.Street},
		{Path: "number", Value: address.Number},
		{Path: "complement", Value: address.Complement},
		{Path: "district", Value: address.District},
		{Path: "city", Value: address.City},
		{Path: "state", Value: address.State},
		{Path: "zipCode", Value: address.ZipCode},
		{Path: "isDefault", Value: address.IsDefault},
		{Path: "updatedAt", Value: address.UpdatedAt},
	})
}

func (r *AddressRepository) Delete(ctx context.Context, addressID string) error {
	address, err := r.FindByID(ctx, addressID)
	if err != nil {
		return err
	}
	return r.collection(address.CustomerID).Delete(ctx, address.ID)
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	docs, err := r.group.Run(ctx, client.CollectionGroup(addressesCollection).Where("addressId", "==", addressID).Limit(1))
	if err != nil {
		return domain.Address{}, err
	}
	if len(docs) == 0 {
		return domain.Address{}, repositories.NewNotFound("addresses.get", "address %s not found", addressID)
	}
	return toDomainAddress(docs[0].ID, docs[0].Data), nil
}

func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error) {
	docs, err := r.collection(customerID).Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, toDomainAddress(doc.ID, doc.Data))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].IsDefault != rows[j].IsDefault {
			return rows[i].IsDefault
		}
		return rows[i].ID > rows[j].ID
	})
	return rows, nil
}

// ClearDefault reads every default address before writing, so it may run before other writes of the same
// transaction but never after them.
func (r *AddressRepository) ClearDefault(ctx context.Context, customerID, exceptID string) error {
	addresses := r.collection(customerID)
	docs, err := addresses.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isDefault", "==", true)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID == exceptID {
			continue
		}
		if err := addresses.Update(ctx, doc.ID, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
			return err
		}
	}
	return nil
}
