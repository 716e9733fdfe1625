package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const addressColumns = `id, customer_id, street, number, complement, district, city, state, zip_code, is_default, created_at, updated_at`

// AddressRepository stores customer addresses. Rows are removed with their customer.
type AddressRepository struct {
	db *ppostgres.DB
}

func (r *AddressRepository) Insert(ctx context.Context, address domain.Address) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO addresses (`+addressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		address.ID, address.CustomerID, address.Street, address.Number, address.Complement, address.District,
		address.City, address.State, address.ZipCode, address.IsDefault, address.CreatedAt, address.UpdatedAt)
	return ppostgres.WrapError("addresses.insert", err)
}

func (r *AddressRepository) Update(ctx context.Context, address domain.Address) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE addresses
		SET street = $2, number = $3, complement = $4, district = $5, city = $6, state = $7, zip_code = $8,
		    is_default = $9, updated_at = $10
		WHERE id = $1`,
		address.ID, address.Street, address.Number, address.Complement, address.District, address.City,
		address.State, address.ZipCode, address.IsDefault, address.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("addresses.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("addresses.update", "address %s not found", address.ID)
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, addressID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM addresses WHERE id = $1`, addressID)
	if err != nil {
		return ppostgres.WrapError("addresses.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("addresses.delete", "address %s not found", addressID)
	}
	return nil
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, addressID)
	address, err := scanAddress(row)
	if err != nil {
		return domain.Address{}, notFoundOnNoRows("addresses.get", err, "address %s not found", addressID)
	}
	return address, nil
}

func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE customer_id = $1
		ORDER BY is_default DESC, id DESC`, customerID)
	if err != nil {
		return nil, ppostgres.WrapError("addresses.list", err)
	}
	items, err := collect(rows, scanAddress)
	if err != nil {
		return nil, ppostgres.WrapError("addresses.list", err)
	}
	return items, nil
}

func (r *AddressRepository) ClearDefault(ctx context.Context, customerID, exceptID string) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE addresses SET is_default = FALSE
		WHERE customer_id = $1 AND id <> $2 AND is_default`, customerID, exceptID)
	return ppostgres.WrapError("addresses.clear_default", err)
}

func scanAddress(row pgx.Row) (domain.Address, error) {
	var a domain.Address
	if err := row.Scan(&a.ID, &a.CustomerID, &a.Street, &a.Number, &a.Complement, &a.District, &a.City,
		&a.State, &a.ZipCode, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Address{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
