package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const customerColumns = `id, name, email, phone, created_at, updated_at`

// CustomerRepository stores customers. Emails are unique case-insensitively.
type CustomerRepository struct {
	db *ppostgres.DB
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.CreatedAt, customer.UpdatedAt)
	return ppostgres.WrapError("customers.insert", err)
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE customers SET name = $2, email = $3, phone = $4, updated_at = $5 WHERE id = $1`,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("customers.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("customers.update", "customer %s not found", customer.ID)
	}
	return nil
}

// Delete fails with a conflict while orders reference the customer. Addresses cascade.
func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	if err != nil {
		return ppostgres.WrapError("customers.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("customers.delete", "customer %s not found", customerID)
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, customerID)
	customer, err := scanCustomer(row)
	if err != nil {
		return domain.Customer{}, notFoundOnNoRows("customers.get", err, "customer %s not found", customerID)
	}
	return customer, nil
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE LOWER(email) = LOWER($1)`, email)
	customer, err := scanCustomer(row)
	if err != nil {
		return domain.Customer{}, notFoundOnNoRows("customers.find_by_email", err, "customer with email %s not found", email)
	}
	return customer, nil
}

func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.Page[domain.Customer], error) {
	var cond conditions
	if filter.Search != "" {
		cond.add("(name ILIKE ? OR email ILIKE ?)", containsPattern(filter.Search))
	}

	conn := r.db.Conn(ctx)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+cond.where(), cond.args...).Scan(&total); err != nil {
		return domain.Page[domain.Customer]{}, ppostgres.WrapError("customers.count", err)
	}
	query := `SELECT ` + customerColumns + ` FROM customers` + cond.where() + ` ORDER BY id DESC` + cond.page(filter.Pagination)
	rows, err := conn.Query(ctx, query, cond.args...)
	if err != nil {
		return domain.Page[domain.Customer]{}, ppostgres.WrapError("customers.list", err)
	}
	items, err := collect(rows, scanCustomer)
	if err != nil {
		return domain.Page[domain.Customer]{}, ppostgres.WrapError("customers.list", err)
	}
	return domain.Page[domain.Customer]{Items: items, Total: total, Page: filter.Pagination.Page, Limit: filter.Pagination.Limit}, nil
}

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Customer{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
