package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const productColumns = `id, name, description, price::text, stock, active, image_url, COALESCE(category_id, ''), created_at, updated_at`

// ProductRepository stores catalog products in the products table.
type ProductRepository struct {
	db *ppostgres.DB
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO products (id, name, description, price, stock, active, image_url, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		product.ID, product.Name, product.Description, product.Price.String(), product.Stock, product.Active,
		product.ImageURL, product.CategoryID, product.CreatedAt, product.UpdatedAt)
	return ppostgres.WrapError("products.insert", err)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4::text::numeric, stock = $5, active = $6, image_url = $7,
		    category_id = NULLIF($8, ''), updated_at = $9
		WHERE id = $1`,
		product.ID, product.Name, product.Description, product.Price.String(), product.Stock, product.Active,
		product.ImageURL, product.CategoryID, product.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("products.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("products.update", "product %s not found", product.ID)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return ppostgres.WrapError("products.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("products.delete", "product %s not found", productID)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, notFoundOnNoRows("products.get", err, "product %s not found", productID)
	}
	return product, nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	var cond conditions
	if filter.ActiveOnly {
		cond.add("active = ?", true)
	}
	if filter.CategoryID != "" {
		cond.add("category_id = ?", filter.CategoryID)
	}
	if filter.Search != "" {
		cond.add("(name ILIKE ? OR description ILIKE ?)", containsPattern(filter.Search))
	}

	conn := r.db.Conn(ctx)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM products`+cond.where(), cond.args...).Scan(&total); err != nil {
		return domain.Page[domain.Product]{}, ppostgres.WrapError("products.count", err)
	}

	query := `SELECT ` + productColumns + ` FROM products` + cond.where() + ` ORDER BY id` + cond.page(filter.Pagination)
	rows, err := conn.Query(ctx, query, cond.args...)
	if err != nil {
		return domain.Page[domain.Product]{}, ppostgres.WrapError("products.list", err)
	}
	items, err := collect(rows, scanProduct)
	if err != nil {
		return domain.Page[domain.Product]{}, ppostgres.WrapError("products.list", err)
	}
	return domain.Page[domain.Product]{Items: items, Total: total, Page: filter.Pagination.Page, Limit: filter.Pagination.Limit}, nil
}

// DecrementStock debits stock with a conditional update so concurrent payments cannot overdraw it.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("products.decrement_stock: amount must be positive, got %d", amount)
	}
	conn := r.db.Conn(ctx)
	tag, err := conn.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`, productID, amount)
	if err != nil {
		return ppostgres.WrapError("products.decrement_stock", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var stock int
	if err := conn.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		return notFoundOnNoRows("products.decrement_stock", err, "product %s not found", productID)
	}
	return repositories.NewConflict("products.decrement_stock", "product %s has %d units, cannot debit %d", productID, stock, amount)
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product domain.Product
		price   string
	)
	if err := row.Scan(&product.ID, &product.Name, &product.Description, &price, &product.Stock, &product.Active,
		&product.ImageURL, &product.CategoryID, &product.CreatedAt, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	var err error
	if product.Price, err = scanMoney(price); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

// collect drains rows through scan and closes them.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
