package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const itemSelect = `
	SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.unit_price::text, i.line_total::text,
	       i.created_at, i.updated_at
	FROM order_items i
	LEFT JOIN products p ON p.id = i.product_id`

// OrderItemRepository stores order lines. An order holds at most one line per product.
type OrderItemRepository struct {
	db *ppostgres.DB
}

func (r *OrderItemRepository) FindByID(ctx context.Context, orderID, itemID string) (domain.OrderItem, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, itemSelect+` WHERE i.order_id = $1 AND i.id = $2`, orderID, itemID)
	item, err := scanItem(row)
	if err != nil {
		return domain.OrderItem{}, notFoundOnNoRows("order_items.get", err, "item %s not found in order %s", itemID, orderID)
	}
	return item, nil
}

func (r *OrderItemRepository) FindByProduct(ctx context.Context, orderID, productID string) (domain.OrderItem, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, itemSelect+` WHERE i.order_id = $1 AND i.product_id = $2`, orderID, productID)
	item, err := scanItem(row)
	if err != nil {
		return domain.OrderItem{}, notFoundOnNoRows("order_items.find_by_product", err, "order %s has no item for product %s", orderID, productID)
	}
	return item, nil
}

func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return listItems(ctx, r.db.Conn(ctx), orderID)
}

// Save inserts the line or updates its quantity and amounts when the id already exists.
func (r *OrderItemRepository) Save(ctx context.Context, item domain.OrderItem) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, line_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET quantity = EXCLUDED.quantity, unit_price = EXCLUDED.unit_price, line_total = EXCLUDED.line_total,
		    updated_at = EXCLUDED.updated_at`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice.String(), item.LineTotal.String(),
		item.CreatedAt, item.UpdatedAt)
	return ppostgres.WrapError("order_items.save", err)
}

func (r *OrderItemRepository) Delete(ctx context.Context, orderID, itemID string) (int, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM order_items WHERE order_id = $1 AND id = $2`, orderID, itemID)
	if err != nil {
		return 0, ppostgres.WrapError("order_items.delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func listItems(ctx context.Context, conn ppostgres.Querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := conn.Query(ctx, itemSelect+` WHERE i.order_id = $1 ORDER BY i.created_at, i.id`, orderID)
	if err != nil {
		return nil, ppostgres.WrapError("order_items.list", err)
	}
	items, err := collect(rows, scanItem)
	if err != nil {
		return nil, ppostgres.WrapError("order_items.list", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (domain.OrderItem, error) {
	var (
		item              domain.OrderItem
		unitPrice, amount string
	)
	if err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Product.Name, &item.Quantity, &unitPrice, &amount,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return domain.OrderItem{}, err
	}
	item.Product.ID = item.ProductID

	var err error
	if item.UnitPrice, err = scanMoney(unitPrice); err != nil {
		return domain.OrderItem{}, err
	}
	if item.LineTotal, err = scanMoney(amount); err != nil {
		return domain.OrderItem{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)
