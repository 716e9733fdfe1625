package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const orderSelect = `
	SELECT o.id, o.code, o.customer_id, COALESCE(c.name, ''), COALESCE(c.email, ''), o.status,
	       o.subtotal::text, o.total::text, o.total_items, o.paid_at, o.created_at, o.updated_at
	FROM orders o
	LEFT JOIN customers c ON c.id = o.customer_id`

// OrderRepository stores order headers. Items live in order_items.
type OrderRepository struct {
	db *ppostgres.DB
}

// Insert fails with a conflict when the customer does not exist.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, code, customer_id, status, subtotal, total, total_items, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10)`,
		order.ID, order.Code, order.CustomerID, string(order.Status), order.Subtotal.String(), order.Total.String(),
		order.TotalItems, order.PaidAt, order.CreatedAt, order.UpdatedAt)
	return ppostgres.WrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE orders
		SET status = $2, subtotal = $3::text::numeric, total = $4::text::numeric, total_items = $5, paid_at = $6, updated_at = $7
		WHERE id = $1`,
		order.ID, string(order.Status), order.Subtotal.String(), order.Total.String(), order.TotalItems, order.PaidAt, order.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("orders.update", "order %s not found", order.ID)
	}
	return nil
}

// FindByID returns the order with its customer summary and items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	conn := r.db.Conn(ctx)
	order, err := scanOrder(conn.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, orderID))
	if err != nil {
		return domain.Order{}, notFoundOnNoRows("orders.get", err, "order %s not found", orderID)
	}
	items, err := listItems(ctx, conn, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// List returns order headers without items, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("o.status = ?", string(*filter.Status))
	}
	if filter.CustomerID != "" {
		cond.add("o.customer_id = ?", filter.CustomerID)
	}
	if filter.Search != "" {
		cond.add("(o.code ILIKE ? OR c.name ILIKE ? OR c.email ILIKE ?)", containsPattern(filter.Search))
	}

	conn := r.db.Conn(ctx)
	var total int
	countQuery := `SELECT COUNT(*) FROM orders o LEFT JOIN customers c ON c.id = o.customer_id` + cond.where()
	if err := conn.QueryRow(ctx, countQuery, cond.args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, ppostgres.WrapError("orders.count", err)
	}

	query := orderSelect + cond.where() + ` ORDER BY o.created_at DESC, o.id DESC` + cond.page(filter.Pagination)
	rows, err := conn.Query(ctx, query, cond.args...)
	if err != nil {
		return domain.Page[domain.Order]{}, ppostgres.WrapError("orders.list", err)
	}
	orders, err := collect(rows, scanOrder)
	if err != nil {
		return domain.Page[domain.Order]{}, ppostgres.WrapError("orders.list", err)
	}
	return domain.Page[domain.Order]{Items: orders, Total: total, Page: filter.Pagination.Page, Limit: filter.Pagination.Limit}, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order              domain.Order
		status             string
		subtotal, totalStr string
	)
	if err := row.Scan(&order.ID, &order.Code, &order.CustomerID, &order.Customer.Name, &order.Customer.Email, &status,
		&subtotal, &totalStr, &order.TotalItems, &order.PaidAt, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	order.Customer.ID = order.CustomerID
	order.Status = domain.OrderStatus(status)

	var err error
	if order.Subtotal, err = scanMoney(subtotal); err != nil {
		return domain.Order{}, err
	}
	if order.Total, err = scanMoney(totalStr); err != nil {
		return domain.Order{}, err
	}
	if order.PaidAt != nil {
		paid := order.PaidAt.UTC()
		order.PaidAt = &paid
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}
