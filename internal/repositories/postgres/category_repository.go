package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

const categoryColumns = `id, name, description, created_at, updated_at`

// CategoryRepository stores catalog categories.
type CategoryRepository struct {
	db *ppostgres.DB
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		category.ID, category.Name, category.Description, category.CreatedAt, category.UpdatedAt)
	return ppostgres.WrapError("categories.insert", err)
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE categories SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		category.ID, category.Name, category.Description, category.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("categories.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("categories.update", "category %s not found", category.ID)
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
	if err != nil {
		return ppostgres.WrapError("categories.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("categories.delete", "category %s not found", categoryID)
	}
	return nil
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, categoryID)
	category, err := scanCategory(row)
	if err != nil {
		return domain.Category{}, notFoundOnNoRows("categories.get", err, "category %s not found", categoryID)
	}
	return category, nil
}

func (r *CategoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE LOWER(name) = LOWER($1)`, name)
	category, err := scanCategory(row)
	if err != nil {
		return domain.Category{}, notFoundOnNoRows("categories.find_by_name", err, "category %q not found", name)
	}
	return category, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, ppostgres.WrapError("categories.list", err)
	}
	categories, err := collect(rows, scanCategory)
	if err != nil {
		return nil, ppostgres.WrapError("categories.list", err)
	}
	return categories, nil
}

func scanCategory(row pgx.Row) (domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Category{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
