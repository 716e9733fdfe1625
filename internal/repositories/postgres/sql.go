package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/shopfield/api/internal/domain"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
)

// conditions accumulates WHERE clauses with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

// add appends a clause; every "?" in clause is replaced by the placeholder of value.
func (c *conditions) add(clause string, value any) {
	c.args = append(c.args, value)
	c.clauses = append(c.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(c.args))))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page appends LIMIT and OFFSET placeholders for p.
func (c *conditions) page(p domain.Pagination) string {
	if p.Limit <= 0 {
		return ""
	}
	c.args = append(c.args, p.Limit, p.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(c.args)-1, len(c.args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching value anywhere.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

func scanMoney(raw string) (domain.Money, error) {
	if raw == "" {
		return domain.ZeroMoney(), nil
	}
	return domain.ParseMoney(raw)
}

func notFoundOnNoRows(op string, err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NewNotFound(op, format, args...)
	}
	return ppostgres.WrapError(op, err)
}
