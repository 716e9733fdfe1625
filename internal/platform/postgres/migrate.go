package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migrate applies every embedded *.up.sql file that is not yet recorded in schema_migrations, in lexical
// order, each inside its own transaction. It returns the versions applied by this call.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read migrations: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)

	var applied []string
	for _, version := range versions {
		var exists bool
		if err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("postgres: check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		body, err := migrationFiles.ReadFile("migrations/" + version)
		if err != nil {
			return applied, fmt.Errorf("postgres: read migration %s: %w", version, err)
		}
		err = db.RunInTx(ctx, func(txCtx context.Context) error {
			conn := db.Conn(txCtx)
			if _, err := conn.Exec(txCtx, string(body)); err != nil {
				return err
			}
			_, err := conn.Exec(txCtx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("postgres: apply migration %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}
