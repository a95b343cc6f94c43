package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations lists the embedded migration versions in the order they are applied.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions) // Ensure order 001, 002, ...
	return versions, nil
}

// Migrate applies every embedded migration that is not yet recorded in schema_migrations.
// Running it again is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	versions, err := Migrations()
	if err != nil {
		return err
	}

	for _, version := range versions {
		applied, err := s.isApplied(ctx, version)
		if err != nil {
			return err
		}
		if applied {
			s.log.Debug("Skipping already applied migration", "version", version)
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + version)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", version, err)
		}

		s.log.Info("Applying migration", "version", version)
		if err := s.apply(ctx, string(content)); err != nil {
			// Databases created before versioned migrations already carry the column.
			if !strings.Contains(err.Error(), "duplicate column name") {
				return fmt.Errorf("failed to execute migration %s: %w", version, err)
			}
			s.log.Warn("Column already exists, marking migration as applied", "version", version)
		}

		if _, err := s.DB.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
	}

	return nil
}

func (s *Store) apply(ctx context.Context, stmt string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) isApplied(ctx context.Context, version string) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", version, err)
	}
	return true, nil
}

// Columns returns the column names of table, in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Tables returns the user table names in the database.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
