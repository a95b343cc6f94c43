package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type Store struct {
	DB  *sql.DB
	log *slog.Logger
}

// NewStore opens (creating if needed) the SQLite file at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{DB: db, log: slog.Default().With("component", "store")}, nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
		"_time_format=sqlite",
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// WithLogger replaces the store's logger.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.log = l.With("component", "store")
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.DB.Close()
}
