package store

import (
	"context"
	"database/sql"

	"github.com/alextreichler/shopbot/internal/models"
)

// GetUserByUsername returns nil, nil when no such dashboard user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password FROM users WHERE username = ?`
	row := s.DB.QueryRowContext(ctx, query, username)

	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Password); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser is mainly for seeding the initial admin
func (s *Store) CreateUser(ctx context.Context, username, hashedPassword string) error {
	query := `INSERT INTO users (username, password) VALUES (?, ?)`
	_, err := s.DB.ExecContext(ctx, query, username, hashedPassword)
	return err
}
