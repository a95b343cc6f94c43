package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/alextreichler/shopbot/internal/models"
)

// Ban records a ban for userID. Banning an already banned user refreshes the reason.
func (s *Store) Ban(ctx context.Context, userID, reason string, at time.Time) error {
	query := `
		INSERT INTO banned_users (user_id, banned_at, reason) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET reason = excluded.reason
	`
	_, err := s.DB.ExecContext(ctx, query, userID, at, reason)
	return err
}

// Unban removes the ban row. Removing a missing row is not an error.
func (s *Store) Unban(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM banned_users WHERE user_id = ?`, userID)
	return err
}

func (s *Store) IsBanned(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM banned_users WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListBans(ctx context.Context) ([]models.BanEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, banned_at, COALESCE(reason, '') FROM banned_users ORDER BY banned_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []models.BanEntry
	for rows.Next() {
		var (
			b  models.BanEntry
			at sql.NullTime
		)
		if err := rows.Scan(&b.UserID, &at, &b.Reason); err != nil {
			return nil, err
		}
		b.BannedAt = at.Time
		bans = append(bans, b)
	}
	return bans, rows.Err()
}
