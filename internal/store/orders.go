package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/alextreichler/shopbot/internal/models"
)

const orderColumns = `
	o.id, o.user_id, o.item_id, COALESCE(i.name, ''), COALESCE(o.quantity, 1),
	COALESCE(o.total_price, 0), COALESCE(o.ltc_amount, 0), COALESCE(o.status, ''),
	COALESCE(o.confirmation_key, ''), COALESCE(o.payment_confirmed, 0),
	o.created_at, o.paid_at, o.delivered_at`

const orderFrom = `
	FROM orders o
	LEFT JOIN items i ON o.item_id = i.id`

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o                        models.Order
		created, paid, delivered sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.ProductName, &o.Quantity,
		&o.TotalPrice, &o.CryptoAmount, &o.Status,
		&o.ConfirmationKey, &o.PaymentConfirmed,
		&created, &paid, &delivered); err != nil {
		return nil, err
	}
	if created.Valid {
		o.CreatedAt = created.Time
	}
	if paid.Valid {
		o.PaidAt = &paid.Time
	}
	if delivered.Valid {
		o.DeliveredAt = &delivered.Time
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]models.Order, error) {
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// CreateOrder inserts o and sets its ID. A confirmation key that is already taken
// yields ErrDuplicateConfirmationKey.
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (user_id, item_id, quantity, total_price, ltc_amount, status, confirmation_key, payment_confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.DB.ExecContext(ctx, query, o.UserID, o.ProductID, o.Quantity, o.TotalPrice, o.CryptoAmount,
		o.Status, o.ConfirmationKey, o.PaymentConfirmed, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "orders.confirmation_key") {
			return ErrDuplicateConfirmationKey
		}
		return err
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) GetOrderByConfirmationKey(ctx context.Context, key string) (*models.Order, error) {
	o, err := scanOrder(s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.confirmation_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+orderColumns+orderFrom+`
		WHERE o.user_id = ?
		ORDER BY o.id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+orderColumns+orderFrom+`
		ORDER BY o.id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) CountOrders(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListUnpaidOrders returns pending orders whose payment has not been confirmed.
// Against a legacy schema without payment_confirmed it falls back to every
// pending order.
func (s *Store) ListUnpaidOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+orderColumns+orderFrom+`
		WHERE o.status = ? AND o.payment_confirmed = 0
		ORDER BY o.id`, models.StatusPending)
	if err == nil {
		return collectOrders(rows)
	}
	if !isMissingColumn(err, "payment_confirmed") && !isMissingColumn(err, "o.payment_confirmed") {
		return nil, err
	}

	s.log.Error("Unpaid order scan failed, falling back to status filter", "error", err)
	rows, err = s.DB.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.item_id, COALESCE(i.name, ''), COALESCE(o.quantity, 1),
			COALESCE(o.total_price, 0), COALESCE(o.ltc_amount, 0), COALESCE(o.status, ''),
			COALESCE(o.confirmation_key, ''), 0,
			o.created_at, o.paid_at, o.delivered_at`+orderFrom+`
		WHERE o.status = ?
		ORDER BY o.id`, models.StatusPending)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// MarkPaymentConfirmed records the admin's payment attestation. Status is left alone.
func (s *Store) MarkPaymentConfirmed(ctx context.Context, id int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE orders SET payment_confirmed = 1, paid_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE orders SET status = ?, delivered_at = ? WHERE id = ?`, models.StatusDelivered, at, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
