package store

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	TotalProducts      int
	TotalOrders        int
	UnpaidOrders       int
	Revenue            decimal.Decimal // delivered orders only
	OrdersByStatus     map[string]int
	ProductOrderCounts []ProductOrderCount
}

type ProductOrderCount struct {
	ProductID  int64
	Name       string
	OrderCount int
}

func (s *Store) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		OrdersByStatus: make(map[string]int),
	}

	scalars := []struct {
		query string
		dest  any
	}{
		{"SELECT COUNT(*) FROM items", &stats.TotalProducts},
		{"SELECT COUNT(*) FROM orders", &stats.TotalOrders},
		{"SELECT COUNT(*) FROM orders WHERE status = 'pending' AND COALESCE(payment_confirmed, 0) = 0", &stats.UnpaidOrders},
		{"SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE status = 'delivered'", &stats.Revenue},
	}
	for _, q := range scalars {
		if err := s.DB.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil && err != sql.ErrNoRows {
			return nil, err
		}
	}

	rows, err := s.DB.QueryContext(ctx, "SELECT COALESCE(status, ''), COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = count
	}

	productRows, err := s.DB.QueryContext(ctx, `
		SELECT i.id, COALESCE(i.name, ''), COUNT(o.id) as order_count
		FROM items i
		LEFT JOIN orders o ON i.id = o.item_id
		GROUP BY i.id
		ORDER BY order_count DESC
	`)
	if err != nil {
		return nil, err
	}
	defer productRows.Close()
	for productRows.Next() {
		var poc ProductOrderCount
		if err := productRows.Scan(&poc.ProductID, &poc.Name, &poc.OrderCount); err != nil {
			return nil, err
		}
		stats.ProductOrderCounts = append(stats.ProductOrderCounts, poc)
	}

	return stats, nil
}
