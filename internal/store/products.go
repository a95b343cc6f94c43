package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alextreichler/shopbot/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, COALESCE(name, ''), COALESCE(price, 0), COALESCE(stock, 0), COALESCE(description, ''), COALESCE(drive_link, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Description, &p.DeliveryLink); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO items (name, price, stock, description, drive_link)
		VALUES (?, ?, ?, ?, NULLIF(?, ''))
	`
	res, err := s.DB.ExecContext(ctx, query, p.Name, p.Price, p.Stock, p.Description, p.DeliveryLink)
	if err != nil {
		if isUniqueViolation(err, "items.name") {
			return ErrDuplicateProduct
		}
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM items WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProductByName matches names case-insensitively.
func (s *Store) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM items WHERE name = ? COLLATE NOCASE`, name)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM items ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return s.updateProduct(ctx, `UPDATE items SET price = ? WHERE id = ?`, price, id)
}

func (s *Store) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	return s.updateProduct(ctx, `UPDATE items SET stock = ? WHERE id = ?`, stock, id)
}

func (s *Store) UpdateProductDescription(ctx context.Context, id int64, description string) error {
	return s.updateProduct(ctx, `UPDATE items SET description = ? WHERE id = ?`, description, id)
}

// UpdateDeliveryLink sets the drive link; an empty link clears it.
func (s *Store) UpdateDeliveryLink(ctx context.Context, id int64, link string) error {
	return s.updateProduct(ctx, `UPDATE items SET drive_link = NULLIF(?, '') WHERE id = ?`, link, id)
}

func (s *Store) updateProduct(ctx context.Context, query string, value any, id int64) error {
	res, err := s.DB.ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DecrementStock takes qty units in a single statement so two buyers cannot both
// take the last unit.
func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE items SET stock = stock - ? WHERE id = ? AND stock >= ?`, qty, id, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetProductByID(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

// IncrementStock returns units taken by DecrementStock.
func (s *Store) IncrementStock(ctx context.Context, id int64, qty int) error {
	return s.updateProduct(ctx, `UPDATE items SET stock = stock + ? WHERE id = ?`, qty, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	var refs int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE item_id = ?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d orders", ErrProductInUse, refs)
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
