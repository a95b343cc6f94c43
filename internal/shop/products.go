package shop

import (
	"context"
	"errors"
	"strings"

	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/shopspring/decimal"
)

type NewProduct struct {
	Name         string
	Price        decimal.Decimal
	Stock        int
	Description  string
	DeliveryLink string
}

func (s *Service) AddProduct(ctx context.Context, in NewProduct) (*models.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidProductName
	}
	if !in.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if in.Stock < 0 {
		return nil, ErrInvalidStock
	}

	// The column is only unique byte-for-byte; lookups ignore case, so names must too.
	if _, err := s.store.GetProductByName(ctx, name); err == nil {
		return nil, ErrDuplicateProduct
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	p := &models.Product{
		Name:         name,
		Price:        in.Price.Round(2),
		Stock:        in.Stock,
		Description:  strings.TrimSpace(in.Description),
		DeliveryLink: strings.TrimSpace(in.DeliveryLink),
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("Product added", "product_id", p.ID, "name", p.Name, "price", p.Price.StringFixed(2), "stock", p.Stock)
	return p, nil
}

func (s *Service) Products(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) Product(ctx context.Context, name string) (*models.Product, error) {
	return s.productByName(ctx, name)
}

func (s *Service) SetPrice(ctx context.Context, name string, price decimal.Decimal) (*models.Product, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	return s.editProduct(ctx, name, func(p *models.Product) error {
		p.Price = price.Round(2)
		return s.store.UpdateProductPrice(ctx, p.ID, p.Price)
	})
}

func (s *Service) SetStock(ctx context.Context, name string, stock int) (*models.Product, error) {
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return s.editProduct(ctx, name, func(p *models.Product) error {
		p.Stock = stock
		return s.store.UpdateProductStock(ctx, p.ID, stock)
	})
}

func (s *Service) SetDescription(ctx context.Context, name, description string) (*models.Product, error) {
	return s.editProduct(ctx, name, func(p *models.Product) error {
		p.Description = strings.TrimSpace(description)
		return s.store.UpdateProductDescription(ctx, p.ID, p.Description)
	})
}

// SetDeliveryLink sets the link sent on auto-delivery. An empty link clears it.
func (s *Service) SetDeliveryLink(ctx context.Context, name, link string) (*models.Product, error) {
	return s.editProduct(ctx, name, func(p *models.Product) error {
		p.DeliveryLink = strings.TrimSpace(link)
		return s.store.UpdateDeliveryLink(ctx, p.ID, p.DeliveryLink)
	})
}

// SetDeliveryLinkByID is SetDeliveryLink addressed by product id.
func (s *Service) SetDeliveryLinkByID(ctx context.Context, id int64, link string) (*models.Product, error) {
	p, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	p.DeliveryLink = strings.TrimSpace(link)
	if err := s.store.UpdateDeliveryLink(ctx, p.ID, p.DeliveryLink); err != nil {
		return nil, err
	}
	s.log.Info("Product updated", "product_id", p.ID, "name", p.Name)
	return p, nil
}

// RemoveProduct deletes a product that no order references.
func (s *Service) RemoveProduct(ctx context.Context, name string) error {
	p, err := s.productByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, p.ID); err != nil {
		return err
	}
	s.log.Info("Product removed", "product_id", p.ID, "name", p.Name)
	return nil
}

func (s *Service) editProduct(ctx context.Context, name string, apply func(p *models.Product) error) (*models.Product, error) {
	p, err := s.productByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := apply(p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	s.log.Info("Product updated", "product_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) productByName(ctx context.Context, name string) (*models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrProductNotFound
	}
	p, err := s.store.GetProductByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}
