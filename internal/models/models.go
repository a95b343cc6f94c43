package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. The column is free text; these are the values the bot writes.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"` // USD
	Stock        int             `json:"stock"`
	Description  string          `json:"description"`
	DeliveryLink string          `json:"delivery_link"` // "drive_link" column, empty when unset
}

// HasDeliveryLink reports whether the product can be auto-delivered.
func (p *Product) HasDeliveryLink() bool {
	return p.DeliveryLink != ""
}

type Order struct {
	ID               int64           `json:"id"`
	UserID           string          `json:"user_id"`
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name"` // For display convenience
	Quantity         int             `json:"quantity"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	CryptoAmount     decimal.Decimal `json:"ltc_amount"`
	Status           string          `json:"status"`
	ConfirmationKey  string          `json:"confirmation_key"`
	PaymentConfirmed bool            `json:"payment_confirmed"`
	CreatedAt        time.Time       `json:"created_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
}

type BanEntry struct {
	UserID   string    `json:"user_id"`
	BannedAt time.Time `json:"banned_at"`
	Reason   string    `json:"reason"`
}

// User is a dashboard login, not a chat user.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"` // Store hashed password
}
