package shop

import (
	"errors"

	"github.com/alextreichler/shopbot/internal/store"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrInvalidQuantity        = errors.New("quantity must be a positive integer")
	ErrInvalidPrice           = errors.New("price must be positive")
	ErrInvalidStock           = errors.New("stock cannot be negative")
	ErrInvalidProductName     = errors.New("product name is required")
	ErrDeliveryContentMissing = errors.New("product has no delivery link")
	ErrPriceUnavailable       = errors.New("crypto price unavailable")
	ErrKeyExhausted           = errors.New("could not generate a unique confirmation key")
	ErrAlreadyConfirmed       = errors.New("payment already confirmed")
	ErrOrderClosed            = errors.New("order is no longer pending")

	ErrInsufficientStock = store.ErrInsufficientStock
	ErrDuplicateProduct  = store.ErrDuplicateProduct
	ErrProductInUse      = store.ErrProductInUse
)
