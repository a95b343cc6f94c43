package store

import (
	"errors"
	"strings"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrDuplicateConfirmationKey = errors.New("duplicate confirmation key")
	ErrDuplicateProduct         = errors.New("product name already exists")
	ErrProductInUse             = errors.New("product is referenced by orders")
)

// The driver reports constraint failures as plain text, e.g.
// "constraint failed: UNIQUE constraint failed: orders.confirmation_key (2067)".
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func isMissingColumn(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "no such column: "+column)
}
