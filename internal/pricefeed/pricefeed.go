// Package pricefeed converts USD order totals into the Litecoin amount a buyer must send.
package pricefeed

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept on crypto amounts (litoshis).
const Precision = 8

var ErrNoPrice = errors.New("no price available")

// Quoter converts a USD amount into LTC.
type Quoter interface {
	Quote(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
}

// Convert divides usd by the LTC/USD rate and rounds to Precision.
func Convert(usd, ltcUSD decimal.Decimal) (decimal.Decimal, error) {
	if !ltcUSD.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return usd.DivRound(ltcUSD, Precision), nil
}

// Fixed quotes against a constant LTC/USD rate.
type Fixed struct {
	Rate decimal.Decimal
}

func (f Fixed) Quote(_ context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	return Convert(usd, f.Rate)
}
