// Package pricer reads centralized-exchange reference prices used to sanity-check swap quotes.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// Pricer returns the last traded price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

var hundred = decimal.NewFromInt(100)

// DeviationPercent returns how far the quoted price is from the reference, in percent.
// Positive means the quote is better than the reference. Zero reference yields zero.
func DeviationPercent(quoted, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return quoted.Sub(reference).Div(reference).Mul(hundred)
}
