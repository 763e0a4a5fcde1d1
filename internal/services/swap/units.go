package swap

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a human-entered amount; it must be a positive number.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.Wrap(ErrInvalidAmount, "empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "parse %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "amount %s must be positive", d)
	}
	return d, nil
}

// ToBaseUnits scales a human amount to integer base units, truncating extra precision.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromBaseUnits scales integer base units back to a human amount.
func FromBaseUnits(v *big.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// ParseBaseUnits parses a decimal integer string as returned by swap APIs.
func ParseBaseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.Errorf("invalid integer amount %q", s)
	}
	return v, nil
}
