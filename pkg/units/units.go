// Package units converts between integer token amounts in the smallest unit
// and their human-readable decimal form.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrFractional is returned when a value has more decimal places than the token supports.
var ErrFractional = errors.New("units: more decimal places than token decimals")

// Format renders v (smallest units) as a decimal string, e.g. 1500000000000000000 → "1.5"
// for 18 decimals. Trailing zeros are dropped.
func Format(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// Parse converts a decimal string in whole tokens to smallest units.
func Parse(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", s, err)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q", ErrFractional, s)
	}
	return shifted.BigInt(), nil
}

// ParseInteger parses a base-10 amount already expressed in smallest units.
func ParseInteger(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}
