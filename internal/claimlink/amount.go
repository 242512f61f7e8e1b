package claimlink

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a decimal string (e.g. "5.00") into the token's smallest
// unit. The conversion is exact: amounts with more fractional digits than the
// token supports are rejected rather than rounded.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}

	units := d.Shift(decimals)
	if !units.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, decimals)
	}
	return units.BigInt(), nil
}

// FormatUnits is the inverse of ParseUnits.
func FormatUnits(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}
