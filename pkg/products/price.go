package products

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const weiExponent = 18

// FormatPrice renders p with exactly two fractional digits, rounding half away
// from zero. This is the form stored on the ledger.
func FormatPrice(p decimal.Decimal) string {
	return p.StringFixed(2)
}

// ParsePrice accepts a non-negative decimal string.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", ErrInvalidRequest, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %s", ErrInvalidRequest, s)
	}
	return d, nil
}

// ToWei converts an ether-denominated amount to wei. Amounts finer than one wei
// are rejected rather than truncated.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total price must be positive, got %s", ErrInvalidRequest, amount)
	}
	wei := amount.Shift(weiExponent)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: total price %s has more than %d decimals", ErrInvalidRequest, amount, weiExponent)
	}
	return wei.BigInt(), nil
}
