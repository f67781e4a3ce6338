package bundlecore

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	gweiUnit  = decimal.New(1, 9)
	etherUnit = decimal.New(1, 18)
)

// GweiToWei parses a decimal gwei amount such as "1.5".
func GweiToWei(s string) (*big.Int, error) {
	return parseUnits(s, gweiUnit)
}

// ParseETH parses a decimal ether amount such as "0.05".
func ParseETH(s string) (*big.Int, error) {
	return parseUnits(s, etherUnit)
}

func parseUnits(s string, unit decimal.Decimal) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	return d.Mul(unit).Truncate(0).BigInt(), nil
}

// FormatGwei renders wei as gwei with two decimals.
func FormatGwei(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, 0).Div(gweiUnit).StringFixed(2)
}

// FormatETH renders wei as ether with six decimals.
func FormatETH(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, 0).Div(etherUnit).StringFixed(6)
}
