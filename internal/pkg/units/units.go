// Package units converts integer on-chain amounts to human decimal strings.
//
// Amounts are kept as big.Int end to end. Placing the decimal point is done
// on the base-10 string so that balances above 2^53 keep every digit.
package units

import (
	"math/big"
	"strconv"
	"strings"
)

// FormatUnits renders amount with the decimal point shifted left by decimals
// places. Trailing fractional zeros are trimmed ("1500000", 6 -> "1.5").
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	for len(s) < decimals+1 {
		s = "0" + s
	}
	point := len(s) - decimals
	whole, frac := s[:point], strings.TrimRight(s[point:], "0")

	result := whole
	if frac != "" {
		result += "." + frac
	}
	if neg {
		result = "-" + result
	}
	return result
}

// ToFloat returns the best-effort float value of FormatUnits(amount, decimals).
// Only suitable for USD estimates, never for amount arithmetic.
func ToFloat(amount *big.Int, decimals int) float64 {
	f, err := strconv.ParseFloat(FormatUnits(amount, decimals), 64)
	if err != nil {
		return 0
	}
	return f
}

// Pow10 returns 10^n as a big.Int.
func Pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MaxUint256 is 2^256 - 1.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ExceedsWholeUnits reports whether amount is strictly greater than n whole
// units at the given decimals.
func ExceedsWholeUnits(amount *big.Int, n int64, decimals int) bool {
	if amount == nil {
		return false
	}
	limit := new(big.Int).Mul(big.NewInt(n), Pow10(decimals))
	return amount.Cmp(limit) > 0
}
