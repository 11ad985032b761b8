package math

import (
	"errors"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// MultiplierConfig is the fixed-point encoding of the leverage ratio:
	// multiplier / 10^6. A stored multiplier of 10_000_000 means x10 leverage.
	MultiplierConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}

	// FeeConfig is the fixed-point encoding of the pool fee.
	FeeConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}

	// AmountConfig is the precision of underlying-asset amounts and shares.
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
)

// ErrDivisionByZero is returned when a valuation denominator is zero, e.g.
// pricing a redemption against an empty pool or a zero multiplier.
var ErrDivisionByZero = errors.New("division by zero")

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes a * b / denominator with a 128-bit intermediate product and
// truncation toward zero. All pool valuation math truncates: the rounding loss
// stays in the vault, which keeps payouts solvent.
func MulDiv(a, b, denominator int64) (int64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}

	product := getInt128()
	product.Mul(big.NewInt(a), big.NewInt(b))

	quotient := getInt128()
	quotient.Quo(product, big.NewInt(denominator))

	result := quotient.Int64()

	putInt128(product)
	putInt128(quotient)

	return result, nil
}

// MustMulDiv is MulDiv for call sites where the denominator is a non-zero
// constant. Panics on a zero denominator.
func MustMulDiv(a, b, denominator int64) int64 {
	v, err := MulDiv(a, b, denominator)
	if err != nil {
		panic("math: zero denominator in MustMulDiv")
	}
	return v
}

// AddCheck is saturating-free addition with an overflow report. Share supplies
// and vault balances are bounded well below int64 range in practice, but the
// deposit path still refuses to wrap.
func AddCheck(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
