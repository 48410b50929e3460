package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// OrderTotal multiplies unit price by quantity and rounds to cents.
func OrderTotal(unitPrice, quantity float64) float64 {
	total, _ := decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromFloat(quantity)).
		Round(2).
		Float64()
	return total
}

// AddMoney sums two amounts without binary floating point drift.
func AddMoney(a, b float64) float64 {
	sum, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Float64()
	return sum
}

// IsCents reports whether v is a finite amount with at most two decimals.
func IsCents(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return decimal.NewFromFloat(v).Exponent() >= -2
}
