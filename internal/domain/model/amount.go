package model

import "github.com/shopspring/decimal"

// Amount is a fixed-point monetary value. Float arithmetic is only used
// after cleaning, once amounts are standardized and aggregated.
type Amount = decimal.Decimal

// NewAmount builds an Amount from a float, for test fixtures and generators.
func NewAmount(v float64) Amount { return decimal.NewFromFloat(v) }
