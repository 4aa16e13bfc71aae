package types

import "github.com/shopspring/decimal"

// Money is a unit cost recorded on entry movements.
type Money = decimal.Decimal

// NewMoneyFromString parses a decimal amount such as "12.50".
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney parses s and panics on error. Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
