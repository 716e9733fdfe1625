package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for every amount.
const MoneyScale = 2

// Money is an exact decimal amount with a fixed two digit scale.
type Money struct {
	d decimal.Decimal
}

// ZeroMoney returns 0.00.
func ZeroMoney() Money {
	return Money{d: decimal.Zero}
}

// NewMoney rounds the decimal half-up to two places.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(MoneyScale)}
}

// MoneyFromCents builds an amount from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyScale)}
}

// ParseMoney parses a decimal string such as "10", "10.5" or "10.50".
// More than two fractional digits are rejected rather than silently rounded.
func ParseMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	if d.Exponent() < -MoneyScale && !d.Equal(d.Round(MoneyScale)) {
		return Money{}, fmt.Errorf("money: %q has more than %d decimal places", value, MoneyScale)
	}
	return NewMoney(d), nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(value string) Money {
	m, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return NewMoney(m.d.Add(other.d))
}

// Mul returns m multiplied by an integer quantity.
func (m Money) Mul(qty int) Money {
	return NewMoney(m.d.Mul(decimal.NewFromInt(int64(qty))))
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// Equal compares amounts numerically.
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// Cents returns the amount as an integer number of cents.
func (m Money) Cents() int64 {
	return m.d.Shift(MoneyScale).IntPart()
}

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

// MarshalJSON renders the amount as a JSON string to avoid float decoding on clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
