// Package moneypkg provides the fixed-point money value used for amounts and balances.
package moneypkg

import (
	"database/sql/driver"
	"errors"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Money value carries.
const Scale = 2

// MaxIntegerDigits bounds the integer part of amounts and balances to what a
// NUMERIC(19,2) column holds.
const MaxIntegerDigits = 17

// maxDigits bounds the coefficient and negative exponent of a value before any rescaling,
// so checks on inputs like "1e8000000" stay cheap.
const maxDigits = 40

var (
	// ErrInvalidAmount indicates an amount that is not positive or has more than Scale fractional digits.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeBalance indicates a balance below zero.
	ErrNegativeBalance = errors.New("negative balance")
)

// Money is a decimal value with a fixed scale of two fractional digits.
//
// The zero value is 0.00, which is a valid balance but not a valid amount.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// NewAmount returns Money usable as an operation amount.
func NewAmount(d decimal.Decimal) (Money, error) {
	m := Money{d: d}
	if err := m.ValidateAmount(); err != nil {
		return Money{}, err
	}

	return m, nil
}

// ParseAmount parses s and validates it as an operation amount.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}

	return NewAmount(d)
}

// MustParseAmount is like ParseAmount but panics on error. Intended for tests and constants.
func MustParseAmount(s string) Money {
	m, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}

	return m
}

// NewBalance returns Money usable as a balance: zero or positive, at most two fractional digits.
func NewBalance(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrNegativeBalance
	}

	if !inRange(d) || !hasScale(d) {
		return Money{}, ErrInvalidAmount
	}

	return Money{d: d}, nil
}

// FromDecimal wraps d without validation. Used for sums and values read back from storage.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// ValidateAmount reports whether m is strictly positive with at most two fractional digits
// and at most MaxIntegerDigits integer digits.
func (m Money) ValidateAmount() error {
	if m.d.Sign() <= 0 || !inRange(m.d) || !hasScale(m.d) {
		return ErrInvalidAmount
	}

	return nil
}

// ValidateBalance reports whether m is usable as a balance.
func (m Money) ValidateBalance() error {
	_, err := NewBalance(m.d)
	return err
}

// inRange reports whether d has at most MaxIntegerDigits integer digits. It looks at the
// coefficient and exponent only and never rescales d.
func inRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -maxDigits || exp > MaxIntegerDigits {
		return false
	}

	c := d.Coefficient()
	if c.Sign() == 0 {
		return true
	}

	// 10^maxDigits needs fewer than 4*maxDigits bits.
	if c.BitLen() > 4*maxDigits {
		return false
	}

	digits := len(c.Abs(c).String())
	if digits > maxDigits {
		return false
	}

	return digits+exp <= MaxIntegerDigits
}

func hasScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// IsZero reports whether m == 0.
func (m Money) IsZero() bool { return m.d.IsZero() }

// Cmp compares m and o: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Equal reports whether m and o hold the same value regardless of representation.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// String renders m with exactly two fractional digits, e.g. "100.00".
func (m Money) String() string { return m.d.StringFixed(Scale) }

// MarshalJSON encodes m as a quoted fixed-scale string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal numbers.
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.d.UnmarshalJSON(b)
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(value interface{}) error {
	return m.d.Scan(value)
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
