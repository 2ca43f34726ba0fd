// Package money provides an exact decimal amount for prices, taxes and totals.
package money

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/fishnet/internal/domain/validate"
)

const (
	// MaxScale is the number of fractional digits the storage layer keeps
	// (NUMERIC(18,4)). Inputs needing more digits are rejected as lossy.
	MaxScale = 4
	// maxIntDigits bounds the integer part to what NUMERIC(18,4) can hold.
	maxIntDigits = 14
)

// ErrInvalidAmount is returned for non-numeric, non-finite or lossy amounts.
var ErrInvalidAmount = validate.New("invalid amount")

var limit = decimal.New(1, maxIntDigits)

// Money is an exact decimal amount. The zero value is 0.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// Parse reads a decimal string or the text of a JSON number.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if !d.Round(MaxScale).Equal(d) {
		return Money{}, ErrInvalidAmount
	}
	if d.Abs().GreaterThanOrEqual(limit) {
		return Money{}, ErrInvalidAmount
	}
	if d.Exponent() < -MaxScale {
		d = d.Round(MaxScale)
	}
	return Money{d: d}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(errors.Wrapf(err, "money: parse %q", s))
	}
	return m
}

// FromDecimal converts a decimal read from storage.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromInt returns a whole amount.
func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// Decimal exposes the underlying value for storage adapters.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsZero() bool { return m.d.IsZero() }

// InRange reports whether the amount fits the storage precision.
func (m Money) InRange() bool { return m.d.Abs().LessThan(limit) }

// Float64 returns the nearest float64. Only for presentation.
func (m Money) Float64() float64 { return m.d.InexactFloat64() }

// String renders the amount with at least two fractional digits.
func (m Money) String() string {
	s := m.d.String()
	scale := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		scale = len(s) - i - 1
	}
	if scale < 2 {
		scale = 2
	}
	return m.d.StringFixed(int32(scale))
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return ErrInvalidAmount
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Sum adds all amounts.
func Sum(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
