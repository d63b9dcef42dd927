package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a currency amount in integer minor units. All core arithmetic and
// comparison happens on this type; decimal values exist only at the JSON
// boundary.
type Cents int64

// Epsilon is the smallest balance still considered owed. Totals at or below
// one cent are treated as settled when filtering aggregates.
const Epsilon Cents = 1

var hundred = decimal.NewFromInt(100)

// CentsFromDecimal converts a decimal currency value to minor units,
// rounding to the nearest cent.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// CentsFromFloat converts a floating-point currency value to minor units.
func CentsFromFloat(f float64) Cents {
	return CentsFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount as a decimal currency value with two places.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a plain decimal number, e.g. 12.50.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or quoted decimal string and converts
// it to minor units.
func (c *Cents) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*c = CentsFromDecimal(d)
	return nil
}
