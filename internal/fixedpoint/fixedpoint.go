// Package fixedpoint provides the scaled-integer money representation used
// throughout the engine.
//
// An Amount is an int64 carrying four implied fractional digits
// (Scale = 10,000), so 1.5 is stored as 15000. This keeps hot-path
// arithmetic exact, allocation-free and platform-independent:
//   - Conversion from decimal input truncates toward zero (no rounding)
//   - Addition and subtraction saturate at the int64 bounds instead of wrapping
//   - Rendering always shows exactly four fractional digits
//
// External input parses into shopspring/decimal and converts once at the
// boundary. Never float64 for money.
package fixedpoint

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of Amount units per whole currency unit.
const Scale = 10_000

// FracDigits is the number of implied fractional digits in an Amount.
const FracDigits = 4

// Amount is a monetary value with four implied fractional digits.
// The zero value renders as "0.0000".
type Amount int64

// Saturation bounds for Amount arithmetic.
const (
	Max Amount = math.MaxInt64
	Min Amount = math.MinInt64
)

var scaleDec = decimal.NewFromInt(Scale)

// FromDecimal converts d to an Amount, truncating toward zero any digits
// beyond the fourth fractional place: 1.23456 becomes 1.2345, -1.23456
// becomes -1.2345. A value whose scaled magnitude does not fit in int64
// converts to zero; amounts are untrusted input and the zero falls through
// to the same validation that drops any other degenerate value.
func FromDecimal(d decimal.Decimal) Amount {
	scaled := d.Mul(scaleDec).Truncate(0).BigInt()
	if !scaled.IsInt64() {
		return 0
	}
	return Amount(scaled.Int64())
}

// Decimal returns the exact decimal value of a. Sinks that store decimals
// (NUMERIC columns) convert through this rather than re-parsing String().
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -FracDigits)
}

// Add returns a+b, clamping to Max or Min on overflow.
func (a Amount) Add(b Amount) Amount {
	sum := a + b
	if b > 0 && sum < a {
		return Max
	}
	if b < 0 && sum > a {
		return Min
	}
	return sum
}

// Sub returns a-b, clamping to Max or Min on overflow.
func (a Amount) Sub(b Amount) Amount {
	diff := a - b
	if b < 0 && diff < a {
		return Max
	}
	if b > 0 && diff > a {
		return Min
	}
	return diff
}

// String renders a with exactly four fractional digits: "1.5000",
// "-0.0001". The magnitude is computed in uint64 so that Min formats
// correctly even though its absolute value overflows int64.
func (a Amount) String() string {
	mag := uint64(a)
	sign := ""
	if a < 0 {
		mag = -mag
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%04d", sign, mag/Scale, mag%Scale)
}

// MarshalJSON renders a as a quoted decimal string. Amounts travel as text
// on every external surface so the four-digit precision survives clients
// that parse JSON numbers as float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts the quoted decimal form produced by MarshalJSON,
// or a bare JSON number, converting with the same truncation rules as
// FromDecimal.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	*a = FromDecimal(d)
	return nil
}
