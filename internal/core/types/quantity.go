// Package types provides value types shared by the ledger, allocations and reports.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity is a fixed-point material quantity with 4 decimal places (scale = 1e4).
//
// Stored as BIGINT (scaled integer); JSON is a plain number.
type Quantity int64

// QuantityScale is the number of Quantity units in one unit of measure.
const QuantityScale int64 = 10_000

// MaxQuantity is the largest representable quantity.
const MaxQuantity = Quantity(math.MaxInt64)

// NewQuantity returns a whole number of units.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// NewQuantityFromFloat64 rounds v to 4 decimal places.
func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// ParseQuantity parses a decimal string such as "12", "0.5" or "-3.25".
func ParseQuantity(s string) (Quantity, error) {
	return parseQuantityString(s)
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Add returns q+other. ok is false when the sum overflows.
func (q Quantity) Add(other Quantity) (sum Quantity, ok bool) {
	if (other > 0 && q > MaxQuantity-other) || (other < 0 && q < -MaxQuantity-other) {
		return 0, false
	}
	return q + other, true
}

// Min returns the smaller of q and other.
func (q Quantity) Min(other Quantity) Quantity {
	if other < q {
		return other
	}
	return q
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	intPart, frac, neg := q.split()
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// Format returns the shortest decimal form ("12", "8.5"), used in messages.
func (q Quantity) Format() string {
	intPart, frac, neg := q.split()
	s := strconv.FormatInt(intPart, 10)
	if frac != 0 {
		s += "." + strings.TrimRight(fmt.Sprintf("%04d", frac), "0")
	}
	if neg {
		return "-" + s
	}
	return s
}

func (q Quantity) split() (intPart, frac int64, neg bool) {
	v := int64(q)
	if v < 0 {
		neg = true
		v = -v
	}
	return v / QuantityScale, v % QuantityScale, neg
}

// MarshalJSON encodes Quantity as a JSON number with 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	parsed, err := parseQuantityString(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantityString(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	// Exponent form goes through float parsing and is rounded to scale.
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		return NewQuantityFromFloat64(f), nil
	}

	sign := int64(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	intStr, fracStr, _ := strings.Cut(s, ".")
	if intStr == "" {
		intStr = "0"
	}
	intPart, err := strconv.ParseInt(intStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity integer part: %w", err)
	}
	if intPart > math.MaxInt64/QuantityScale-1 {
		return 0, fmt.Errorf("quantity %s out of range", s)
	}

	// Pad right to 4 digits; extra digits are truncated.
	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	}
	fracStr += strings.Repeat("0", 4-len(fracStr))
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity fractional part: %w", err)
	}

	return Quantity(sign * (intPart*QuantityScale + frac)), nil
}
