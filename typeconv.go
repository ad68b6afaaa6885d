package ubjson
// conversion helpers for the unions of types a decoded value may have.

import (
	"fmt"
	"math/big"
)

// AsInt64 tries to represent a decoded value as int64.
//
// Integers within the int64 range decode as int64, while larger ones
// arrive as HighPrec. Code that accepts normal-range integers
// independently of their wire representation should use AsInt64.
func AsInt64(x any) (int64, error) {
	switch x := x.(type) {
	case int64:
		return x, nil
	case HighPrec:
		f, _, err := big.ParseFloat(string(x), 10, 128, big.ToNearestEven)
		if err != nil {
			return 0, fmt.Errorf("invalid high-precision decimal %q", string(x))
		}
		i, acc := f.Int64()
		if acc != big.Exact {
			return 0, fmt.Errorf("high-precision value outside of int64 range")
		}
		return i, nil
	}
	return 0, fmt.Errorf("expect int64|highprec; got %T", x)
}

// AsString tries to represent a decoded value as string.
//
// Both the char and string wire types decode as string; any other type
// does not succeed.
func AsString(x any) (string, error) {
	if s, ok := x.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expect string; got %T", x)
}

// AsFloat64 tries to represent a decoded numeric value as float64,
// accepting both float widths, integers and finite high-precision
// decimals.
func AsFloat64(x any) (float64, error) {
	switch x := x.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case HighPrec:
		if finite, ok := parseDecimal(string(x)); !ok || !finite {
			return 0, fmt.Errorf("not a finite high-precision decimal: %q", string(x))
		}
		f, _, err := big.ParseFloat(string(x), 10, 53, big.ToNearestEven)
		if err != nil {
			return 0, fmt.Errorf("invalid high-precision decimal %q", string(x))
		}
		f64, _ := f.Float64()
		return f64, nil
	}
	return 0, fmt.Errorf("expect float|int64|highprec; got %T", x)
}
