package ubjson

import (
	"math/big"
	"strings"
)

// HighPrec is an arbitrary-precision decimal in its canonical decimal
// string form, e.g. HighPrec("3.14159e-10"). It round-trips through the
// high-precision ('H') wire type without loss.
//
// The textual specials understood by decimal libraries (NaN, sNaN,
// Infinity and their signed forms) are valid HighPrec values but are not
// finite; the encoder emits them as null, mirroring how non-finite
// decimals are handled on the wire.
type HighPrec string

// parseDecimal classifies the decimal string s. ok reports whether s is a
// well-formed decimal at all; finite whether it denotes a finite number.
// Numeric parsing is delegated to math/big.
func parseDecimal(s string) (finite, ok bool) {
	t := s
	if len(t) > 0 && (t[0] == '+' || t[0] == '-') {
		t = t[1:]
	}
	switch l := strings.ToLower(t); {
	case l == "inf" || l == "infinity":
		return false, true
	case strings.HasPrefix(l, "nan") && digitsOnly(l[3:]):
		return false, true
	case strings.HasPrefix(l, "snan") && digitsOnly(l[4:]):
		return false, true
	}
	// big.Float overflow to ±Inf (astronomic exponents) still denotes a
	// finite decimal, so only the parse result matters here.
	_, _, err := big.ParseFloat(s, 10, 64, big.ToNearestEven)
	if err != nil {
		return false, false
	}
	return true, true
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
