// Package bignum provides decimal-string arithmetic for stake values that
// exceed 64 bits, where a native INCRBY-style counter command would overflow.
package bignum

import "math/big"

// Add returns the decimal-string sum of base and delta. Missing or empty
// operands are treated as zero, so it is safe to call on a freshly reset
// counter.
func Add(base, delta string) string {
	b := ParseOrZero(base)
	d := ParseOrZero(delta)
	return b.Add(b, d).String()
}

// ParseOrZero parses a decimal string into a big.Int, returning zero for an
// empty or malformed value rather than failing: cache fields are read back
// as plain strings and a missing attribute must behave like zero.
func ParseOrZero(value string) *big.Int {
	if value == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// IsPositive reports whether the decimal string represents a value > 0.
func IsPositive(value string) bool {
	return ParseOrZero(value).Sign() > 0
}
