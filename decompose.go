package dhprime

import (
	"math/big"
)

// Decompose splits value into 2^exponent * oddPart with oddPart odd, using the
// trailing zero count so the result is exact at any size. Decompose(0) returns
// (0, 0); Decompose(1) is (0, 1) and Decompose(2) is (1, 1). Value must not be
// negative.
func Decompose(value *big.Int) (uint, *big.Int) {
	if value.Sign() == 0 {
		return 0, new(big.Int)
	}
	exponent := value.TrailingZeroBits()
	return exponent, new(big.Int).Rsh(value, exponent)
}
