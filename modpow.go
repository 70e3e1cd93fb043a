package dhprime

import (
	"math/big"
)

// Returns (base^exponent) mod modulus, in the range [0, modulus).
//
// The exponent is consumed low bit first: the accumulator is multiplied by the
// running square of base whenever the current bit is set, and both are reduced
// after every multiplication so operands never exceed modulus^2. A modulus of
// one always yields zero; a zero modulus panics with a division by zero, as
// it does in math/big. Negative exponents are not supported.
func ModPow(base, exponent, modulus *big.Int) *big.Int {
	result := big.NewInt(1)
	if modulus.Cmp(one) == 0 {
		return result.SetInt64(0)
	}
	square := new(big.Int).Mod(base, modulus)
	bits := exponent.BitLen()
	for i := 0; i < bits; i++ {
		if exponent.Bit(i) == 1 {
			result.Mul(result, square)
			result.Mod(result, modulus)
		}
		if i+1 < bits {
			square.Mul(square, square)
			square.Mod(square, modulus)
		}
	}
	return result
}
