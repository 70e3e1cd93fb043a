package dhprime

import (
	"math/big"
)

// Jacobi computes the Jacobi symbol (a/n), returning -1, 0 or 1. The modulus n
// must be odd and positive; the result is undefined otherwise.
//
// Factors of two are stripped from a with Decompose and accounted for by the
// n mod 8 rule, then the arguments are swapped by quadratic reciprocity with
// the n mod 4 rule. n strictly decreases on every pass, as in Euclid's
// algorithm.
func Jacobi(a, n *big.Int) int {
	x := new(big.Int).Set(a)
	y := new(big.Int).Set(n)
	sign := 1
	for {
		// Checked before reducing x: a swap may leave y == 1 with x == 0 mod y.
		if y.Cmp(one) == 0 {
			return sign
		}
		x.Mod(x, y)
		if x.Sign() == 0 {
			return 0
		}
		if x.Cmp(one) == 0 {
			return sign
		}
		exponent, odd := Decompose(x)
		yMod8 := y.Bits()[0] & 7
		if exponent&1 == 1 && (yMod8 == 3 || yMod8 == 5) {
			sign = -sign
		}
		if yMod8&3 == 3 && odd.Bits()[0]&3 == 3 {
			sign = -sign
		}
		x, y = y, odd
	}
}
