package dhprime

import (
	"math/big"
)

// IsPerfectSquare reports whether value == k*k for some integer k.
//
// The integer square root is found with Heron's method on exact integers,
// starting from 2^ceil(bitLength/2) which is never below the true root. From
// that start the iterates decrease monotonically to floor(sqrt(value)), so the
// loop stops as soon as an iterate fails to decrease. Zero is a perfect
// square; negative values are not.
func IsPerfectSquare(value *big.Int) bool {
	switch value.Sign() {
	case -1:
		return false
	case 0:
		return true
	}
	x := new(big.Int).Lsh(one, uint(value.BitLen()+1)/2)
	next := new(big.Int)
	for {
		next.Quo(value, x)
		next.Add(next, x)
		next.Rsh(next, 1)
		if next.Cmp(x) >= 0 {
			break
		}
		x, next = next, x
	}
	return x.Mul(x, x).Cmp(value) == 0
}
