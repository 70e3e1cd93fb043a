package search

import (
	"math"
	"math/big"

	"github.com/memes/dhprime"
)

// The odd primes below this bound are used to discard candidates before the
// more expensive probabilistic test.
const smallPrimeLimit = 1024

// sieve holds the odd primes below smallPrimeLimit grouped so that the product
// of each group fits in a uint64. A candidate is reduced once per group with a
// single big.Int operation and the remainder is then tested against each
// member with native arithmetic.
type sieve struct {
	groups   [][]uint64
	products []*big.Int
}

var defaultSieve = newSieve(smallPrimeLimit)

func newSieve(limit uint64) *sieve {
	s := &sieve{}
	var group []uint64
	product := uint64(1)
	for n := uint64(3); n < limit; n += 2 {
		if !dhprime.TrialDivision(n) {
			continue
		}
		if product > math.MaxUint64/n {
			s.add(group, product)
			group, product = nil, 1
		}
		group = append(group, n)
		product *= n
	}
	if len(group) > 0 {
		s.add(group, product)
	}
	return s
}

func (s *sieve) add(group []uint64, product uint64) {
	s.groups = append(s.groups, group)
	s.products = append(s.products, new(big.Int).SetUint64(product))
}

// Reports whether candidate is divisible by one of the sieve primes. Values
// small enough to be a sieve prime themselves are never rejected, and even
// values are left to the caller.
func (s *sieve) hasSmallFactor(candidate *big.Int) bool {
	if candidate.BitLen() <= 11 {
		return false
	}
	remainder := new(big.Int)
	for i, product := range s.products {
		r := remainder.Mod(candidate, product).Uint64()
		for _, prime := range s.groups[i] {
			if r%prime == 0 {
				return true
			}
		}
	}
	return false
}
