package dhprime

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// MillerRabin reports whether candidate survives iterations rounds of the
// Miller-Rabin test. A false result proves candidate composite; a true result
// means probably prime, wrong for a composite with probability at most
// 4^-iterations.
//
// Every round uses a fresh witness drawn uniformly from [2, candidate-2] and
// distinct from all earlier witnesses of the same call. When the witness space
// is smaller than iterations, every witness is used once. Candidates 1, 2 and
// 3 return true without drawing witnesses; non-positive candidates return
// false.
func (t *Tester) MillerRabin(candidate *big.Int, iterations int) bool {
	logger := t.log().V(1).WithValues("bitLen", candidate.BitLen(), "iterations", iterations)
	logger.Info("MillerRabin: enter")
	if candidate.Sign() <= 0 {
		logger.Info("MillerRabin: exit", "result", false)
		return false
	}
	if candidate.Cmp(three) <= 0 {
		logger.Info("MillerRabin: exit", "result", true)
		return true
	}
	minusOne := new(big.Int).Sub(candidate, one)
	exponent, oddPart := Decompose(minusOne)

	// Witnesses lie in [2, candidate-2]; rand.Int draws from [0, span).
	span := new(big.Int).Sub(candidate, three)
	if span.IsInt64() && span.Int64() < int64(iterations) {
		iterations = int(span.Int64())
	}
	used := map[string]struct{}{}
	for round := 0; round < iterations; round++ {
		witness := t.drawWitness(span, used)
		if t.observer != nil {
			t.observer(witness)
		}
		if !t.inconclusive(candidate, minusOne, witness, oddPart, exponent) {
			logger.Info("MillerRabin: exit", "result", false, "round", round)
			return false
		}
	}
	logger.Info("MillerRabin: exit", "result", true)
	return true
}

// Returns a witness in [2, span+1] that is not already in used, and records it.
func (t *Tester) drawWitness(span *big.Int, used map[string]struct{}) *big.Int {
	for {
		witness, err := rand.Int(t.random, span)
		if err != nil {
			panic(errors.Wrap(err, "rand.Int failure while drawing Miller-Rabin witness"))
		}
		witness.Add(witness, two)
		key := string(witness.Bytes())
		if _, seen := used[key]; seen {
			t.log().V(2).Info("Witness already used; redrawing", "witness", witness)
			continue
		}
		used[key] = struct{}{}
		return witness
	}
}

// Returns true when witness fails to prove candidate composite, given
// candidate-1 == 2^exponent * oddPart.
func (t *Tester) inconclusive(candidate, minusOne, witness, oddPart *big.Int, exponent uint) bool {
	x := ModPow(witness, oddPart, candidate)
	if x.Cmp(one) == 0 || x.Cmp(minusOne) == 0 {
		return true
	}
	for i := uint(1); i < exponent; i++ {
		x.Mul(x, x)
		x.Mod(x, candidate)
		if x.Cmp(minusOne) == 0 {
			return true
		}
		if x.Cmp(one) == 0 {
			// A non-trivial square root of one.
			return false
		}
	}
	return false
}
