package dhprime

import (
	"math/big"
)

// IsPrime reports whether candidate is probably prime.
//
// Even candidates are decided directly. Odd candidates must pass iterations
// Miller-Rabin rounds and must not be perfect squares; the square check is a
// cheap independent rejection, not a substitute for a Lucas test. An
// iterations value below one selects DefaultIterations, and the count is
// capped at candidate-1 for very small candidates.
func (t *Tester) IsPrime(candidate *big.Int, iterations int) bool {
	logger := t.log().V(1).WithValues("bitLen", candidate.BitLen(), "iterations", iterations)
	logger.Info("IsPrime: enter")
	if candidate.Bit(0) == 0 {
		result := candidate.Cmp(two) == 0
		logger.Info("IsPrime: exit", "result", result)
		return result
	}
	if iterations < 1 {
		iterations = DefaultIterations
	}
	limit := new(big.Int).Sub(candidate, one)
	if limit.IsInt64() && limit.Int64() < int64(iterations) {
		iterations = int(limit.Int64())
	}
	result := t.MillerRabin(candidate, iterations) && !IsPerfectSquare(candidate)
	logger.Info("IsPrime: exit", "result", result)
	return result
}
