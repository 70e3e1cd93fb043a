package dhprime

// TrialDivision uses a naive, brute force approach to determine if n is prime
// by checking odd divisors up to the integer square root of n. It is exact and
// is useful as an independent check of IsPrime for values that fit in a
// uint64, but it is far too slow for Diffie-Hellman sized moduli.
func TrialDivision(n uint64) bool {
	l := logger.V(2).WithValues("n", n)
	l.Info("TrialDivision: entered")
	if n < 2 {
		l.Info("TrialDivision: exit", "result", false)
		return false
	}
	if n%2 == 0 {
		l.Info("TrialDivision: exit", "result", n == 2)
		return n == 2
	}
	for i := uint64(3); i <= n/i; i += 2 {
		if n%i == 0 {
			l.Info("TrialDivision: exit", "result", false, "divisor", i)
			return false
		}
	}
	l.Info("TrialDivision: exit", "result", true)
	return true
}
