// Package dhprime decides, with a caller-chosen error probability, whether an
// arbitrary-precision integer is prime. It is intended to sit inside a loop
// searching for Diffie-Hellman moduli of hundreds to thousands of bits.
//
// IsPrime combines a Miller-Rabin witness run with an exact perfect-square
// rejection. A composite survives n Miller-Rabin rounds with probability at
// most 4^-n; a prime is never reported as composite. The bound only holds if
// the witnesses of a run are independent and unpredictable, so they are drawn
// from crypto/rand and never repeated within a single call. Substituting a
// seeded or shared generator through WithRandom silently weakens the bound.
//
// Jacobi is provided for Lucas-style extensions and is not consulted by
// IsPrime.
package dhprime

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/go-logr/logr"
)

// The number of Miller-Rabin rounds used by IsPrime when the caller does not
// ask for a specific count.
const DefaultIterations = 96

var (
	// Logger to use in this package; default is a no-op logger.
	logger = logr.Discard()

	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

// Change the logger instance used by package level functions.
func SetLogger(l logr.Logger) {
	logger = l
}

// Tester runs Miller-Rabin and the composite IsPrime decision with a
// configurable random source. A Tester holds no state between calls and is
// safe for concurrent use as long as its random source is.
type Tester struct {
	// The source of witnesses; defaults to crypto/rand.Reader.
	random io.Reader
	// Optional hook invoked with every witness drawn by MillerRabin.
	observer func(*big.Int)
	// An explicit logger; when unset the package logger is used.
	logger *logr.Logger
}

// Defines the function signature for Tester options.
type TesterOption func(*Tester)

// Create a new Tester and apply any options.
func NewTester(options ...TesterOption) *Tester {
	tester := &Tester{
		random: rand.Reader,
	}
	for _, option := range options {
		option(tester)
	}
	return tester
}

// Draw witnesses from the supplied reader. The reader must be a
// cryptographically secure source for the error bound to hold.
func WithRandom(random io.Reader) TesterOption {
	return func(t *Tester) {
		if random != nil {
			t.random = random
		}
	}
}

// Invoke fn with each witness as it is used. The value passed to fn must not
// be modified.
func WithWitnessObserver(fn func(witness *big.Int)) TesterOption {
	return func(t *Tester) {
		t.observer = fn
	}
}

// Use the supplied logger instead of the package logger.
func WithLogger(l logr.Logger) TesterOption {
	return func(t *Tester) {
		t.logger = &l
	}
}

func (t *Tester) log() logr.Logger {
	if t.logger != nil {
		return *t.logger
	}
	return logger
}

var defaultTester = NewTester()

// MillerRabin reports whether candidate survives iterations rounds of the
// Miller-Rabin test using witnesses from crypto/rand. See Tester.MillerRabin.
func MillerRabin(candidate *big.Int, iterations int) bool {
	return defaultTester.MillerRabin(candidate, iterations)
}

// IsPrime reports whether candidate is probably prime. See Tester.IsPrime.
func IsPrime(candidate *big.Int, iterations int) bool {
	return defaultTester.IsPrime(candidate, iterations)
}
