// Package search walks candidate integers looking for probable primes suitable
// as Diffie-Hellman moduli. Every verdict comes from dhprime.IsPrime; this
// package only chooses which candidates to ask about and when to stop.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/go-logr/logr"
	"github.com/memes/dhprime"
)

var (
	// Logger to use in this package; default is a no-op logger.
	logger = logr.Discard()

	// ErrCancelled is returned, wrapping the context error, when the context
	// is done before a prime is found.
	ErrCancelled = errors.New("prime search cancelled")
	// ErrBitLength is returned when the requested size cannot hold a
	// candidate of the requested form.
	ErrBitLength = errors.New("bit length too small")

	one = big.NewInt(1)
	two = big.NewInt(2)
)

const (
	// The smallest bit length accepted by Random.
	MinRandomBits = 2
	// The number of odd steps Random takes from a drawn candidate before
	// drawing a fresh one.
	maxRandomSteps = 1 << 12
)

// Change the logger instance used by this package.
func SetLogger(l logr.Logger) {
	logger = l
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

// Next returns the smallest probable prime strictly greater than start, or 2
// if start is less than 2. The context is checked before each candidate.
func Next(ctx context.Context, start *big.Int, iterations int) (*big.Int, error) {
	l := logger.V(1).WithValues("start", start, "iterations", iterations)
	l.Info("Next: entered")
	if start.Cmp(two) < 0 {
		l.Info("Next: exit", "result", 2)
		return big.NewInt(2), nil
	}
	next := new(big.Int).Add(start, one)
	if next.Bit(0) == 0 {
		next.Add(next, one)
	}
	for ; ; next.Add(next, two) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(ctx)
		}
		if defaultSieve.hasSmallFactor(next) {
			continue
		}
		if dhprime.IsPrime(next, iterations) {
			break
		}
	}
	l.Info("Next: exit", "result", next)
	return next, nil
}

// Random returns a probable prime of exactly bits bits read from random, with
// the two most significant bits set so that the product of two such primes is
// never a bit short. The context is checked before each candidate.
func Random(ctx context.Context, random io.Reader, bits, iterations int) (*big.Int, error) {
	l := logger.V(1).WithValues("bits", bits, "iterations", iterations)
	l.Info("Random: entered")
	if bits < MinRandomBits {
		return nil, fmt.Errorf("%w: %d < %d", ErrBitLength, bits, MinRandomBits)
	}
	for {
		candidate, err := randomOdd(random, bits)
		if err != nil {
			return nil, err
		}
		for step := 0; step < maxRandomSteps && candidate.BitLen() == bits; step++ {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(ctx)
			}
			if !defaultSieve.hasSmallFactor(candidate) && dhprime.IsPrime(candidate, iterations) {
				l.Info("Random: exit", "result", candidate)
				return candidate, nil
			}
			candidate.Add(candidate, two)
		}
		l.V(1).Info("Exhausted steps from candidate; drawing another")
	}
}

// Returns an odd integer of exactly bits bits with the top two bits set. For
// bits == 1 the result is 1.
func randomOdd(random io.Reader, bits int) (*big.Int, error) {
	b := uint(bits % 8)
	if b == 0 {
		b = 8
	}
	bytes := make([]byte, (bits+7)/8)
	if _, err := io.ReadFull(random, bytes); err != nil {
		return nil, fmt.Errorf("failed to read random candidate: %w", err)
	}
	// Clear bits in the first byte so the candidate has at most bits bits.
	bytes[0] &= uint8(int(1<<b) - 1)
	if b >= 2 {
		bytes[0] |= 3 << (b - 2)
	} else {
		bytes[0] |= 1
		if len(bytes) > 1 {
			bytes[1] |= 0x80
		}
	}
	bytes[len(bytes)-1] |= 1
	return new(big.Int).SetBytes(bytes), nil
}
