package search

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/memes/dhprime"
	"golang.org/x/sync/errgroup"
)

// The smallest bit length accepted by Safe.
const MinSafePrimeBits = 6

var three = big.NewInt(3)

// SafePrime holds a safe prime p = 2q + 1 together with its Sophie Germain
// prime q. A safe prime modulus gives a Diffie-Hellman group whose only
// subgroups have order 1, 2, q or 2q.
type SafePrime struct {
	q,
	p *big.Int // p = 2q + 1
}

// Returns the Sophie Germain prime q.
func (s *SafePrime) Prime() *big.Int {
	return s.q
}

// Returns the safe prime p = 2q + 1.
func (s *SafePrime) SafePrime() *big.Int {
	return s.p
}

// Validate reports whether q and p are both probably prime and p = 2q + 1.
func (s *SafePrime) Validate(iterations int) bool {
	if s == nil || s.q == nil || s.p == nil {
		return false
	}
	expected := new(big.Int).Lsh(s.q, 1)
	expected.Add(expected, one)
	return expected.Cmp(s.p) == 0 &&
		dhprime.IsPrime(s.q, iterations) &&
		dhprime.IsPrime(s.p, iterations)
}

// Safe searches for a safe prime p of exactly bits bits using concurrency
// workers that race each other; the first result wins and the remaining
// workers are cancelled. The reader is shared by all workers and must be safe
// for concurrent use, as crypto/rand.Reader is.
//
// Each worker draws an odd q of bits-1 bits with the top two bits set, skips
// q = 1 (mod 3) since p would then be a multiple of 3, discards q or p with a
// small factor, and only then runs IsPrime on q followed by p.
func Safe(ctx context.Context, random io.Reader, bits, iterations, concurrency int) (*SafePrime, error) {
	l := logger.V(1).WithValues("bits", bits, "iterations", iterations, "concurrency", concurrency)
	l.Info("Safe: entered")
	if bits < MinSafePrimeBits {
		return nil, fmt.Errorf("%w: %d < %d", ErrBitLength, bits, MinSafePrimeBits)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	found := make(chan *SafePrime, concurrency)
	g, gctx := errgroup.WithContext(searchCtx)
	for worker := 0; worker < concurrency; worker++ {
		worker := worker
		g.Go(func() error {
			result, err := safeWorker(gctx, random, bits, iterations)
			if err != nil {
				return err
			}
			l.V(1).Info("Worker found safe prime", "worker", worker)
			found <- result
			cancel()
			return nil
		})
	}
	err := g.Wait()
	select {
	case result := <-found:
		l.Info("Safe: exit", "p", result.p)
		return result, nil
	default:
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	return nil, err
}

func safeWorker(ctx context.Context, random io.Reader, bits, iterations int) (*SafePrime, error) {
	p := new(big.Int)
	mod3 := new(big.Int)
	for {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		q, err := randomOdd(random, bits-1)
		if err != nil {
			return nil, err
		}
		if mod3.Mod(q, three).Cmp(one) == 0 {
			continue
		}
		p.Lsh(q, 1)
		p.Add(p, one)
		if defaultSieve.hasSmallFactor(q) || defaultSieve.hasSmallFactor(p) {
			continue
		}
		if !dhprime.IsPrime(q, iterations) || !dhprime.IsPrime(p, iterations) {
			continue
		}
		return &SafePrime{q: q, p: new(big.Int).Set(p)}, nil
	}
}
