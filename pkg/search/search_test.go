package search_test

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/memes/dhprime"
	"github.com/memes/dhprime/pkg/search"
	"github.com/otiai10/primes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrimeLimit = 5000
)

// Next must walk the reference prime list exactly for every start below the
// last reference prime.
func TestNext(t *testing.T) {
	ctx := context.Background()
	list := primes.Until(testPrimeLimit).List()
	require.NotEmpty(t, list)
	index := 0
	for start := int64(-2); start < list[len(list)-1]; start++ {
		for list[index] <= start {
			index++
		}
		actual, err := search.Next(ctx, big.NewInt(start), dhprime.DefaultIterations)
		require.NoError(t, err)
		assert.Equal(t, list[index], actual.Int64(), "start=%d", start)
	}
}

func TestNext_Large(t *testing.T) {
	ctx := context.Background()
	// 2^127-1 is prime and 2^127-1 + 2 is not, so the next prime after
	// 2^127-2 must be the Mersenne prime itself.
	mersenne := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	start := new(big.Int).Sub(mersenne, big.NewInt(1))
	actual, err := search.Next(ctx, start, dhprime.DefaultIterations)
	require.NoError(t, err)
	assert.Equal(t, 0, mersenne.Cmp(actual), "expected %v got %v", mersenne, actual)

	start, err = rand.Prime(rand.Reader, 512)
	require.NoError(t, err)
	actual, err = search.Next(ctx, start, dhprime.DefaultIterations)
	require.NoError(t, err)
	assert.Equal(t, 1, actual.Cmp(start))
	assert.True(t, actual.ProbablyPrime(20))
	// Every odd value strictly between start and actual must be composite.
	for v := new(big.Int).Add(start, big.NewInt(2)); v.Cmp(actual) < 0; v.Add(v, big.NewInt(2)) {
		assert.False(t, v.ProbablyPrime(20), "skipped prime %v", v)
	}
}

func TestNext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := search.Next(ctx, big.NewInt(1000), dhprime.DefaultIterations)
	assert.True(t, errors.Is(err, search.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRandom(t *testing.T) {
	ctx := context.Background()
	for _, bits := range []int{2, 3, 8, 17, 64, 256, 512} {
		t.Run(fmt.Sprintf("bits=%d", bits), func(t *testing.T) {
			actual, err := search.Random(ctx, rand.Reader, bits, dhprime.DefaultIterations)
			require.NoError(t, err)
			assert.Equal(t, bits, actual.BitLen())
			assert.True(t, actual.ProbablyPrime(20), "expected %v to be prime", actual)
			if bits >= 2 {
				assert.Equal(t, uint(1), actual.Bit(bits-2), "second most significant bit should be set")
			}
		})
	}
}

func TestRandom_BitLength(t *testing.T) {
	_, err := search.Random(context.Background(), rand.Reader, 1, dhprime.DefaultIterations)
	assert.True(t, errors.Is(err, search.ErrBitLength))
}

func TestRandom_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := search.Random(ctx, rand.Reader, 1024, dhprime.DefaultIterations)
	assert.True(t, errors.Is(err, search.ErrCancelled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSafe(t *testing.T) {
	ctx := context.Background()
	for _, bits := range []int{6, 16, 64, 128} {
		t.Run(fmt.Sprintf("bits=%d", bits), func(t *testing.T) {
			sgp, err := search.Safe(ctx, rand.Reader, bits, dhprime.DefaultIterations, 2)
			require.NoError(t, err)
			require.NotNil(t, sgp)
			assert.True(t, sgp.Validate(dhprime.DefaultIterations))
			assert.Equal(t, bits, sgp.SafePrime().BitLen())
			assert.True(t, sgp.Prime().ProbablyPrime(20))
			assert.True(t, sgp.SafePrime().ProbablyPrime(20))
		})
	}
}

func TestSafe_BitLength(t *testing.T) {
	_, err := search.Safe(context.Background(), rand.Reader, 5, dhprime.DefaultIterations, 1)
	assert.True(t, errors.Is(err, search.ErrBitLength))
}

func TestSafe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := search.Safe(ctx, rand.Reader, 2048, dhprime.DefaultIterations, 4)
	assert.True(t, errors.Is(err, search.ErrCancelled))
}

func TestSafePrime_ValidateNil(t *testing.T) {
	var sgp *search.SafePrime
	assert.False(t, sgp.Validate(dhprime.DefaultIterations))
	assert.False(t, (&search.SafePrime{}).Validate(dhprime.DefaultIterations))
}
