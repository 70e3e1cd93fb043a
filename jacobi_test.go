package dhprime

import (
	"fmt"
	"math/big"
	mathrand "math/rand"
	"testing"
)

func TestJacobi_KnownValues(t *testing.T) {
	tests := []struct {
		a, n     int64
		expected int
	}{
		{1236, 20003, 1},
		{5, 3439601197, -1},
		{42, 2005, 1},
		{2462, 177541, -1},
		{2, 3, -1},
		{2, 7, 1},
		{3, 3, 0},
		{0, 1, 1},
		{5, 1, 1},
		{-1, 7, -1},
		{30, 57, 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("(%d/%d)", test.a, test.n), func(t *testing.T) {
			if actual := Jacobi(big.NewInt(test.a), big.NewInt(test.n)); actual != test.expected {
				t.Errorf("Expected %d got %d", test.expected, actual)
			}
		})
	}
}

// Jacobi must agree with the math/big implementation for random odd moduli.
func TestJacobi_AgreesWithMathBig(t *testing.T) {
	rnd := mathrand.New(mathrand.NewSource(2))
	for i := 0; i < testLoopLimit; i++ {
		a := new(big.Int).Rand(rnd, new(big.Int).Lsh(one, 256))
		n := new(big.Int).Rand(rnd, new(big.Int).Lsh(one, 192))
		n.SetBit(n, 0, 1)
		expected := big.Jacobi(a, n)
		if actual := Jacobi(a, n); actual != expected {
			t.Errorf("Jacobi(%v, %v): expected %d got %d", a, n, expected, actual)
		}
	}
}

func TestJacobi_DoesNotModifyInput(t *testing.T) {
	a, n := big.NewInt(1236), big.NewInt(20003)
	_ = Jacobi(a, n)
	if a.Int64() != 1236 || n.Int64() != 20003 {
		t.Errorf("Inputs were modified: %v %v", a, n)
	}
}
