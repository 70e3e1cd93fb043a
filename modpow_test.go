package dhprime

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"testing"
)

// ModPow must agree with the exact result computed by big.Int.Exp.
func TestModPow(t *testing.T) {
	rnd := mathrand.New(mathrand.NewSource(1))
	for i := 0; i < testLoopLimit; i++ {
		base := big.NewInt(rnd.Int63n(testLoopLimit) + 1)
		exponent := big.NewInt(rnd.Int63n(testLoopLimit) + 1)
		modulus := big.NewInt(rnd.Int63n(testLoopLimit) + 1)
		expected := new(big.Int).Exp(base, exponent, nil)
		expected.Mod(expected, modulus)
		if actual := ModPow(base, exponent, modulus); actual.Cmp(expected) != 0 {
			t.Errorf("ModPow(%v, %v, %v): expected %v got %v", base, exponent, modulus, expected, actual)
		}
	}
}

func TestModPow_EdgeCases(t *testing.T) {
	tests := []struct {
		name                    string
		base, exponent, modulus int64
		expected                int64
	}{
		{"modulus one", 7, 5, 1, 0},
		{"zero exponent", 7, 0, 13, 1},
		{"zero base", 0, 5, 13, 0},
		{"base larger than modulus", 100, 3, 7, 1},
		{"negative base", -2, 3, 7, 6},
		{"fermat", 3, 12, 13, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual := ModPow(big.NewInt(test.base), big.NewInt(test.exponent), big.NewInt(test.modulus))
			if actual.Int64() != test.expected {
				t.Errorf("Expected %d got %v", test.expected, actual)
			}
		})
	}
}

func TestModPow_ZeroModulusPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected a panic for a zero modulus")
		}
	}()
	_ = ModPow(big.NewInt(2), big.NewInt(3), new(big.Int))
}

// Operands in the Diffie-Hellman range.
func TestModPow_Large(t *testing.T) {
	for _, bits := range []int{512, 1024, 2048} {
		modulus, err := rand.Prime(rand.Reader, bits)
		if err != nil {
			t.Fatalf("Error generating %d-bit modulus: %v", bits, err)
		}
		base, err := rand.Int(rand.Reader, modulus)
		if err != nil {
			t.Fatalf("Error generating base: %v", err)
		}
		exponent, err := rand.Int(rand.Reader, modulus)
		if err != nil {
			t.Fatalf("Error generating exponent: %v", err)
		}
		expected := new(big.Int).Exp(base, exponent, modulus)
		if actual := ModPow(base, exponent, modulus); actual.Cmp(expected) != 0 {
			t.Errorf("%d bits: expected %x got %x", bits, expected, actual)
		}
	}
}
