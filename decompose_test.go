package dhprime

import (
	"fmt"
	"math/big"
	"testing"
)

const (
	testLoopLimit = 10000
)

func testDecompose(t *testing.T, value *big.Int) {
	t.Helper()
	exponent, oddPart := Decompose(value)
	actual := new(big.Int).Lsh(oddPart, exponent)
	if actual.Cmp(value) != 0 {
		t.Errorf("Decompose(%v): 2^%d * %v = %v", value, exponent, oddPart, actual)
	}
	if value.Sign() != 0 && oddPart.Bit(0) != 1 {
		t.Errorf("Decompose(%v): odd part %v is even", value, oddPart)
	}
}

// Every value in [0, testLoopLimit) must round trip through 2^e * m.
func TestDecompose(t *testing.T) {
	for i := int64(0); i < testLoopLimit; i++ {
		testDecompose(t, big.NewInt(i))
	}
}

func TestDecompose_SpecialCases(t *testing.T) {
	tests := []struct {
		value    int64
		exponent uint
		oddPart  int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 1, 1},
		{3, 0, 3},
		{96, 5, 3},
		{1 << 40, 40, 1},
	}
	for _, test := range tests {
		exponent, oddPart := Decompose(big.NewInt(test.value))
		if exponent != test.exponent || oddPart.Int64() != test.oddPart {
			t.Errorf("Decompose(%d): expected (%d, %d) got (%d, %v)", test.value, test.exponent, test.oddPart, exponent, oddPart)
		}
	}
}

// Values well beyond 64 bits must decompose exactly.
func TestDecompose_Large(t *testing.T) {
	odd, _ := new(big.Int).SetString("c90fdaa22168c234c4c6628b80dc1cd129024e088a67cc74020bbea63b139b23", 16)
	for _, shift := range []uint{0, 1, 63, 64, 65, 1000, 4095} {
		value := new(big.Int).Lsh(odd, shift)
		t.Run(fmt.Sprintf("shift=%d", shift), func(t *testing.T) {
			exponent, oddPart := Decompose(value)
			if exponent != shift {
				t.Errorf("Expected exponent %d got %d", shift, exponent)
			}
			if oddPart.Cmp(odd) != 0 {
				t.Errorf("Expected odd part %x got %x", odd, oddPart)
			}
			testDecompose(t, value)
		})
	}
}

func TestDecompose_DoesNotModifyInput(t *testing.T) {
	value := big.NewInt(48)
	_, _ = Decompose(value)
	if value.Int64() != 48 {
		t.Errorf("Input was modified: %v", value)
	}
}
