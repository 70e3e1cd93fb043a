package v1

import (
	"errors"
	"math/big"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestIsPrimeRequest(t *testing.T) {
	t.Parallel()
	candidate, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	tests := []struct {
		name       string
		iterations int
		expected   int
	}{
		{name: "default", iterations: 0, expected: 0},
		{name: "negative", iterations: -5, expected: 0},
		{name: "explicit", iterations: 40, expected: 40},
	}
	for _, test := range tests {
		tst := test
		t.Run(tst.name, func(t *testing.T) {
			t.Parallel()
			request, err := ParseIsPrimeRequest(NewIsPrimeRequest(candidate, tst.iterations))
			if err != nil {
				t.Fatalf("ParseIsPrimeRequest returned an error: %v", err)
			}
			if request.Candidate.Cmp(candidate) != 0 {
				t.Errorf("Candidate mismatch: expected %s got %s", candidate, request.Candidate)
			}
			if request.Iterations != tst.expected {
				t.Errorf("Iterations mismatch: expected %d got %d", tst.expected, request.Iterations)
			}
		})
	}
}

func TestParseIsPrimeRequest_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		fields   map[string]interface{}
		expected error
	}{
		{name: "missing", fields: map[string]interface{}{}, expected: ErrMissingField},
		{name: "garbage", fields: map[string]interface{}{CandidateField: "12ab"}, expected: ErrInvalidInteger},
		{name: "fraction", fields: map[string]interface{}{CandidateField: 7.5}, expected: ErrInvalidInteger},
		{name: "bool", fields: map[string]interface{}{CandidateField: true}, expected: ErrInvalidInteger},
		{name: "iterations", fields: map[string]interface{}{CandidateField: "7", IterationsField: "ten"}, expected: ErrInvalidInteger},
	}
	for _, test := range tests {
		tst := test
		t.Run(tst.name, func(t *testing.T) {
			t.Parallel()
			msg, err := structpb.NewStruct(tst.fields)
			if err != nil {
				t.Fatalf("Failed to build message: %v", err)
			}
			if _, err := ParseIsPrimeRequest(msg); !errors.Is(err, tst.expected) {
				t.Errorf("Expected error %v, got %v", tst.expected, err)
			}
		})
	}
}

func TestParseIsPrimeRequest_Number(t *testing.T) {
	t.Parallel()
	msg, err := structpb.NewStruct(map[string]interface{}{CandidateField: 104729, IterationsField: 12})
	if err != nil {
		t.Fatalf("Failed to build message: %v", err)
	}
	request, err := ParseIsPrimeRequest(msg)
	if err != nil {
		t.Fatalf("ParseIsPrimeRequest returned an error: %v", err)
	}
	if request.Candidate.Int64() != 104729 || request.Iterations != 12 {
		t.Errorf("Unexpected request: %s %d", request.Candidate, request.Iterations)
	}
}

func TestJacobiRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a        int64
		n        int64
		expected error
	}{
		{a: 2, n: 3},
		{a: -1, n: 7},
		{a: 30, n: 57},
		{a: 5, n: 1},
		{a: 1, n: 0, expected: ErrInvalidModulus},
		{a: 1, n: 4, expected: ErrInvalidModulus},
		{a: 1, n: -3, expected: ErrInvalidModulus},
	}
	for _, test := range tests {
		request, err := ParseJacobiRequest(NewJacobiRequest(big.NewInt(test.a), big.NewInt(test.n)))
		if test.expected != nil {
			if !errors.Is(err, test.expected) {
				t.Errorf("(%d/%d): expected error %v, got %v", test.a, test.n, test.expected, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("(%d/%d): unexpected error %v", test.a, test.n, err)
			continue
		}
		if request.A.Int64() != test.a || request.N.Int64() != test.n {
			t.Errorf("(%d/%d): unexpected request (%s/%s)", test.a, test.n, request.A, request.N)
		}
	}
}

func TestResponses(t *testing.T) {
	t.Parallel()
	metadata := map[string]string{"hostname": "test", "cached": "true"}
	isPrime := &IsPrimeRequest{Candidate: big.NewInt(104729), Iterations: 12}
	response := NewIsPrimeResponse(isPrime, true, metadata)
	prime, err := PrimeFromResponse(response)
	if err != nil || !prime {
		t.Errorf("PrimeFromResponse: expected true, got %t (%v)", prime, err)
	}
	echo, err := ParseIsPrimeRequest(response)
	if err != nil || echo.Candidate.Cmp(isPrime.Candidate) != 0 || echo.Iterations != isPrime.Iterations {
		t.Errorf("IsPrime response does not echo request: %v (%v)", response, err)
	}
	jacobi := &JacobiRequest{A: big.NewInt(2), N: big.NewInt(7)}
	for _, expected := range []int{-1, 0, 1} {
		symbol, err := SymbolFromResponse(NewJacobiResponse(jacobi, expected, nil))
		if err != nil || symbol != expected {
			t.Errorf("SymbolFromResponse: expected %d, got %d (%v)", expected, symbol, err)
		}
	}
	actual := MetadataFromResponse(NewIsPrimeResponse(isPrime, false, metadata))
	if len(actual) != len(metadata) {
		t.Errorf("Metadata length mismatch: expected %d got %d", len(metadata), len(actual))
	}
	for k, v := range metadata {
		if actual[k] != v {
			t.Errorf("Metadata %s mismatch: expected %s got %s", k, v, actual[k])
		}
	}
	if _, err := PrimeFromResponse(&structpb.Struct{}); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected missing field error, got %v", err)
	}
	if _, err := SymbolFromResponse(NewJacobiResponse(jacobi, 2, nil)); !errors.Is(err, ErrInvalidInteger) {
		t.Errorf("Expected invalid integer error, got %v", err)
	}
}

func TestParseInteger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value    string
		expected string
	}{
		{value: "0", expected: "0"},
		{value: "010", expected: "10"},
		{value: "-17", expected: "-17"},
		{value: "+17", expected: "17"},
		{value: "0x1f", expected: "31"},
		{value: "0XFF", expected: "255"},
		{value: "-0x10", expected: "-16"},
		{value: "340282366920938463463374607431768211457", expected: "340282366920938463463374607431768211457"},
	}
	for _, test := range tests {
		actual, err := ParseInteger(test.value)
		if err != nil {
			t.Errorf("%q: unexpected error %v", test.value, err)
			continue
		}
		if actual.String() != test.expected {
			t.Errorf("%q: expected %s got %s", test.value, test.expected, actual)
		}
	}
	for _, value := range []string{"", "-", "0x", "12ab", "--1", "+-1", "1.5", "0b101"} {
		if _, err := ParseInteger(value); !errors.Is(err, ErrInvalidInteger) {
			t.Errorf("%q: expected invalid integer error, got %v", value, err)
		}
	}
}

func TestParseIsPrimeRequest_Limits(t *testing.T) {
	t.Parallel()
	largest := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), MaxIntegerBits), big.NewInt(1))
	tooLarge := new(big.Int).Lsh(big.NewInt(1), MaxIntegerBits)
	tests := []struct {
		name       string
		candidate  *big.Int
		iterations int
		expected   error
	}{
		{name: "max-iterations", candidate: big.NewInt(7919), iterations: MaxIterations},
		{name: "iterations", candidate: big.NewInt(7919), iterations: MaxIterations + 1, expected: ErrIterationsTooLarge},
		{name: "huge-iterations", candidate: big.NewInt(7919), iterations: 200000000, expected: ErrIterationsTooLarge},
		{name: "max-bits", candidate: largest, iterations: 1},
		{name: "bits", candidate: tooLarge, iterations: 1, expected: ErrCandidateTooLarge},
		{name: "negative-bits", candidate: new(big.Int).Neg(tooLarge), iterations: 1, expected: ErrCandidateTooLarge},
	}
	for _, test := range tests {
		tst := test
		t.Run(tst.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseIsPrimeRequest(NewIsPrimeRequest(tst.candidate, tst.iterations))
			if tst.expected == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tst.expected) {
				t.Errorf("Expected error %v, got %v", tst.expected, err)
			}
		})
	}
}

func TestParseIsPrimeRequest_OutOfRangeNumbers(t *testing.T) {
	t.Parallel()
	for _, fields := range []map[string]interface{}{
		{CandidateField: 7, IterationsField: 1e300},
		{CandidateField: 1e300},
	} {
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			t.Fatalf("Failed to build message: %v", err)
		}
		if _, err := ParseIsPrimeRequest(msg); !errors.Is(err, ErrInvalidInteger) {
			t.Errorf("%v: expected invalid integer error, got %v", fields, err)
		}
	}
}

func TestParseJacobiRequest_Limits(t *testing.T) {
	t.Parallel()
	tooLarge := new(big.Int).Lsh(big.NewInt(1), MaxIntegerBits)
	oddTooLarge := new(big.Int).Add(tooLarge, big.NewInt(1))
	if _, err := ParseJacobiRequest(NewJacobiRequest(tooLarge, big.NewInt(7))); !errors.Is(err, ErrCandidateTooLarge) {
		t.Errorf("Expected candidate too large error for a, got %v", err)
	}
	if _, err := ParseJacobiRequest(NewJacobiRequest(big.NewInt(2), oddTooLarge)); !errors.Is(err, ErrCandidateTooLarge) {
		t.Errorf("Expected candidate too large error for n, got %v", err)
	}
}
