package v1

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Well-known field names in PrimalityService messages.
const (
	CandidateField  = "candidate"
	IterationsField = "iterations"
	AField          = "a"
	NField          = "n"
	PrimeField      = "prime"
	SymbolField     = "symbol"
	MetadataField   = "metadata"
)

var (
	// Returned when a request field cannot be parsed as a base-10 integer.
	ErrInvalidInteger = errors.New("invalid integer")
	// Returned when a request field is missing.
	ErrMissingField = errors.New("missing field")
	// Returned when the Jacobi modulus is not a positive odd integer.
	ErrInvalidModulus = errors.New("modulus must be a positive odd integer")
	// Returned when a request asks for more Miller-Rabin rounds than MaxIterations.
	ErrIterationsTooLarge = fmt.Errorf("iterations must be <= %d", MaxIterations)
	// Returned when a request integer is longer than MaxIntegerBits.
	ErrCandidateTooLarge = fmt.Errorf("integers must be <= %d bits", MaxIntegerBits)
)

const (
	// The largest number of Miller-Rabin rounds a request may ask for.
	MaxIterations = 1024
	// The largest bit length accepted for any request integer.
	MaxIntegerBits = 16384
)

func errUnimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// An IsPrime request after validation.
type IsPrimeRequest struct {
	Candidate  *big.Int
	Iterations int
}

// A Jacobi request after validation.
type JacobiRequest struct {
	A *big.Int
	N *big.Int
}

// Build an IsPrime request message for candidate. An iterations value less
// than 1 is omitted and the server default applies.
func NewIsPrimeRequest(candidate *big.Int, iterations int) *structpb.Struct {
	fields := map[string]*structpb.Value{
		CandidateField: structpb.NewStringValue(candidate.String()),
	}
	if iterations > 0 {
		fields[IterationsField] = structpb.NewNumberValue(float64(iterations))
	}
	return &structpb.Struct{Fields: fields}
}

// Build a Jacobi request message for (a/n).
func NewJacobiRequest(a, n *big.Int) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			AField: structpb.NewStringValue(a.String()),
			NField: structpb.NewStringValue(n.String()),
		},
	}
}

// Extract and validate an IsPrime request from msg.
func ParseIsPrimeRequest(msg *structpb.Struct) (*IsPrimeRequest, error) {
	candidate, err := bigField(msg, CandidateField)
	if err != nil {
		return nil, err
	}
	iterations, err := intField(msg, IterationsField)
	if err != nil {
		return nil, err
	}
	if iterations > MaxIterations {
		return nil, fmt.Errorf("%w: %d", ErrIterationsTooLarge, iterations)
	}
	return &IsPrimeRequest{
		Candidate:  candidate,
		Iterations: iterations,
	}, nil
}

// Extract and validate a Jacobi request from msg.
func ParseJacobiRequest(msg *structpb.Struct) (*JacobiRequest, error) {
	a, err := bigField(msg, AField)
	if err != nil {
		return nil, err
	}
	n, err := bigField(msg, NField)
	if err != nil {
		return nil, err
	}
	if n.Sign() <= 0 || n.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidModulus, n)
	}
	return &JacobiRequest{
		A: a,
		N: n,
	}, nil
}

// Build an IsPrime response message that echoes the request.
func NewIsPrimeResponse(request *IsPrimeRequest, prime bool, metadata map[string]string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			CandidateField:  structpb.NewStringValue(request.Candidate.String()),
			IterationsField: structpb.NewNumberValue(float64(request.Iterations)),
			PrimeField:      structpb.NewBoolValue(prime),
			MetadataField:   metadataValue(metadata),
		},
	}
}

// Build a Jacobi response message that echoes the request.
func NewJacobiResponse(request *JacobiRequest, symbol int, metadata map[string]string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			AField:        structpb.NewStringValue(request.A.String()),
			NField:        structpb.NewStringValue(request.N.String()),
			SymbolField:   structpb.NewNumberValue(float64(symbol)),
			MetadataField: metadataValue(metadata),
		},
	}
}

// Returns the prime flag from an IsPrime response.
func PrimeFromResponse(msg *structpb.Struct) (bool, error) {
	value, ok := msg.GetFields()[PrimeField]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingField, PrimeField)
	}
	boolValue, ok := value.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a boolean", ErrInvalidInteger, PrimeField)
	}
	return boolValue.BoolValue, nil
}

// Returns the symbol from a Jacobi response.
func SymbolFromResponse(msg *structpb.Struct) (int, error) {
	value, ok := msg.GetFields()[SymbolField]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, SymbolField)
	}
	symbol := int(value.GetNumberValue())
	switch symbol {
	case -1, 0, 1:
		return symbol, nil
	default:
		return 0, fmt.Errorf("%w: symbol %d out of range", ErrInvalidInteger, symbol)
	}
}

// Returns the metadata attached to a response, or an empty map.
func MetadataFromResponse(msg *structpb.Struct) map[string]string {
	metadata := map[string]string{}
	for k, v := range msg.GetFields()[MetadataField].GetStructValue().GetFields() {
		metadata[k] = v.GetStringValue()
	}
	return metadata
}

func metadataValue(metadata map[string]string) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(metadata))
	for k, v := range metadata {
		fields[k] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// Integers may arrive as strings or, from JSON clients, as numbers.
func bigField(msg *structpb.Struct, name string) (*big.Int, error) {
	value, err := parseBigField(msg, name)
	if err != nil {
		return nil, err
	}
	if value.BitLen() > MaxIntegerBits {
		return nil, fmt.Errorf("%w: %s has %d bits", ErrCandidateTooLarge, name, value.BitLen())
	}
	return value, nil
}

func parseBigField(msg *structpb.Struct, name string) (*big.Int, error) {
	value, ok := msg.GetFields()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		result, err := ParseInteger(kind.StringValue)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return result, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if math.Abs(f) > 1<<53 || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidInteger, name, f)
		}
		return big.NewInt(int64(f)), nil
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type", ErrInvalidInteger, name)
	}
}

// Parse a signed decimal integer, or a hexadecimal one with a 0x prefix.
// Leading zeros are decimal, not octal.
func ParseInteger(value string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(value, "-"), "+")
	base := 10
	if lower := strings.ToLower(digits); strings.HasPrefix(lower, "0x") {
		digits = digits[2:]
		base = 16
	}
	result, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInteger, value)
	}
	if strings.HasPrefix(value, "-") {
		result.Neg(result)
	}
	return result, nil
}

// Optional integer field; a missing value returns zero.
func intField(msg *structpb.Struct, name string) (int, error) {
	value, ok := msg.GetFields()[name]
	if !ok {
		return 0, nil
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if math.Abs(f) > math.MaxInt32 || f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: %s=%v", ErrInvalidInteger, name, f)
		}
		return int(f), nil
	case *structpb.Value_StringValue:
		i, err := strconv.Atoi(kind.StringValue)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidInteger, name, kind.StringValue, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type", ErrInvalidInteger, name)
	}
}
