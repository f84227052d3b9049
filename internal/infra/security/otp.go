package security

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// DefaultCodeLength is the number of digits in a one-time code.
const DefaultCodeLength = 6

var ten = big.NewInt(10)

// GenerateNumericCode returns a random numeric string of the given length.
// Every digit is drawn independently and uniformly from crypto/rand.
func GenerateNumericCode(length int) (string, error) {
	return generateNumericCode(rand.Reader, length)
}

func generateNumericCode(source io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(source, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}

// NumericCodeGenerator implements port.CodeGenerator.
type NumericCodeGenerator struct {
	length int
	source io.Reader
}

// NewNumericCodeGenerator builds a generator producing codes of the given length (default 6).
func NewNumericCodeGenerator(length int) *NumericCodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &NumericCodeGenerator{length: length, source: rand.Reader}
}

// Generate returns a fresh one-time code.
func (g *NumericCodeGenerator) Generate() (string, error) {
	return generateNumericCode(g.source, g.length)
}
