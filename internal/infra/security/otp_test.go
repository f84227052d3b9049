package security

import (
	"bytes"
	"testing"
)

func TestGenerateNumericCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateNumericCode(DefaultCodeLength)
		if err != nil {
			t.Fatalf("GenerateNumericCode returned error: %v", err)
		}
		if len(code) != DefaultCodeLength {
			t.Fatalf("unexpected code length %d", len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}

func TestGenerateNumericCodeRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestGenerateNumericCodeDigitDistribution(t *testing.T) {
	const samples = 20000
	counts := make(map[rune]int, 10)

	gen := NewNumericCodeGenerator(0)
	for i := 0; i < samples/DefaultCodeLength; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		for _, r := range code {
			counts[r]++
		}
	}

	if len(counts) != 10 {
		t.Fatalf("expected all ten digits, got %d", len(counts))
	}
	// Expected ~2000 per digit; the bound is loose enough to never flake.
	for digit, n := range counts {
		if n < 1500 || n > 2500 {
			t.Fatalf("digit %c drawn %d times, distribution looks skewed", digit, n)
		}
	}
}

func TestGeneratorSurfacesSourceErrors(t *testing.T) {
	gen := &NumericCodeGenerator{length: 6, source: bytes.NewReader(nil)}
	if _, err := gen.Generate(); err == nil {
		t.Fatal("expected error from exhausted entropy source")
	}
}
