package units

import (
	"errors"
	"math/big"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		v        *big.Int
		decimals uint8
		want     string
	}{
		{"nil", nil, 18, "0"},
		{"zero", big.NewInt(0), 18, "0"},
		{"one token", new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), 18, "1"},
		{"fraction", big.NewInt(1500), 3, "1.5"},
		{"no decimals", big.NewInt(42), 0, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.v, tt.decimals); got != tt.want {
				t.Errorf("Format(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParse_WholeTokens(t *testing.T) {
	got, err := Parse("1000000", 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParse_Fraction(t *testing.T) {
	got, err := Parse("0.25", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 25 {
		t.Errorf("expected 25, got %s", got)
	}
}

func TestParse_TooManyDecimals(t *testing.T) {
	_, err := Parse("0.001", 2)
	if !errors.Is(err, ErrFractional) {
		t.Errorf("expected ErrFractional, got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("abc", 18); err == nil {
		t.Error("expected error for non-numeric input")
	}
}
