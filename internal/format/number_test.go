package format

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value    string
		decimals int
		want     string
	}{
		{"0", 2, "0.00"},
		{"1234.5", 2, "1,234.50"},
		{"1234567.891", 2, "1,234,567.89"},
		{"0.005", 2, "0.01"},
		{"0.004", 2, "0.00"},
		{"999.999", 2, "1,000.00"},
		{"12", 0, "12"},
		{"-1234.5", 1, "-1,234.5"},
		{"1e6", 2, "1,000,000.00"},
		{"123456789012345678901234567890", 4, "123,456,789,012,345,678,901,234,567,890.0000"},
	}

	for _, tt := range tests {
		got, err := FormatNumber(tt.value, tt.decimals)
		if err != nil {
			t.Errorf("FormatNumber(%q) error: %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatNumber(%q, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatNumberFixedFraction(t *testing.T) {
	for _, v := range []string{"0", "1", "1.23456789", "100000", "0.1"} {
		for _, d := range []int{1, 2, 4, 6} {
			got, err := FormatNumber(v, d)
			if err != nil {
				t.Fatalf("FormatNumber(%q, %d): %v", v, d, err)
			}
			_, frac, ok := strings.Cut(got, ".")
			if !ok || len(frac) != d {
				t.Errorf("FormatNumber(%q, %d) = %q, want exactly %d fractional digits", v, d, got, d)
			}
		}
	}
}

func TestFormatNumberInvalid(t *testing.T) {
	for _, v := range []string{"", "NaN", "Inf", "-Inf", "abc"} {
		if _, err := FormatNumber(v, 2); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("FormatNumber(%q): expected ErrInvalidAmount, got %v", v, err)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	got, err := FormatFloat(15, 2)
	if err != nil || got != "15.00" {
		t.Errorf("FormatFloat(15) = %q, %v", got, err)
	}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FormatFloat(v, 2); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("FormatFloat(%v): expected ErrInvalidAmount, got %v", v, err)
		}
	}
}

func TestFormatTokenAmount(t *testing.T) {
	raw, _ := new(big.Int).SetString("1234567800000000000000", 10)
	got, err := FormatTokenAmount(raw, DefaultOptions(), "MTK")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1,234.5678 MTK" {
		t.Errorf("got %q", got)
	}

	got, err = FormatTokenAmount(big.NewInt(0), Options{Decimals: 18, Precision: 6}, "")
	if err != nil || got != "0.000000" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestShortenIdentifier(t *testing.T) {
	got, err := ShortenIdentifier("0x1234567890abcdef", 4)
	if err != nil {
		t.Fatal(err)
	}
	if got != "0x1234...cdef" {
		t.Errorf("got %q, want 0x1234...cdef", got)
	}

	addr := "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	got, _ = ShortenIdentifier(addr, 6)
	if got != "0xAbCd...CdEf01" {
		t.Errorf("got %q", got)
	}

	// nothing to elide
	got, err = ShortenIdentifier("0x123456", 2)
	if err != nil || got != "0x123456" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestShortenIdentifierTooShort(t *testing.T) {
	if _, err := ShortenIdentifier("0x12", 4); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
	if _, err := ShortenIdentifier("0x1234567890", -1); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier for negative visible, got %v", err)
	}
}
