package format

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad test integer %q", s)
	}
	return v
}

func TestToDisplayUnits(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"123456789", 6, "123.456789"},
		{"42", 0, "42"},
		{"100000000000000000000000000", 18, "100000000"},
	}

	for _, tt := range tests {
		got, err := ToDisplayUnits(mustBig(t, tt.raw), tt.decimals)
		if err != nil {
			t.Errorf("ToDisplayUnits(%s, %d) error: %v", tt.raw, tt.decimals, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ToDisplayUnits(%s, %d) = %q, want %q", tt.raw, tt.decimals, got, tt.want)
		}
	}
}

func TestToDisplayUnitsInvalid(t *testing.T) {
	if _, err := ToDisplayUnits(nil, 18); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("nil: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := ToDisplayUnits(big.NewInt(-1), 18); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := ToDisplayUnits(big.NewInt(1), -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("bad decimals: expected ErrInvalidAmount, got %v", err)
	}
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		input    string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.01", 18, "10000000000000000"},
		{".5", 18, "500000000000000000"},
		{"10.", 18, "10000000000000000000"},
		{" 2.5 ", 6, "2500000"},
		{"0", 18, "0"},
		{"0.0000000000000000019", 18, "1"}, // truncated, never rounded up
		{"1.999", 2, "199"},
	}

	for _, tt := range tests {
		got, err := ToBaseUnits(tt.input, tt.decimals)
		if err != nil {
			t.Errorf("ToBaseUnits(%q) error: %v", tt.input, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ToBaseUnits(%q, %d) = %s, want %s", tt.input, tt.decimals, got, tt.want)
		}
	}
}

func TestToBaseUnitsInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", ".", "-1", "+1", "abc", "1.2.3", "1e18", "NaN", "Infinity", "1,000"} {
		if _, err := ToBaseUnits(input, 18); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ToBaseUnits(%q): expected ErrInvalidAmount, got %v", input, err)
		}
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)

	for _, decimals := range []int{0, 6, 8, 18} {
		for i := 0; i < 200; i++ {
			x := new(big.Int).Rand(rng, limit)
			display, err := ToDisplayUnits(x, decimals)
			if err != nil {
				t.Fatalf("ToDisplayUnits(%s): %v", x, err)
			}
			back, err := ToBaseUnits(display, decimals)
			if err != nil {
				t.Fatalf("ToBaseUnits(%q): %v", display, err)
			}
			if back.Cmp(x) != 0 {
				t.Fatalf("round trip %s -> %q -> %s (decimals %d)", x, display, back, decimals)
			}
		}
	}
}
