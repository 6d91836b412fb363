// Package format converts between on-chain base units and display strings
// and holds the small amount of client-side reward math the dashboard needs.
package format

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidAmount is returned for input that is not a finite,
	// non-negative number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidIdentifier is returned when an identifier is too short to shorten.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// MaxDecimals bounds the decimals accepted for a token.
const MaxDecimals = 36

// Options controls how base-unit amounts are rendered.
type Options struct {
	Decimals  int // token decimals, 18 for most ERC-20s
	Precision int // fractional digits shown
}

// DefaultOptions matches an 18-decimal token shown with 4 digits.
func DefaultOptions() Options {
	return Options{Decimals: 18, Precision: 4}
}

func pow10(decimals int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d out of range", ErrInvalidAmount, decimals)
	}
	return nil
}

// ToDisplayUnits renders raw / 10^decimals exactly, without trailing
// fractional zeros. Display rounding is left to FormatNumber.
func ToDisplayUnits(raw *big.Int, decimals int) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: nil", ErrInvalidAmount)
	}
	if raw.Sign() < 0 {
		return "", fmt.Errorf("%w: negative %s", ErrInvalidAmount, raw)
	}
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}
	if decimals == 0 {
		return raw.String(), nil
	}

	whole, frac := new(big.Int).QuoRem(raw, pow10(decimals), new(big.Int))
	if frac.Sign() == 0 {
		return whole.String(), nil
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr, nil
}

// ToBaseUnits parses a user-entered decimal such as "1.5", ".25" or "10."
// into base units. Digits beyond decimals are dropped so the result never
// exceeds what the user typed.
func ToBaseUnits(display string, decimals int) (*big.Int, error) {
	if err := checkDecimals(decimals); err != nil {
		return nil, err
	}

	s := strings.TrimSpace(display)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	wholeStr, fracStr, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(fracStr, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	if wholeStr == "" && fracStr == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	if !isDigits(wholeStr) || !isDigits(fracStr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}

	if len(fracStr) > decimals {
		fracStr = fracStr[:decimals]
	}
	fracStr += strings.Repeat("0", decimals-len(fracStr))

	digits := strings.TrimLeft(wholeStr+fracStr, "0")
	if digits == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	return out, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
