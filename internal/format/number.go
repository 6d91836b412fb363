package format

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatNumber renders value with comma-grouped thousands and exactly
// decimals fractional digits, rounding half away from zero.
// value may be any finite decimal string ("1234.5", "-3", "1e6").
func FormatNumber(value string, decimals int) (string, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return "", fmt.Errorf("%w: decimals %d out of range", ErrInvalidAmount, decimals)
	}
	r, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return formatRat(r, decimals), nil
}

// FormatFloat is FormatNumber for float64 input; NaN and ±Inf are rejected.
func FormatFloat(value float64, decimals int) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidAmount, value)
	}
	return FormatNumber(strconv.FormatFloat(value, 'f', -1, 64), decimals)
}

func formatRat(r *big.Rat, decimals int) string {
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)

	// round(abs * 10^decimals) by adding one half and truncating
	scaled := new(big.Rat).Mul(abs, new(big.Rat).SetInt(pow10(decimals)))
	scaled.Add(scaled, big.NewRat(1, 2))
	units := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	whole, frac := new(big.Int).QuoRem(units, pow10(decimals), new(big.Int))

	var sb strings.Builder
	if neg && units.Sign() != 0 {
		sb.WriteByte('-')
	}
	sb.WriteString(humanize.BigComma(whole))
	if decimals > 0 {
		fracStr := frac.String()
		sb.WriteByte('.')
		sb.WriteString(strings.Repeat("0", decimals-len(fracStr)))
		sb.WriteString(fracStr)
	}
	return sb.String()
}

// FormatTokenAmount renders a base-unit amount like "1,234.5000 MTK".
func FormatTokenAmount(raw *big.Int, opts Options, symbol string) (string, error) {
	display, err := ToDisplayUnits(raw, opts.Decimals)
	if err != nil {
		return "", err
	}
	out, err := FormatNumber(display, opts.Precision)
	if err != nil {
		return "", err
	}
	if symbol == "" {
		return out, nil
	}
	return out + " " + symbol, nil
}

// ShortenIdentifier keeps the first six and last visible characters of id,
// e.g. "0x1234...cdef". Ids with no room for an ellipsis are returned as is.
func ShortenIdentifier(id string, visible int) (string, error) {
	if visible < 0 || len(id) < 2*visible {
		return "", fmt.Errorf("%w: %q shorter than %d", ErrInvalidIdentifier, id, 2*visible)
	}
	const head = 6
	if len(id) <= head+visible {
		return id, nil
	}
	return id[:head] + "..." + id[len(id)-visible:], nil
}
