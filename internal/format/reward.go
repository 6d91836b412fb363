package format

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// SecondsPerYear is the 365-day year used for APY projection.
const SecondsPerYear = 365 * 24 * 60 * 60

// ParseDec parses a decimal string such as "15" or "0.01".
func ParseDec(s string) (sdkmath.LegacyDec, error) {
	d, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(s))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// DecFromFloat converts a config float such as an APY percentage.
func DecFromFloat(f float64) (sdkmath.LegacyDec, error) {
	return ParseDec(strconv.FormatFloat(f, 'f', -1, 64))
}

// ProjectedReward estimates the reward earned on principal at apyPercent
// over elapsedSeconds:
//
//	principal * (apyPercent/100) * (elapsedSeconds / SecondsPerYear)
//
// Negative elapsed time projects to zero.
func ProjectedReward(principal, apyPercent sdkmath.LegacyDec, elapsedSeconds int64) sdkmath.LegacyDec {
	if elapsedSeconds <= 0 || principal.IsNil() || apyPercent.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	rate := principal.Mul(apyPercent).QuoInt64(100)
	return rate.MulInt64(elapsedSeconds).QuoInt64(SecondsPerYear)
}

// ProjectedRewardUnits is ProjectedReward over base units, rounded down.
func ProjectedRewardUnits(principal *big.Int, apyPercent sdkmath.LegacyDec, elapsedSeconds int64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return new(big.Int)
	}
	p := sdkmath.LegacyNewDecFromBigInt(principal)
	return ProjectedReward(p, apyPercent, elapsedSeconds).TruncateInt().BigInt()
}

// FormatDuration renders seconds as "2 days 3 hours 1 minute". Zero-valued
// units are left out; anything under a minute is "0 minutes".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	var parts []string
	for _, u := range []struct {
		n    int64
		name string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}} {
		if u.n == 0 {
			continue
		}
		if u.n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.name))
		}
	}
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, " ")
}
