package dashboard

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/reader"
)

// LoadingPlaceholder is shown for a card whose value is not loaded yet.
const LoadingPlaceholder = "..."

// Card is one tile in the stats grid.
type Card struct {
	Title    string
	Value    string
	Subtitle string
	Loading  bool
}

// StatsGrid builds the overview cards.
type StatsGrid struct {
	apy    sdkmath.LegacyDec
	opts   format.Options
	symbol string
}

func NewStatsGrid(apyPercent sdkmath.LegacyDec, opts format.Options, symbol string) *StatsGrid {
	return &StatsGrid{apy: apyPercent, opts: opts, symbol: symbol}
}

// Cards renders the snapshot: Total Staked, APY, Your Stake, Pending
// Rewards, Total Value and Wallet Balance. Account cards read "-" when no
// account is connected.
func (g *StatsGrid) Cards(snap reader.Snapshot) []Card {
	totalLoading := snap.TotalLoading && snap.UpdatedAt.IsZero()
	loading := snap.IsLoading && snap.StakeUpdatedAt.IsZero()
	connected := snap.Account.Connected()

	apy := g.apy.String()
	if s, err := format.FormatNumber(apy, 2); err == nil {
		apy = s
	}

	cards := []Card{
		g.amountCard("Total Staked", snap.TotalStaked, "TVL", totalLoading, true),
		{Title: "APY", Value: apy + "%", Subtitle: "annual yield"},
		g.amountCard("Your Stake", snap.StakeInfo.StakedAmount, "staked", loading, connected),
		g.amountCard("Pending Rewards", snap.StakeInfo.PendingRewards, "claimable", loading, connected),
		g.amountCard("Total Value", snap.TotalValue(), "stake + rewards", loading, connected),
		g.amountCard("Wallet Balance", snap.Balance, "available", loading, connected),
	}
	return cards
}

func (g *StatsGrid) amountCard(title string, v *big.Int, subtitle string, loading, enabled bool) Card {
	c := Card{Title: title, Subtitle: subtitle}
	switch {
	case loading:
		c.Value = LoadingPlaceholder
		c.Loading = true
	case !enabled:
		c.Value = "-"
	default:
		if v == nil {
			v = new(big.Int)
		}
		s, err := format.FormatTokenAmount(v, g.opts, g.symbol)
		if err != nil {
			s = fmt.Sprintf("%s (raw)", v.String())
		}
		c.Value = s
	}
	return c
}

// Share is the account's fraction of total stake as a percentage string.
func Share(snap reader.Snapshot) string {
	staked := snap.StakeInfo.StakedAmount
	if staked == nil || snap.TotalStaked == nil || snap.TotalStaked.Sign() == 0 {
		return "0.00%"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Mul(staked, big.NewInt(100)), snap.TotalStaked)
	s, err := format.FormatNumber(r.FloatString(6), 2)
	if err != nil {
		return "0.00%"
	}
	return s + "%"
}
