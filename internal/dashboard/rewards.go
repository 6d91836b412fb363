package dashboard

import (
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/reader"
	"github.com/stakedash/stakedash/internal/tx"
)

// RewardsView is what the rewards panel shows at one instant. Pending is
// the contract-reported reward at the last poll; Estimated adds the APY
// projection accrued since then.
type RewardsView struct {
	Pending      *big.Int
	PendingStr   string
	Estimated    *big.Int
	EstimatedStr string
	IsEstimate   bool
	SinceStr     string
}

// RewardsPanel tracks pending rewards between polls. Contract values always
// replace the local estimate.
type RewardsPanel struct {
	apy    sdkmath.LegacyDec
	opts   format.Options
	symbol string

	staked  *big.Int
	pending *big.Int
	at      time.Time
}

// NewRewardsPanel returns a panel projecting at apyPercent.
func NewRewardsPanel(apyPercent sdkmath.LegacyDec, opts format.Options, symbol string) *RewardsPanel {
	return &RewardsPanel{
		apy:     apyPercent,
		opts:    opts,
		symbol:  symbol,
		staked:  new(big.Int),
		pending: new(big.Int),
	}
}

// Update resets the projection to the snapshot's contract values. The
// projection runs from when the stake info itself was read, so a failed
// getStakeInfo next to a fresh totalStaked keeps the older base.
func (p *RewardsPanel) Update(snap reader.Snapshot) {
	info := snap.StakeInfo.Copy()
	p.staked = info.StakedAmount
	p.pending = info.PendingRewards
	p.at = snap.StakeUpdatedAt
}

// Pending is the last contract-reported reward.
func (p *RewardsPanel) Pending() *big.Int {
	return new(big.Int).Set(p.pending)
}

// Display computes the view at now. Before the first update or with nothing
// staked the estimate equals the contract value.
func (p *RewardsPanel) Display(now time.Time) RewardsView {
	var elapsed int64
	if !p.at.IsZero() && now.After(p.at) {
		elapsed = int64(now.Sub(p.at) / time.Second)
	}
	extra := format.ProjectedRewardUnits(p.staked, p.apy, elapsed)
	estimated := new(big.Int).Add(p.pending, extra)

	v := RewardsView{
		Pending:    p.Pending(),
		Estimated:  estimated,
		IsEstimate: extra.Sign() > 0,
		SinceStr:   format.FormatDuration(elapsed),
	}
	v.PendingStr = p.render(v.Pending)
	v.EstimatedStr = p.render(estimated)
	return v
}

func (p *RewardsPanel) render(v *big.Int) string {
	s, err := format.FormatTokenAmount(v, p.opts, p.symbol)
	if err != nil {
		return "-"
	}
	return s
}

// CanClaim reports whether claim is enabled.
func (p *RewardsPanel) CanClaim(set *tx.Set) bool {
	return p.pending.Sign() > 0 && !set.AnyPending(tx.ActionClaim, tx.ActionCompound)
}

// CanCompound reports whether compound is enabled.
func (p *RewardsPanel) CanCompound(set *tx.Set) bool {
	return p.CanClaim(set)
}
