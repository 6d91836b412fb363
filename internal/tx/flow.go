package tx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stakedash/stakedash/internal/logging"
)

// Token is the token surface the flows need.
type Token interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error)
}

// Pool is the staking pool's write surface.
type Pool interface {
	Address() common.Address
	Stake(ctx context.Context, amount *big.Int) (*types.Transaction, error)
	Unstake(ctx context.Context, amount *big.Int) (*types.Transaction, error)
	ClaimRewards(ctx context.Context) (*types.Transaction, error)
	Compound(ctx context.Context) (*types.Transaction, error)
}

// Set holds one tracker per action.
type Set struct {
	trackers map[Action]*Tracker
}

// NewSet builds trackers for every action sharing waiter and opts.
func NewSet(waiter Waiter, opts Options) *Set {
	s := &Set{trackers: make(map[Action]*Tracker, len(Actions))}
	for _, a := range Actions {
		s.trackers[a] = NewTracker(a, waiter, opts)
	}
	return s
}

// Tracker returns the tracker for a. It panics on an unknown action.
func (s *Set) Tracker(a Action) *Tracker {
	t, ok := s.trackers[a]
	if !ok {
		panic(fmt.Sprintf("tx: no tracker for action %d", a))
	}
	return t
}

// AnyPending reports whether any of the given actions is in flight. With no
// arguments every action is checked.
func (s *Set) AnyPending(actions ...Action) bool {
	if len(actions) == 0 {
		actions = Actions
	}
	for _, a := range actions {
		if s.trackers[a].IsPending() {
			return true
		}
	}
	return false
}

// StakeFlow composes the pool and token writes with their trackers.
type StakeFlow struct {
	owner common.Address
	token Token
	pool  Pool
	set   *Set
}

// NewStakeFlow binds the flows to owner's account.
func NewStakeFlow(owner common.Address, token Token, pool Pool, set *Set) *StakeFlow {
	return &StakeFlow{owner: owner, token: token, pool: pool, set: set}
}

// Trackers returns the tracker set the flow runs on.
func (f *StakeFlow) Trackers() *Set { return f.set }

// NeedsApproval reports whether the allowance is below amount.
func NeedsApproval(allowance, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	if allowance == nil {
		return true
	}
	return allowance.Cmp(amount) < 0
}

// Stake approves the pool for amount when the current allowance is short,
// then stakes. Stake is not attempted unless the approval confirmed. The
// returned state belongs to the last tracker that ran.
func (f *StakeFlow) Stake(ctx context.Context, amount *big.Int) (State, error) {
	if f.set.Tracker(ActionStake).IsPending() || f.set.Tracker(ActionApprove).IsPending() {
		return f.set.Tracker(ActionStake).State(), fmt.Errorf("%s: %w", ActionStake, ErrActionPending)
	}

	spender := f.pool.Address()
	allowance, err := f.token.Allowance(ctx, f.owner, spender)
	if err != nil {
		return f.set.Tracker(ActionStake).State(), fmt.Errorf("reading allowance: %w", err)
	}

	if NeedsApproval(allowance, amount) {
		logging.Info("allowance below stake amount, approving", logging.Component("tx"),
			"allowance", allowance.String(), "amount", amount.String())
		st, err := f.set.Tracker(ActionApprove).Run(ctx, func(ctx context.Context) (*types.Transaction, error) {
			return f.token.Approve(ctx, spender, amount)
		})
		if err != nil {
			return st, err
		}
	}

	return f.set.Tracker(ActionStake).Run(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return f.pool.Stake(ctx, amount)
	})
}

// Unstake withdraws amount from the pool.
func (f *StakeFlow) Unstake(ctx context.Context, amount *big.Int) (State, error) {
	return f.set.Tracker(ActionUnstake).Run(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return f.pool.Unstake(ctx, amount)
	})
}

// Claim withdraws pending rewards.
func (f *StakeFlow) Claim(ctx context.Context) (State, error) {
	return f.set.Tracker(ActionClaim).Run(ctx, f.pool.ClaimRewards)
}

// Compound restakes pending rewards.
func (f *StakeFlow) Compound(ctx context.Context) (State, error) {
	return f.set.Tracker(ActionCompound).Run(ctx, f.pool.Compound)
}
