package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	pkgtypes "github.com/stakedash/stakedash/pkg/types"
)

// Staking is a typed client for the staking pool.
type Staking struct {
	binding *Binding
	signer  Signer
}

// NewStaking wraps a staking binding. signer may be nil for read-only use.
func NewStaking(b *Binding, signer Signer) (*Staking, error) {
	if b == nil || b.Name() != NameStaking {
		return nil, fmt.Errorf("staking client requires a %q binding", NameStaking)
	}
	return &Staking{binding: b, signer: signer}, nil
}

func (s *Staking) Address() common.Address { return s.binding.Address() }

// Stake deposits amount; the pool must hold sufficient allowance.
func (s *Staking) Stake(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	tx, err := s.binding.transact(ctx, s.signer, "stake", amount)
	if err != nil {
		return nil, fmt.Errorf("failed to stake: %w", err)
	}
	return tx, nil
}

// Unstake withdraws amount from the caller's stake.
func (s *Staking) Unstake(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	tx, err := s.binding.transact(ctx, s.signer, "unstake", amount)
	if err != nil {
		return nil, fmt.Errorf("failed to unstake: %w", err)
	}
	return tx, nil
}

func (s *Staking) ClaimRewards(ctx context.Context) (*types.Transaction, error) {
	tx, err := s.binding.transact(ctx, s.signer, "claimRewards")
	if err != nil {
		return nil, fmt.Errorf("failed to claim rewards: %w", err)
	}
	return tx, nil
}

// Compound restakes pending rewards.
func (s *Staking) Compound(ctx context.Context) (*types.Transaction, error) {
	tx, err := s.binding.transact(ctx, s.signer, "compound")
	if err != nil {
		return nil, fmt.Errorf("failed to compound: %w", err)
	}
	return tx, nil
}

// GetStakeInfo returns the staked amount and pending rewards for user.
func (s *Staking) GetStakeInfo(ctx context.Context, user common.Address) (pkgtypes.StakeInfo, error) {
	out, err := s.binding.Call(ctx, "getStakeInfo", user)
	if err != nil {
		return pkgtypes.StakeInfo{}, fmt.Errorf("failed to get stake info: %w", err)
	}
	info := pkgtypes.ZeroStakeInfo()
	if len(out) >= 2 {
		if v, ok := out[0].(*big.Int); ok && v != nil {
			info.StakedAmount = v
		}
		if v, ok := out[1].(*big.Int); ok && v != nil {
			info.PendingRewards = v
		}
	}
	return info, nil
}

// TotalStaked returns the pool-wide staked amount.
func (s *Staking) TotalStaked(ctx context.Context) (*big.Int, error) {
	out, err := s.binding.Call(ctx, "totalStaked")
	if err != nil {
		return nil, fmt.Errorf("failed to get total staked: %w", err)
	}
	return firstBigInt(out), nil
}

func (s *Staking) CalculateRewards(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := s.binding.Call(ctx, "calculateRewards", user)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate rewards: %w", err)
	}
	return firstBigInt(out), nil
}

// StakingToken returns the address of the token the pool accepts.
func (s *Staking) StakingToken(ctx context.Context) (common.Address, error) {
	out, err := s.binding.Call(ctx, "stakingToken")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get staking token: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

// Events decodes the pool's events from a receipt.
func (s *Staking) Events(receipt *types.Receipt) []Event {
	return DecodeReceipt(s.binding.ABI(), s.binding.Address(), receipt)
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}
