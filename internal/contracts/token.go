package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token is a typed client for the staked ERC20 token.
type Token struct {
	binding *Binding
	signer  Signer
}

// NewToken wraps a token binding. signer may be nil for read-only use.
func NewToken(b *Binding, signer Signer) (*Token, error) {
	if b == nil || b.Name() != NameToken {
		return nil, fmt.Errorf("token client requires a %q binding", NameToken)
	}
	return &Token{binding: b, signer: signer}, nil
}

func (t *Token) Address() common.Address { return t.binding.Address() }

// BalanceOf returns the token balance for an address
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.binding.Call(ctx, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return firstBigInt(out), nil
}

// Allowance returns how much spender may move from owner
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.binding.Call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return firstBigInt(out), nil
}

// Approve lets spender move amount of the caller's tokens
func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	tx, err := t.binding.transact(ctx, t.signer, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to approve: %w", err)
	}
	return tx, nil
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.binding.Call(ctx, "symbol")
	if err != nil {
		return "", fmt.Errorf("failed to get symbol: %w", err)
	}
	if len(out) == 0 {
		return "", nil
	}
	s, _ := out[0].(string)
	return s, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.binding.Call(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to get decimals: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	d, _ := out[0].(uint8)
	return d, nil
}

// firstBigInt extracts a uint256 result, treating a missing value as zero.
func firstBigInt(out []interface{}) *big.Int {
	if len(out) == 0 {
		return big.NewInt(0)
	}
	if v, ok := out[0].(*big.Int); ok && v != nil {
		return v
	}
	return big.NewInt(0)
}
