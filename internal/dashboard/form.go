// Package dashboard turns reader snapshots and tracker state into the values
// the CLI renders: form validation, button labels, reward estimates and
// stat cards. Nothing here talks to the chain.
package dashboard

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/reader"
	"github.com/stakedash/stakedash/internal/tx"
)

var (
	ErrEmptyAmount  = errors.New("enter an amount")
	ErrZeroAmount   = errors.New("amount must be greater than zero")
	ErrExceedsMax   = errors.New("amount exceeds available")
	ErrBelowMinimum = errors.New("amount below minimum stake")
)

// MaxKeyword selects the form's maximum amount.
const MaxKeyword = "max"

// Mode selects which side of the pool a form writes to.
type Mode int

const (
	ModeStake Mode = iota
	ModeUnstake
)

func (m Mode) String() string {
	if m == ModeUnstake {
		return "unstake"
	}
	return "stake"
}

// Action maps the mode to its tracker action.
func (m Mode) Action() tx.Action {
	if m == ModeUnstake {
		return tx.ActionUnstake
	}
	return tx.ActionStake
}

// AmountForm validates a stake or unstake amount against a snapshot.
type AmountForm struct {
	mode      Mode
	opts      format.Options
	symbol    string
	minStake  *big.Int
	balance   *big.Int
	staked    *big.Int
	allowance *big.Int
}

// NewAmountForm builds a form from the latest snapshot. minStake is in base
// units and only applies to staking.
func NewAmountForm(mode Mode, snap reader.Snapshot, opts format.Options, symbol string, minStake *big.Int) *AmountForm {
	return &AmountForm{
		mode:      mode,
		opts:      opts,
		symbol:    symbol,
		minStake:  orZero(minStake),
		balance:   orZero(snap.Balance),
		staked:    orZero(snap.StakeInfo.StakedAmount),
		allowance: orZero(snap.Allowance),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (f *AmountForm) Mode() Mode { return f.mode }

// Max is the wallet balance when staking and the staked amount when
// unstaking.
func (f *AmountForm) Max() *big.Int {
	if f.mode == ModeUnstake {
		return new(big.Int).Set(f.staked)
	}
	return new(big.Int).Set(f.balance)
}

// MaxDisplay is Max as an exact decimal string, suitable for the input field.
func (f *AmountForm) MaxDisplay() string {
	s, err := format.ToDisplayUnits(f.Max(), f.opts.Decimals)
	if err != nil {
		return "0"
	}
	return s
}

// Available renders Max with grouping and symbol for the form hint.
func (f *AmountForm) Available() string {
	s, err := format.FormatTokenAmount(f.Max(), f.opts, f.symbol)
	if err != nil {
		return "0"
	}
	return s
}

// Validate parses input into base units. The input may be MaxKeyword.
func (f *AmountForm) Validate(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyAmount
	}
	var amount *big.Int
	if strings.EqualFold(input, MaxKeyword) {
		amount = f.Max()
	} else {
		parsed, err := format.ToBaseUnits(input, f.opts.Decimals)
		if err != nil {
			return nil, err
		}
		amount = parsed
	}

	if amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if amount.Cmp(f.Max()) > 0 {
		return nil, fmt.Errorf("%w: %s available", ErrExceedsMax, f.Available())
	}
	if f.mode == ModeStake && amount.Cmp(f.minStake) < 0 {
		floor, _ := format.FormatTokenAmount(f.minStake, f.opts, f.symbol)
		return nil, fmt.Errorf("%w of %s", ErrBelowMinimum, floor)
	}
	return amount, nil
}

// NeedsApproval reports whether staking amount first requires an approve.
func (f *AmountForm) NeedsApproval(amount *big.Int) bool {
	return f.mode == ModeStake && tx.NeedsApproval(f.allowance, amount)
}

// CanSubmit reports whether the submit control is enabled.
func (f *AmountForm) CanSubmit(input string, pending bool) bool {
	if pending {
		return false
	}
	_, err := f.Validate(input)
	return err == nil
}

// ButtonLabel is the submit control's text.
func (f *AmountForm) ButtonLabel(input string, pending bool) string {
	if pending {
		return "Processing..."
	}
	if f.mode == ModeUnstake {
		return "Unstake"
	}
	if amount, err := f.Validate(input); err == nil && f.NeedsApproval(amount) {
		return "Approve"
	}
	return "Stake"
}

// Pending reports whether the form's controls should be disabled given the
// tracker set.
func (f *AmountForm) Pending(set *tx.Set) bool {
	if f.mode == ModeStake {
		return set.AnyPending(tx.ActionApprove, tx.ActionStake)
	}
	return set.AnyPending(tx.ActionUnstake)
}
