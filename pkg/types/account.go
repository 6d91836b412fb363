// Package types holds value types shared between the chain, reader and
// dashboard packages.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the connected wallet. The zero value is disconnected.
type Account struct {
	Address common.Address
}

// Disconnected is the account value used before connect and after disconnect.
var Disconnected = Account{}

// NewAccount wraps addr.
func NewAccount(addr common.Address) Account {
	return Account{Address: addr}
}

// Connected reports whether an address is present.
func (a Account) Connected() bool {
	return a.Address != (common.Address{})
}

func (a Account) String() string {
	if !a.Connected() {
		return "disconnected"
	}
	return a.Address.Hex()
}

// Network identifies the chain the connection is bound to.
type Network struct {
	Name    string
	ChainID int64
}

func (n Network) IsZero() bool {
	return n.ChainID == 0
}

// StakeInfo is the contract's view of an account's position, in base units.
type StakeInfo struct {
	StakedAmount   *big.Int
	PendingRewards *big.Int
}

// ZeroStakeInfo is the position of a disconnected or new account.
func ZeroStakeInfo() StakeInfo {
	return StakeInfo{StakedAmount: new(big.Int), PendingRewards: new(big.Int)}
}

// Total is staked + pending rewards, computed on every call.
func (s StakeInfo) Total() *big.Int {
	total := new(big.Int)
	if s.StakedAmount != nil {
		total.Add(total, s.StakedAmount)
	}
	if s.PendingRewards != nil {
		total.Add(total, s.PendingRewards)
	}
	return total
}

// Copy returns a deep copy with nil fields replaced by zero.
func (s StakeInfo) Copy() StakeInfo {
	return StakeInfo{
		StakedAmount:   copyInt(s.StakedAmount),
		PendingRewards: copyInt(s.PendingRewards),
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
