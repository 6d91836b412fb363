// Package contracts resolves logical contract names to bound go-ethereum
// contracts for the active network and wraps them in typed clients.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Logical contract names.
const (
	NameToken   = "token"
	NameStaking = "staking"
)

var (
	// ErrUnknownContract is returned when a name is not registered.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrMissingAddress is returned when the active network has no address for a contract.
	ErrMissingAddress = errors.New("contract address not configured")
)

// Addresses holds the deployed addresses on one network.
type Addresses struct {
	Token   common.Address
	Staking common.Address
}

// ParseAddresses converts hex strings from configuration. Empty strings
// become the zero address and fail at Resolve.
func ParseAddresses(token, staking string) Addresses {
	var a Addresses
	if token != "" {
		a.Token = common.HexToAddress(token)
	}
	if staking != "" {
		a.Staking = common.HexToAddress(staking)
	}
	return a
}

// Signer supplies transaction options for the connected account.
type Signer interface {
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Registry maps logical names to ABIs and per-network addresses.
// It is safe for concurrent use once built.
type Registry struct {
	backend   bind.ContractBackend
	abis      map[string]abi.ABI
	addresses map[string]common.Address
}

// NewRegistry parses the token and staking ABIs and binds them to addrs.
func NewRegistry(backend bind.ContractBackend, addrs Addresses) (*Registry, error) {
	if backend == nil {
		return nil, fmt.Errorf("contract backend is required")
	}

	tokenABI, err := abi.JSON(strings.NewReader(TokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	stakingABI, err := abi.JSON(strings.NewReader(StakingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse staking ABI: %w", err)
	}

	return &Registry{
		backend: backend,
		abis: map[string]abi.ABI{
			NameToken:   tokenABI,
			NameStaking: stakingABI,
		},
		addresses: map[string]common.Address{
			NameToken:   addrs.Token,
			NameStaking: addrs.Staking,
		},
	}, nil
}

// Names returns the registered logical names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.abis))
	for n := range r.abis {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Address returns the configured address for name.
func (r *Registry) Address(name string) (common.Address, error) {
	if _, ok := r.abis[name]; !ok {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownContract, name)
	}
	addr := r.addresses[name]
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingAddress, name)
	}
	return addr, nil
}

// Resolve returns an immutable binding of name for account. account may be
// the zero address for global reads.
func (r *Registry) Resolve(name string, account common.Address) (*Binding, error) {
	addr, err := r.Address(name)
	if err != nil {
		return nil, err
	}
	parsed := r.abis[name]
	return &Binding{
		name:    name,
		address: addr,
		abi:     parsed,
		account: account,
		bound:   bind.NewBoundContract(addr, parsed, r.backend, r.backend, r.backend),
	}, nil
}

// Binding is a contract handle for one account on one network.
type Binding struct {
	name    string
	address common.Address
	abi     abi.ABI
	account common.Address
	bound   *bind.BoundContract
}

func (b *Binding) Name() string            { return b.name }
func (b *Binding) Address() common.Address { return b.address }
func (b *Binding) ABI() abi.ABI            { return b.abi }
func (b *Binding) Account() common.Address { return b.account }

// Call invokes a view method and returns its unpacked outputs.
func (b *Binding) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: b.account}
	if err := b.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", b.name, method, err)
	}
	return out, nil
}

// Transact signs and submits a state-changing call.
func (b *Binding) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("%s.%s: transact options are required", b.name, method)
	}
	tx, err := b.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", b.name, method, err)
	}
	return tx, nil
}

func (b *Binding) transact(ctx context.Context, signer Signer, method string, args ...interface{}) (*types.Transaction, error) {
	if signer == nil {
		return nil, fmt.Errorf("%s.%s: no signer configured", b.name, method)
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction options: %w", err)
	}
	return b.Transact(opts, method, args...)
}
