package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	tokenAddr   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	stakingAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	userAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// fakeBackend answers view calls from canned results keyed by method name
// and records submitted transactions.
type fakeBackend struct {
	mu      sync.Mutex
	abis    []abi.ABI
	results map[string][]interface{}
	calls   []ethereum.CallMsg
	sent    []*types.Transaction
	callErr error
	sendErr error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	var parsed []abi.ABI
	for _, src := range []string{TokenABI, StakingABI} {
		a, err := abi.JSON(strings.NewReader(src))
		if err != nil {
			t.Fatalf("parse ABI: %v", err)
		}
		parsed = append(parsed, a)
	}
	return &fakeBackend{abis: parsed, results: make(map[string][]interface{})}
}

func (f *fakeBackend) set(method string, values ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = values
}

func (f *fakeBackend) method(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	for _, a := range f.abis {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.callErr != nil {
		return nil, f.callErr
	}
	m, err := f.method(msg.Data)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(f.results[m.Name]...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (f *fakeBackend) lastSent(t *testing.T) (*abi.Method, []interface{}) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no transaction sent")
	}
	tx := f.sent[len(f.sent)-1]
	m, err := f.method(tx.Data())
	if err != nil {
		t.Fatalf("decode sent tx: %v", err)
	}
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack sent tx: %v", err)
	}
	return m, args
}

// keySigner signs with a throwaway key and fixed gas so only SendTransaction
// reaches the backend.
type keySigner struct {
	key *ecdsa.PrivateKey
	err error
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &keySigner{key: key}
}

func (s *keySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.err != nil {
		return nil, s.err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, big.NewInt(31337))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.Nonce = big.NewInt(0)
	opts.GasLimit = 100000
	opts.GasPrice = big.NewInt(1)
	return opts, nil
}
