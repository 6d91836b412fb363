package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/util"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeBackend is an in-memory Backend.
type fakeBackend struct {
	mu       sync.Mutex
	chainID  int64
	chainErr error
	head     uint64
	nonce    uint64
	receipts map[common.Hash]*ethtypes.Receipt
	closed   atomic.Bool
}

func newFakeBackend(chainID int64) *fakeBackend {
	return &fakeBackend{chainID: chainID, nonce: 5, receipts: make(map[common.Hash]*ethtypes.Receipt)}
}

func (f *fakeBackend) setChain(id int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainID = id
	f.chainErr = err
}

func (f *fakeBackend) setHead(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = n
}

func (f *fakeBackend) addReceipt(r *ethtypes.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[r.TxHash] = r
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return big.NewInt(f.chainID), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (f *fakeBackend) SendTransaction(context.Context, *ethtypes.Transaction) error { return nil }
func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}
func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}
func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(int64(f.head))}, nil
}
func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}
func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}
func (f *fakeBackend) Close() { f.closed.Store(true) }

// fakeDialer hands out backends by URL and counts dials.
type fakeDialer struct {
	mu       sync.Mutex
	backends map[string]*fakeBackend
	failures int
	dials    int
}

func (d *fakeDialer) dial(_ context.Context, url string) (Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	b, ok := d.backends[url]
	if !ok {
		return nil, errors.New("no such host")
	}
	return b, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ActiveNetwork = "localhost"
	cfg.Wallet.KeystoreDir = t.TempDir()
	return cfg
}

func fastBackoff() *util.Backoff {
	return &util.Backoff{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

type fixture struct {
	conn    *Conn
	dialer  *fakeDialer
	local   *fakeBackend
	sepolia *fakeBackend
	cfg     *config.Config
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	cfg := testConfig(t)
	local := newFakeBackend(31337)
	sepolia := newFakeBackend(11155111)
	dialer := &fakeDialer{backends: map[string]*fakeBackend{
		cfg.Networks["localhost"].RPCURL: local,
		cfg.Networks["sepolia"].RPCURL:   sepolia,
	}}

	opts := Options{
		Dialer:              dialer.dial,
		Backoff:             fastBackoff(),
		ChainWatchInterval:  -1,
		ConfirmPollInterval: 5 * time.Millisecond,
		KeystoreDebounce:    10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}

	conn, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(conn.Stop)
	return &fixture{conn: conn, dialer: dialer, local: local, sepolia: sepolia, cfg: cfg}
}

// importDevKey writes the dev key into dir with light scrypt parameters.
func importDevKey(t *testing.T, dir, password string) common.Address {
	t.Helper()
	key, err := crypto.HexToECDSA(devKey)
	if err != nil {
		t.Fatal(err)
	}
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.ImportECDSA(key, password)
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	return acct.Address
}

func expectEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", kind)
		}
		if ev.Kind != kind {
			t.Fatalf("expected %s, got %s", kind, ev.Kind)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", kind)
	}
	return Event{}
}
