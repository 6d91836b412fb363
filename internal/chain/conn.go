// Package chain owns the process-wide connection to the staking network:
// the RPC backend, the unlocked signing account, and the events emitted
// when either changes.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/internal/util"
	"github.com/stakedash/stakedash/internal/wallet"
	"github.com/stakedash/stakedash/pkg/types"
)

var (
	// ErrNotConnected is returned before Connect succeeds or after Stop.
	ErrNotConnected = errors.New("not connected")
	// ErrNoAccount is returned when a signing operation has no unlocked account.
	ErrNoAccount = errors.New("no account connected")
	// ErrChainMismatch is returned when the endpoint serves a different chain.
	ErrChainMismatch = errors.New("chain ID mismatch")
)

// Options tunes a Conn. Zero values select the defaults.
type Options struct {
	Dialer  Dialer
	Backoff *util.Backoff
	// ChainWatchInterval is how often Start polls the chain id. Negative disables.
	ChainWatchInterval time.Duration
	// ConfirmPollInterval is how often WaitMined checks the head for confirmations.
	ConfirmPollInterval time.Duration
	// KeystoreDebounce coalesces bursts of keystore directory events.
	KeystoreDebounce time.Duration
	// PasswordSources unlock a key that appears in the keystore while running.
	PasswordSources []wallet.PasswordSource
}

func (o *Options) withDefaults() {
	if o.Dialer == nil {
		o.Dialer = DialEthclient
	}
	if o.Backoff == nil {
		o.Backoff = util.DefaultBackoff()
	}
	if o.ChainWatchInterval == 0 {
		o.ChainWatchInterval = 15 * time.Second
	}
	if o.ConfirmPollInterval <= 0 {
		o.ConfirmPollInterval = 2 * time.Second
	}
	if o.KeystoreDebounce <= 0 {
		o.KeystoreDebounce = 250 * time.Millisecond
	}
}

// Conn is the connection shell shared by readers and trackers.
type Conn struct {
	opts        Options
	networks    map[string]config.NetworkConfig
	keystoreDir string

	mu         sync.RWMutex
	backend    Backend
	networkKey string
	network    config.NetworkConfig
	wallet     *wallet.Wallet
	key        *ecdsa.PrivateKey
	account    common.Address

	nonceMu      sync.Mutex
	pendingNonce uint64
	nonceValid   bool

	healthy   atomic.Bool
	seenChain atomic.Int64
	events    *hub

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates an unconnected Conn for the active network of cfg.
// The network table is copied; later edits to cfg do not affect the Conn.
func New(cfg *config.Config, opts Options) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	net, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	opts.withDefaults()

	networks := make(map[string]config.NetworkConfig, len(cfg.Networks))
	for k, v := range cfg.Networks {
		networks[k] = v
	}

	return &Conn{
		opts:        opts,
		networks:    networks,
		keystoreDir: cfg.Wallet.KeystoreDir,
		networkKey:  cfg.ActiveNetwork,
		network:     net,
		events:      newHub(),
	}, nil
}

// Connect dials the active network with retries and verifies its chain id.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.RLock()
	net := c.network
	c.mu.RUnlock()

	backend, err := c.dial(ctx, net)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.backend
	c.backend = backend
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.invalidateNonce()
	c.healthy.Store(true)
	logging.Info("connected",
		logging.Component("chain"),
		"network", net.Name,
		logging.ChainID(net.ChainID),
	)
	return nil
}

func (c *Conn) dial(ctx context.Context, net config.NetworkConfig) (Backend, error) {
	backend, attempts, err := util.Retry(ctx, c.opts.Backoff, func(ctx context.Context) (Backend, error) {
		b, err := c.opts.Dialer(ctx, net.RPCURL)
		if err != nil {
			return nil, err
		}
		id, err := b.ChainID(ctx)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to get chain ID: %w", err)
		}
		if id.Int64() != net.ChainID {
			b.Close()
			return nil, util.Permanent(fmt.Errorf("%w: expected %d, got %d", ErrChainMismatch, net.ChainID, id.Int64()))
		}
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempt(s): %w", net.RPCURL, attempts, err)
	}
	return backend, nil
}

// Backend returns the current RPC backend or ErrNotConnected.
func (c *Conn) Backend() (Backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		return nil, ErrNotConnected
	}
	return c.backend, nil
}

// Connected reports whether a backend is open.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend != nil
}

// Account returns the unlocked account, or types.Disconnected.
func (c *Conn) Account() types.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.NewAccount(c.account)
}

func (c *Conn) ChainID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.network.ChainID
}

// Network returns the active network's key and settings.
func (c *Conn) Network() (string, config.NetworkConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkKey, c.network
}

func (c *Conn) chainState() types.Network {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Network{Name: c.network.Name, ChainID: c.network.ChainID}
}

// Subscribe registers for connection events. The returned function
// unsubscribes and closes the channel; calling it twice is safe.
func (c *Conn) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// RequestAccount unlocks the keystore account with password and makes it
// the signing account.
func (c *Conn) RequestAccount(ctx context.Context, password string) (types.Account, error) {
	c.mu.RLock()
	w := c.wallet
	c.mu.RUnlock()

	if w == nil {
		loaded, err := wallet.Load(c.keystoreDir)
		if err != nil {
			return types.Disconnected, err
		}
		w = loaded
	}

	key, err := w.Unlock(password)
	if err != nil {
		return types.Disconnected, err
	}
	c.setAccount(w, key)

	if err := c.SyncNonce(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		logging.Warn("failed to sync nonce", logging.Component("chain"), logging.Err(err))
	}
	return c.Account(), nil
}

func (c *Conn) setAccount(w *wallet.Wallet, key *ecdsa.PrivateKey) {
	addr := crypto.PubkeyToAddress(key.PublicKey)

	c.mu.Lock()
	changed := c.account != addr
	c.wallet = w
	c.key = key
	c.account = addr
	c.mu.Unlock()

	if changed {
		c.invalidateNonce()
		logging.Info("account connected", logging.Component("chain"), logging.Account(addr.Hex()))
		c.events.publish(Event{Kind: AccountChanged, Account: types.NewAccount(addr), Network: c.chainState()})
	}
}

// ReleaseAccount locks the wallet and disconnects the account.
func (c *Conn) ReleaseAccount() {
	c.mu.Lock()
	had := c.account != (common.Address{})
	if c.wallet != nil {
		c.wallet.Lock()
	}
	c.key = nil
	c.account = common.Address{}
	c.mu.Unlock()

	c.invalidateNonce()
	if had {
		logging.Info("account disconnected", logging.Component("chain"))
		c.events.publish(Event{Kind: AccountChanged, Account: types.Disconnected, Network: c.chainState()})
	}
}

// SwitchNetwork connects to another configured network. On failure the
// current connection is kept.
func (c *Conn) SwitchNetwork(ctx context.Context, name string) error {
	net, ok := c.networks[name]
	if !ok {
		return fmt.Errorf("unknown network %q", name)
	}
	if net.Name == "" {
		net.Name = name
	}

	backend, err := c.dial(ctx, net)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.backend
	c.backend = backend
	c.networkKey = name
	c.network = net
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.invalidateNonce()
	c.healthy.Store(true)
	logging.Info("network switched",
		logging.Component("chain"),
		"network", net.Name,
		logging.ChainID(net.ChainID),
	)
	c.events.publish(Event{Kind: NetworkChanged, Account: c.Account(), Network: c.chainState()})
	return nil
}

// TransactOpts returns signing options for the connected account with the
// next local nonce.
func (c *Conn) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	c.mu.RLock()
	backend := c.backend
	key := c.key
	chainID := c.network.ChainID
	c.mu.RUnlock()

	if backend == nil {
		return nil, ErrNotConnected
	}
	if key == nil {
		return nil, ErrNoAccount
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasPrice = gasPrice

	nonce, err := c.nextNonce(ctx, backend, auth.From)
	if err != nil {
		return nil, err
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	return auth, nil
}

func (c *Conn) nextNonce(ctx context.Context, backend Backend, from common.Address) (uint64, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if !c.nonceValid {
		n, err := backend.PendingNonceAt(ctx, from)
		if err != nil {
			return 0, fmt.Errorf("failed to get nonce: %w", err)
		}
		c.pendingNonce = n
		c.nonceValid = true
	}
	n := c.pendingNonce
	c.pendingNonce++
	return n, nil
}

// SyncNonce reloads the pending nonce from the node. Callers use it after
// a submission was rejected so the skipped nonce is reused.
func (c *Conn) SyncNonce(ctx context.Context) error {
	c.mu.RLock()
	backend := c.backend
	addr := c.account
	c.mu.RUnlock()

	if backend == nil {
		return ErrNotConnected
	}
	if addr == (common.Address{}) {
		return ErrNoAccount
	}

	n, err := backend.PendingNonceAt(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}
	c.nonceMu.Lock()
	c.pendingNonce = n
	c.nonceValid = true
	c.nonceMu.Unlock()
	return nil
}

func (c *Conn) invalidateNonce() {
	c.nonceMu.Lock()
	c.nonceValid = false
	c.nonceMu.Unlock()
}

// WaitMined blocks until tx is mined and the network's block confirmations
// have passed, or ctx is done. A reverted receipt is returned without error;
// callers inspect Status.
func (c *Conn) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	c.mu.RLock()
	backend := c.backend
	confirmations := c.network.BlockConfirmations
	c.mu.RUnlock()

	if backend == nil {
		return nil, ErrNotConnected
	}

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction: %w", err)
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed || confirmations <= 0 || receipt.BlockNumber == nil {
		return receipt, nil
	}

	target := receipt.BlockNumber.Uint64() + uint64(confirmations)
	ticker := time.NewTicker(c.opts.ConfirmPollInterval)
	defer ticker.Stop()
	for {
		head, err := backend.BlockNumber(ctx)
		if err == nil && head >= target {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return receipt, ctx.Err()
		case <-ticker.C:
		}
	}
}
