package chain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/internal/util"
	"github.com/stakedash/stakedash/internal/wallet"
	"github.com/stakedash/stakedash/pkg/types"
)

// Start launches the chain-id watch and the keystore directory watch.
// Both run until Stop or ctx cancellation.
func (c *Conn) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.stopped {
		return fmt.Errorf("connection already stopped")
	}
	if c.cancel != nil {
		return fmt.Errorf("connection already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if c.opts.ChainWatchInterval > 0 {
		c.wg.Add(1)
		util.Go("chain-watch", func() {
			defer c.wg.Done()
			c.watchChain(ctx)
		})
	}

	if info, err := os.Stat(c.keystoreDir); err == nil && info.IsDir() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			cancel()
			c.cancel = nil
			return fmt.Errorf("failed to create keystore watcher: %w", err)
		}
		if err := watcher.Add(c.keystoreDir); err != nil {
			watcher.Close()
			cancel()
			c.cancel = nil
			return fmt.Errorf("failed to watch %s: %w", c.keystoreDir, err)
		}
		c.wg.Add(1)
		util.Go("keystore-watch", func() {
			defer c.wg.Done()
			defer watcher.Close()
			c.watchKeystore(ctx, watcher)
		})
	} else {
		logging.Debug("keystore directory not present, account watch disabled",
			logging.Component("chain"), "dir", c.keystoreDir)
	}
	return nil
}

// Stop ends the watchers, closes the backend, publishes Disconnected, and
// closes every subscriber channel.
func (c *Conn) Stop() {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.lifeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	if c.wallet != nil {
		c.wallet.Lock()
	}
	c.key = nil
	c.account = common.Address{}
	c.mu.Unlock()

	if backend != nil {
		backend.Close()
	}
	c.healthy.Store(false)
	c.events.publish(Event{Kind: Disconnected, Account: types.Disconnected, Network: c.chainState(), Err: ErrNotConnected})
	c.events.close()
}

func (c *Conn) watchChain(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ChainWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkChain(ctx)
		}
	}
}

// checkChain publishes Disconnected when the endpoint stops answering,
// NetworkChanged when it answers again or serves a different known chain.
func (c *Conn) checkChain(ctx context.Context) {
	backend, err := c.Backend()
	if err != nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.ChainWatchInterval)
	id, err := backend.ChainID(callCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if c.healthy.CompareAndSwap(true, false) {
			logging.Warn("network unreachable", logging.Component("chain"), logging.Err(err))
			c.events.publish(Event{Kind: Disconnected, Account: c.Account(), Network: c.chainState(), Err: err})
		}
		return
	}

	recovered := c.healthy.CompareAndSwap(false, true)
	current := c.ChainID()
	if id.Int64() == current {
		c.seenChain.Store(current)
		if recovered {
			logging.Info("network reachable again", logging.Component("chain"))
			c.events.publish(Event{Kind: NetworkChanged, Account: c.Account(), Network: c.chainState()})
		}
		return
	}

	key, ok := c.networkByChainID(id.Int64())
	if !ok {
		// Report an unconfigured chain once, not on every tick.
		if c.seenChain.Swap(id.Int64()) == id.Int64() && !recovered {
			return
		}
		err := fmt.Errorf("%w: expected %d, got %d", ErrChainMismatch, current, id.Int64())
		logging.Warn("endpoint switched to an unconfigured chain", logging.Component("chain"), logging.Err(err))
		c.events.publish(Event{Kind: Disconnected, Account: c.Account(), Network: c.chainState(), Err: err})
		return
	}

	net := c.networks[key]
	if net.Name == "" {
		net.Name = key
	}
	c.mu.Lock()
	c.networkKey = key
	c.network = net
	c.mu.Unlock()
	c.seenChain.Store(net.ChainID)
	c.invalidateNonce()

	logging.Info("endpoint chain changed", logging.Component("chain"), "network", key, logging.ChainID(net.ChainID))
	c.events.publish(Event{Kind: NetworkChanged, Account: c.Account(), Network: c.chainState()})
}

func (c *Conn) networkByChainID(id int64) (string, bool) {
	for key, n := range c.networks {
		if n.ChainID == id {
			return key, true
		}
	}
	return "", false
}

func (c *Conn) watchKeystore(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				debounce = time.After(c.opts.KeystoreDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("keystore watcher error", logging.Component("chain"), logging.Err(err))
		case <-debounce:
			debounce = nil
			c.reloadAccount()
		}
	}
}

// reloadAccount reconciles the signing account with the keystore directory.
// A different key is unlocked through PasswordSources when possible;
// otherwise the account disconnects.
func (c *Conn) reloadAccount() {
	addr, err := wallet.PeekAddress(c.keystoreDir)
	current := c.Account()

	if err != nil {
		if errors.Is(err, wallet.ErrNoWallet) && current.Connected() {
			logging.Info("keystore emptied", logging.Component("chain"))
			c.ReleaseAccount()
		}
		return
	}
	if addr == current.Address {
		return
	}

	if current.Connected() {
		c.ReleaseAccount()
	}
	if len(c.opts.PasswordSources) == 0 {
		return
	}

	w, err := wallet.Load(c.keystoreDir)
	if err != nil {
		logging.Warn("failed to load new keystore account", logging.Component("chain"), logging.Err(err))
		return
	}
	password, source, err := wallet.ResolvePassword(c.opts.PasswordSources)
	if err != nil {
		return
	}
	key, err := w.Unlock(password)
	if err != nil {
		logging.Warn("stored password does not unlock new account",
			logging.Component("chain"), "source", source, logging.Err(err))
		return
	}
	c.setAccount(w, key)
}
