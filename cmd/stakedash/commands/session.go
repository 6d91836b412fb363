package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/stakedash/stakedash/internal/chain"
	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/contracts"
	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/internal/metrics"
	"github.com/stakedash/stakedash/internal/reader"
	"github.com/stakedash/stakedash/internal/tx"
	"github.com/stakedash/stakedash/internal/util"
	"github.com/stakedash/stakedash/internal/wallet"
	"github.com/stakedash/stakedash/pkg/types"
)

// session wires one connection to the contracts, reader and trackers.
type session struct {
	cfg     *config.Config
	network config.NetworkConfig
	conn    *chain.Conn
	token   *contracts.Token
	staking *contracts.Staking
	reader  *reader.StakeReader
	txs     *tx.Set
	flow    *tx.StakeFlow
	metrics *metrics.Collector
	account types.Account
	symbol  string

	cancel context.CancelFunc
}

type sessionOptions struct {
	// unlock requires a signing account; otherwise the keystore address is
	// used read-only when present.
	unlock bool
	// notify receives transaction notifications. Nil prints them.
	notify func(tx.Notification)
}

func openSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	network, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	for _, c := range []struct{ name, addr string }{
		{contracts.NameToken, network.TokenAddress},
		{contracts.NameStaking, network.StakingAddress},
	} {
		if c.addr == "" {
			return nil, fmt.Errorf("%w: %s address for network %s (set it in %s or STAKEDASH_%s_ADDRESS)",
				config.ErrMissingValue, c.name, cfg.ActiveNetwork, configPath(), strings.ToUpper(c.name))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{cfg: cfg, network: network, cancel: cancel, metrics: metrics.NewCollector()}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		util.Go("metrics-server", func() {
			if err := s.metrics.Serve(ctx, addr); err != nil {
				logging.Warn("metrics server stopped", logging.Component("cli"), logging.Err(err))
			}
		})
	}

	conn, err := chain.New(cfg, chain.Options{
		PasswordSources: wallet.DefaultSources(cfg.Wallet.PasswordFile),
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.conn = conn

	if err := conn.Connect(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("connecting to %s: %w", network.RPCURL, err)
	}
	s.metrics.SetConnected(true)

	if opts.unlock {
		acct, err := unlockAccount(ctx, conn, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.account = acct
	} else {
		s.account = readOnlyAccount(ctx, conn, cfg)
	}

	backend, err := conn.Backend()
	if err != nil {
		s.Close()
		return nil, err
	}
	registry, err := contracts.NewRegistry(backend, contracts.ParseAddresses(network.TokenAddress, network.StakingAddress))
	if err != nil {
		s.Close()
		return nil, err
	}
	tokenBinding, err := registry.Resolve(contracts.NameToken, s.account.Address)
	if err != nil {
		s.Close()
		return nil, err
	}
	stakingBinding, err := registry.Resolve(contracts.NameStaking, s.account.Address)
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.token, err = contracts.NewToken(tokenBinding, conn); err != nil {
		s.Close()
		return nil, err
	}
	if s.staking, err = contracts.NewStaking(stakingBinding, conn); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.checkContracts(ctx); err != nil {
		s.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if rps := cfg.Polling.RequestsPerSecond; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	s.reader = reader.NewStakeReader(s.staking, s.token, s.staking.Address(), reader.Options{
		PollInterval: cfg.Polling.Interval(),
		Limiter:      limiter,
		Observer:     s.metrics,
	})
	s.reader.SetAccount(s.account)

	notify := opts.notify
	if notify == nil {
		notify = printNotification
	}
	s.txs = tx.NewSet(conn, tx.Options{
		ConfirmTimeout: cfg.Polling.ConfirmTimeout(),
		Observer:       s.metrics,
		Notify:         notify,
		Decode:         s.staking.Events,
	})
	s.flow = tx.NewStakeFlow(s.account.Address, s.token, s.staking, s.txs)

	logging.Debug("session ready", logging.Component("cli"),
		logging.ChainID(network.ChainID), logging.Account(s.account.String()))
	return s, nil
}

// unlockAccount finds the wallet password in the stored sources, or prompts
// for it on a terminal.
// checkContracts confirms the pool accepts the configured token and takes
// symbol and decimals from the token when it reports them.
func (s *session) checkContracts(ctx context.Context) error {
	accepted, err := s.staking.StakingToken(ctx)
	switch {
	case err != nil:
		logging.Warn("could not read staking token", logging.Component("cli"), logging.Err(err))
	case accepted != s.token.Address():
		return fmt.Errorf("staking pool %s accepts token %s, configured token is %s",
			s.staking.Address().Hex(), accepted.Hex(), s.token.Address().Hex())
	}

	s.symbol = s.cfg.Staking.TokenSymbol
	if sym, err := s.token.Symbol(ctx); err == nil && sym != "" {
		s.symbol = sym
	}
	if d, err := s.token.Decimals(ctx); err == nil && int(d) != s.cfg.Staking.TokenDecimals {
		logging.Warn("token decimals differ from config, using on-chain value",
			logging.Component("cli"),
			"configured", s.cfg.Staking.TokenDecimals,
			"onchain", d,
		)
		s.cfg.Staking.TokenDecimals = int(d)
	}
	return nil
}

func unlockAccount(ctx context.Context, conn *chain.Conn, cfg *config.Config) (types.Account, error) {
	if !wallet.Exists(cfg.Wallet.KeystoreDir) {
		return types.Disconnected, fmt.Errorf("no wallet found at %s. Create one with: stakedash wallet create", cfg.Wallet.KeystoreDir)
	}

	password, source, err := wallet.ResolvePassword(wallet.DefaultSources(cfg.Wallet.PasswordFile))
	if errors.Is(err, wallet.ErrNoPassword) {
		if !isInteractive() {
			return types.Disconnected, fmt.Errorf("%w: set %s or store it with 'stakedash wallet create'", err, wallet.PasswordEnv)
		}
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		password, err = readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return types.Disconnected, fmt.Errorf("failed to read password: %w", err)
		}
		source = "prompt"
	} else if err != nil {
		return types.Disconnected, err
	}

	acct, err := conn.RequestAccount(ctx, password)
	if err != nil {
		return types.Disconnected, fmt.Errorf("unlocking wallet: %w", err)
	}
	logging.Debug("wallet unlocked", logging.Component("cli"), "source", source)
	return acct, nil
}

// readOnlyAccount unlocks the wallet when a stored password exists and
// otherwise falls back to the keystore address for reads only.
func readOnlyAccount(ctx context.Context, conn *chain.Conn, cfg *config.Config) types.Account {
	if !wallet.Exists(cfg.Wallet.KeystoreDir) {
		return types.Disconnected
	}
	if password, _, err := wallet.ResolvePassword(wallet.DefaultSources(cfg.Wallet.PasswordFile)); err == nil {
		if acct, err := conn.RequestAccount(ctx, password); err == nil {
			return acct
		}
	}
	addr, err := wallet.PeekAddress(cfg.Wallet.KeystoreDir)
	if err != nil {
		return types.Disconnected
	}
	return types.NewAccount(addr)
}

// readPasswordNoEcho reads a line from stdin with echo disabled.
func readPasswordNoEcho() (string, error) {
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func (s *session) formatOptions() format.Options { return s.cfg.FormatOptions() }

func (s *session) amount(v *big.Int) string {
	out, err := format.FormatTokenAmount(v, s.formatOptions(), s.symbol)
	if err != nil {
		return "-"
	}
	return out
}

func (s *session) rewardAmount(v *big.Int) string {
	out, err := format.FormatTokenAmount(v, s.cfg.RewardFormatOptions(), s.symbol)
	if err != nil {
		return "-"
	}
	return out
}

func (s *session) apy() string {
	out, err := format.FormatFloat(s.cfg.Staking.APY, 2)
	if err != nil {
		return "-"
	}
	return out + "%"
}

// minStake is the configured minimum in base units. Load validated it.
func (s *session) minStake() *big.Int {
	v, err := format.ToBaseUnits(s.cfg.Staking.MinStakeAmount, s.cfg.Staking.TokenDecimals)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// Close stops the reader, metrics server and connection.
func (s *session) Close() {
	if s.reader != nil {
		s.reader.Close()
	}
	if s.conn != nil {
		s.conn.Stop()
	}
	s.cancel()
}

func printNotification(n tx.Notification) {
	switch n.Kind {
	case tx.NotifyConfirmed:
		Success(n.Message)
		for _, ev := range n.Events {
			fmt.Println(Hint(ev.String()))
		}
	case tx.NotifyFailed:
		Error(n.Message)
	default:
		Info(n.Message)
	}
}
