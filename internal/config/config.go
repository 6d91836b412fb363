package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/stakedash/stakedash/internal/format"
	"gopkg.in/yaml.v3"
)

// ErrMissingValue is returned when a required setting is absent.
var ErrMissingValue = errors.New("missing required configuration value")

// EnvPrefix is the prefix for environment overrides, e.g. STAKEDASH_RPC_URL.
const EnvPrefix = "STAKEDASH"

// Config represents the complete client configuration
type Config struct {
	ActiveNetwork string                   `yaml:"active_network"`
	Networks      map[string]NetworkConfig `yaml:"networks"`
	Staking       StakingConfig            `yaml:"staking"`
	Wallet        WalletConfig             `yaml:"wallet"`
	Polling       PollingConfig            `yaml:"polling"`
	Display       DisplayConfig            `yaml:"display"`
	Log           LogConfig                `yaml:"log"`
	Metrics       MetricsConfig            `yaml:"metrics"`
}

// NetworkConfig describes one chain and where the contracts live on it
type NetworkConfig struct {
	Name               string `yaml:"name"`
	ChainID            int64  `yaml:"chain_id"`
	RPCURL             string `yaml:"rpc_url"`
	WSEndpoint         string `yaml:"ws_endpoint,omitempty"`
	TokenAddress       string `yaml:"token_address"`
	StakingAddress     string `yaml:"staking_address"`
	BlockConfirmations int    `yaml:"block_confirmations"`
	ExplorerURL        string `yaml:"explorer_url,omitempty"`
}

// StakingConfig holds token and display economics
type StakingConfig struct {
	TokenSymbol    string  `yaml:"token_symbol"`
	TokenDecimals  int     `yaml:"token_decimals"`
	MinStakeAmount string  `yaml:"min_stake_amount"` // display units, e.g. "0.01"
	APY            float64 `yaml:"apy"`              // percent, display only
}

// WalletConfig locates the signing account
type WalletConfig struct {
	KeystoreDir  string `yaml:"keystore_dir"`
	PasswordFile string `yaml:"password_file,omitempty"`
}

// PollingConfig controls read refresh and transaction waits
type PollingConfig struct {
	IntervalSecs       int     `yaml:"interval_secs"`
	ConfirmTimeoutSecs int     `yaml:"confirm_timeout_secs"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"` // 0 = unlimited
	BlockTimeSecs      int     `yaml:"block_time_secs"`
}

// DisplayConfig controls number formatting
type DisplayConfig struct {
	Precision       int `yaml:"precision"`
	RewardPrecision int `yaml:"reward_precision"`
	AddressChars    int `yaml:"address_chars"`
}

// LogConfig selects log level and handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"` // empty disables
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".stakedash")

	return &Config{
		ActiveNetwork: "sepolia",
		Networks: map[string]NetworkConfig{
			"sepolia": {
				Name:               "Sepolia",
				ChainID:            11155111,
				RPCURL:             "https://rpc.sepolia.org",
				BlockConfirmations: 1,
				ExplorerURL:        "https://sepolia.etherscan.io",
			},
			"localhost": {
				Name:       "Localhost",
				ChainID:    31337,
				RPCURL:     "http://127.0.0.1:8545",
				WSEndpoint: "ws://127.0.0.1:8545",
			},
		},
		Staking: StakingConfig{
			TokenSymbol:    "MTK",
			TokenDecimals:  18,
			MinStakeAmount: "0.01",
			APY:            15,
		},
		Wallet: WalletConfig{
			KeystoreDir: filepath.Join(dataDir, "keystore"),
		},
		Polling: PollingConfig{
			IntervalSecs:       5,
			ConfirmTimeoutSecs: 120,
			RequestsPerSecond:  10,
			BlockTimeSecs:      12,
		},
		Display: DisplayConfig{
			Precision:       4,
			RewardPrecision: 6,
			AddressChars:    4,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from file, then applies a .env file in the
// working directory and STAKEDASH_* environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv(newEnv())
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// godotenv.Load never overrides variables already set in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// newEnv binds the override keys. The second name on each key is the
// variable used by the original web dashboard's .env files.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	_ = v.BindEnv("token_address", EnvPrefix+"_TOKEN_ADDRESS", "NEXT_PUBLIC_TOKEN_ADDRESS")
	_ = v.BindEnv("staking_address", EnvPrefix+"_STAKING_ADDRESS", "NEXT_PUBLIC_STAKING_ADDRESS")
	return v
}

// applyEnv overlays environment values. Network-scoped keys apply to the
// active network after STAKEDASH_NETWORK has been resolved.
func (c *Config) applyEnv(v *viper.Viper) {
	if v.IsSet("network") {
		c.ActiveNetwork = v.GetString("network")
	}

	if net, ok := c.Networks[c.ActiveNetwork]; ok {
		if v.IsSet("chain_id") {
			net.ChainID = v.GetInt64("chain_id")
		}
		if v.IsSet("rpc_url") {
			net.RPCURL = v.GetString("rpc_url")
		}
		if v.IsSet("ws_endpoint") {
			net.WSEndpoint = v.GetString("ws_endpoint")
		}
		if v.IsSet("token_address") {
			net.TokenAddress = v.GetString("token_address")
		}
		if v.IsSet("staking_address") {
			net.StakingAddress = v.GetString("staking_address")
		}
		c.Networks[c.ActiveNetwork] = net
	}

	if v.IsSet("token_decimals") {
		c.Staking.TokenDecimals = v.GetInt("token_decimals")
	}
	if v.IsSet("min_stake_amount") {
		c.Staking.MinStakeAmount = v.GetString("min_stake_amount")
	}
	if v.IsSet("apy") {
		c.Staking.APY = v.GetFloat64("apy")
	}
	if v.IsSet("keystore_dir") {
		c.Wallet.KeystoreDir = v.GetString("keystore_dir")
	}
	if v.IsSet("log_level") {
		c.Log.Level = v.GetString("log_level")
	}
	if v.IsSet("metrics_addr") {
		c.Metrics.ListenAddr = v.GetString("metrics_addr")
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ActiveNetwork == "" {
		return fmt.Errorf("%w: active_network", ErrMissingValue)
	}
	if _, ok := c.Networks[c.ActiveNetwork]; !ok {
		return fmt.Errorf("unknown active_network %q (known: %s)", c.ActiveNetwork, strings.Join(c.NetworkNames(), ", "))
	}
	for name, n := range c.Networks {
		if err := n.validate(name); err != nil {
			return err
		}
	}

	if c.Staking.TokenDecimals < 0 || c.Staking.TokenDecimals > format.MaxDecimals {
		return fmt.Errorf("invalid token_decimals: %d", c.Staking.TokenDecimals)
	}
	if c.Staking.MinStakeAmount == "" {
		return fmt.Errorf("%w: min_stake_amount", ErrMissingValue)
	}
	if _, err := format.ToBaseUnits(c.Staking.MinStakeAmount, c.Staking.TokenDecimals); err != nil {
		return fmt.Errorf("invalid min_stake_amount: %w", err)
	}
	if c.Staking.APY < 0 {
		return fmt.Errorf("apy must not be negative, got %v", c.Staking.APY)
	}

	if c.Polling.IntervalSecs < 1 {
		return fmt.Errorf("polling.interval_secs must be at least 1")
	}
	if c.Polling.ConfirmTimeoutSecs < 1 {
		return fmt.Errorf("polling.confirm_timeout_secs must be at least 1")
	}
	if c.Polling.RequestsPerSecond < 0 {
		return fmt.Errorf("polling.requests_per_second must not be negative")
	}
	if c.Display.Precision < 0 || c.Display.RewardPrecision < 0 {
		return fmt.Errorf("display precision must not be negative")
	}
	return nil
}

func (n NetworkConfig) validate(name string) error {
	if n.ChainID <= 0 {
		return fmt.Errorf("%w: networks.%s.chain_id", ErrMissingValue, name)
	}
	if n.RPCURL == "" {
		return fmt.Errorf("%w: networks.%s.rpc_url", ErrMissingValue, name)
	}
	if n.BlockConfirmations < 0 {
		return fmt.Errorf("networks.%s.block_confirmations must not be negative", name)
	}
	// Addresses may be blank here; resolving a contract binding reports them.
	for field, addr := range map[string]string{"token_address": n.TokenAddress, "staking_address": n.StakingAddress} {
		if addr == "" {
			continue
		}
		if err := ValidateEthAddress(fmt.Sprintf("networks.%s.%s", name, field), addr); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEthAddress checks that an address is 0x-prefixed, 40 hex chars, and non-zero.
func ValidateEthAddress(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: %s", ErrMissingValue, name)
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%s must start with 0x, got %q", name, addr)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return fmt.Errorf("%s must be 42 characters (0x + 40 hex), got %d", name, len(addr))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("%s contains invalid hex characters: %w", name, err)
	}
	if strings.Trim(hexPart, "0") == "" {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

// Active returns the active network settings.
func (c *Config) Active() (NetworkConfig, error) {
	net, ok := c.Networks[c.ActiveNetwork]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unknown network %q", c.ActiveNetwork)
	}
	if net.Name == "" {
		net.Name = c.ActiveNetwork
	}
	return net, nil
}

// SetActive switches the active network. The network must already exist.
func (c *Config) SetActive(name string) error {
	if _, ok := c.Networks[name]; !ok {
		return fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(c.NetworkNames(), ", "))
	}
	c.ActiveNetwork = name
	return nil
}

// AddNetwork registers or replaces a network definition.
func (c *Config) AddNetwork(key string, n NetworkConfig) error {
	if key == "" {
		return fmt.Errorf("%w: network name", ErrMissingValue)
	}
	if err := n.validate(key); err != nil {
		return err
	}
	if c.Networks == nil {
		c.Networks = make(map[string]NetworkConfig)
	}
	c.Networks[key] = n
	return nil
}

// NetworkByChainID finds the configured network key for chainID.
func (c *Config) NetworkByChainID(chainID int64) (string, bool) {
	for _, key := range c.NetworkNames() {
		if c.Networks[key].ChainID == chainID {
			return key, true
		}
	}
	return "", false
}

// NetworkNames returns the configured network keys in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSecs) * time.Second
}

func (p PollingConfig) ConfirmTimeout() time.Duration {
	return time.Duration(p.ConfirmTimeoutSecs) * time.Second
}

func (p PollingConfig) BlockTime() time.Duration {
	return time.Duration(p.BlockTimeSecs) * time.Second
}

// FormatOptions returns the token formatting options for amounts.
func (c *Config) FormatOptions() format.Options {
	return format.Options{Decimals: c.Staking.TokenDecimals, Precision: c.Display.Precision}
}

// RewardFormatOptions returns the options for reward figures, shown with more digits.
func (c *Config) RewardFormatOptions() format.Options {
	return format.Options{Decimals: c.Staking.TokenDecimals, Precision: c.Display.RewardPrecision}
}

func (c *Config) expandPaths() {
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".stakedash", "config.yaml")
}
