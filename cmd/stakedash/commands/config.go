package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stakedash/stakedash/internal/config"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long: `Create or inspect the config file (default ~/.stakedash/config.yaml).

Environment variables override file values, for example:
  STAKEDASH_NETWORK, STAKEDASH_RPC_URL, STAKEDASH_TOKEN_ADDRESS,
  STAKEDASH_STAKING_ADDRESS, STAKEDASH_TOKEN_DECIMALS, STAKEDASH_APY`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		network string
		rpcURL  string
		token   string
		staking string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if network == "" {
				network = cfg.ActiveNetwork
			}

			if isInteractive() && token == "" && staking == "" {
				if err := configForm(cfg, &network, &rpcURL, &token, &staking); err != nil {
					return err
				}
			}

			if err := cfg.SetActive(network); err != nil {
				return err
			}
			n := cfg.Networks[network]
			if rpcURL != "" {
				n.RPCURL = rpcURL
			}
			n.TokenAddress = token
			n.StakingAddress = staking
			if err := cfg.AddNetwork(network, n); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			Success("Config written to " + path)
			if token == "" || staking == "" {
				fmt.Println(Hint("Set token_address and staking_address before running chain commands."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	cmd.Flags().StringVar(&network, "network", "", "Active network (default sepolia)")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "Override the network's RPC URL")
	cmd.Flags().StringVar(&token, "token", "", "Token contract address")
	cmd.Flags().StringVar(&staking, "staking", "", "Staking contract address")

	return cmd
}

func configForm(cfg *config.Config, network, rpcURL, token, staking *string) error {
	var options []huh.Option[string]
	for _, name := range cfg.NetworkNames() {
		n := cfg.Networks[name]
		options = append(options, huh.NewOption(fmt.Sprintf("%s (chain %d)", name, n.ChainID), name))
	}
	validAddr := func(label string) func(string) error {
		return func(s string) error {
			if s == "" {
				return nil
			}
			return config.ValidateEthAddress(label, s)
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Network").
				Options(options...).
				Value(network),
			huh.NewInput().
				Title("RPC URL").
				Description("Leave empty for the network default").
				Value(rpcURL),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Token contract address").
				Placeholder("0x...").
				Validate(validAddr("token_address")).
				Value(token),
			huh.NewInput().
				Title("Staking contract address").
				Placeholder("0x...").
				Validate(validAddr("staking_address")).
				Value(staking),
		),
	).WithTheme(huh.ThemeBase()).Run()
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the config file, .env and environment overrides.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath())
		},
	}
}
