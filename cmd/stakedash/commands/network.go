package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/internal/chain"
	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/util"
)

func NewNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "List, switch or add networks",
	}

	cmd.AddCommand(newNetworkListCmd())
	cmd.AddCommand(newNetworkSwitchCmd())
	cmd.AddCommand(newNetworkAddCmd())

	return cmd
}

func newNetworkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var rows [][]string
			for _, name := range cfg.NetworkNames() {
				n := cfg.Networks[name]
				active := ""
				if name == cfg.ActiveNetwork {
					active = "*"
				}
				rows = append(rows, []string{
					active,
					name,
					strconv.FormatInt(n.ChainID, 10),
					n.RPCURL,
					orDash(n.TokenAddress),
					orDash(n.StakingAddress),
				})
			}
			fmt.Println(RenderTable([]string{"", "NAME", "CHAIN", "RPC", "TOKEN", "STAKING"}, rows))
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newNetworkSwitchCmd() *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "switch [name]",
		Short: "Make a configured network active",
		Long: `Make a configured network active and save the choice.

The RPC endpoint is dialed first and its chain id compared with the
configured one. Use --skip-verify to switch while offline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, ok := cfg.Networks[name]; !ok {
				return fmt.Errorf("unknown network %q (see: stakedash network list)", name)
			}

			if !skipVerify {
				backoff := util.DefaultBackoff()
				backoff.MaxRetries = 1
				conn, err := chain.New(cfg, chain.Options{Backoff: backoff})
				if err != nil {
					return err
				}
				err = WithSpinner("Verifying "+name, func() error {
					return conn.SwitchNetwork(cmd.Context(), name)
				})
				conn.Stop()
				if err != nil {
					return fmt.Errorf("network %s not reachable: %w", name, err)
				}
			}

			if err := cfg.SetActive(name); err != nil {
				return err
			}
			if err := cfg.Save(configPath()); err != nil {
				return err
			}
			n, _ := cfg.Active()
			Success(fmt.Sprintf("Active network: %s (chain %d)", n.Name, n.ChainID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Do not dial the network before switching")

	return cmd
}

func newNetworkAddCmd() *cobra.Command {
	var n config.NetworkConfig
	var activate bool

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add or replace a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n.Name = args[0]
			if err := cfg.AddNetwork(args[0], n); err != nil {
				return err
			}
			if activate {
				if err := cfg.SetActive(args[0]); err != nil {
					return err
				}
			}
			if err := cfg.Save(configPath()); err != nil {
				return err
			}
			Success(fmt.Sprintf("Network %s saved", args[0]))
			return nil
		},
	}

	cmd.Flags().Int64Var(&n.ChainID, "chain-id", 0, "Chain ID")
	cmd.Flags().StringVar(&n.RPCURL, "rpc-url", "", "JSON-RPC endpoint")
	cmd.Flags().StringVar(&n.TokenAddress, "token", "", "Token contract address")
	cmd.Flags().StringVar(&n.StakingAddress, "staking", "", "Staking contract address")
	cmd.Flags().IntVar(&n.BlockConfirmations, "confirmations", 1, "Blocks to wait after inclusion")
	cmd.Flags().StringVar(&n.ExplorerURL, "explorer", "", "Block explorer base URL")
	cmd.Flags().BoolVar(&activate, "activate", false, "Make the network active")

	return cmd
}
