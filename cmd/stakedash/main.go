package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/cmd/stakedash/commands"
)

var rootCmd = &cobra.Command{
	Use:           "stakedash",
	Short:         "Staking dashboard and client for an EVM staking pool",
	Long:          "Stake tokens, watch rewards accrue, and claim or compound them from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "Config file (default ~/.stakedash/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&commands.NetworkName, "network", "n", "", "Network to use for this command")
	rootCmd.PersistentFlags().StringVar(&commands.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	rootCmd.AddCommand(commands.NewDashboardCmd())
	rootCmd.AddCommand(commands.NewStatsCmd())
	rootCmd.AddCommand(commands.NewStakeCmd())
	rootCmd.AddCommand(commands.NewUnstakeCmd())
	rootCmd.AddCommand(commands.NewClaimCmd())
	rootCmd.AddCommand(commands.NewCompoundCmd())
	rootCmd.AddCommand(commands.NewWalletCmd())
	rootCmd.AddCommand(commands.NewNetworkCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
