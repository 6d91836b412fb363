package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/internal/dashboard"
	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/metrics"
	"github.com/stakedash/stakedash/internal/reader"
)

// statsReport is the --json form of stats. Amounts are exact display units.
type statsReport struct {
	Network        string    `json:"network"`
	ChainID        int64     `json:"chain_id"`
	Account        string    `json:"account,omitempty"`
	Symbol         string    `json:"symbol"`
	TotalStaked    string    `json:"total_staked"`
	YourStake      string    `json:"your_stake"`
	PendingRewards string    `json:"pending_rewards"`
	TotalValue     string    `json:"total_value"`
	WalletBalance  string    `json:"wallet_balance"`
	Allowance      string    `json:"allowance"`
	APY            float64   `json:"apy"`
	Share          string    `json:"share"`
	UpdatedAt      time.Time `json:"updated_at"`
	Error          string    `json:"error,omitempty"`

	Session *metrics.Summary `json:"session,omitempty"`
}

func NewStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pool and account statistics once",
		Long:  "Read the staking pool and your position once and print them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			s, err := openSession(ctx, cfg, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			var snap reader.Snapshot
			fetch := func() error {
				snap, _ = s.reader.Refetch(ctx)
				return nil
			}
			if asJSON {
				_ = fetch()
			} else if err := WithSpinner("Reading staking pool", fetch); err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(s.report(snap), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			apy, err := format.DecFromFloat(cfg.Staking.APY)
			if err != nil {
				return err
			}
			grid := dashboard.NewStatsGrid(apy, cfg.FormatOptions(), s.symbol)
			fmt.Println(RenderCards(grid.Cards(snap), 3))
			if snap.Account.Connected() {
				fmt.Println(KeyValue("Allowance", s.amount(snap.Allowance)))
				fmt.Println(KeyValue("Pool share", dashboard.Share(snap)))
			}
			if snap.Err != nil {
				Warning(snap.Err.Error())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func (s *session) report(snap reader.Snapshot) statsReport {
	decimals := s.cfg.Staking.TokenDecimals
	units := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		out, err := format.ToDisplayUnits(v, decimals)
		if err != nil {
			return "0"
		}
		return out
	}

	r := statsReport{
		Network:        s.network.Name,
		ChainID:        s.network.ChainID,
		Symbol:         s.symbol,
		TotalStaked:    units(snap.TotalStaked),
		YourStake:      units(snap.StakeInfo.StakedAmount),
		PendingRewards: units(snap.StakeInfo.PendingRewards),
		TotalValue:     units(snap.TotalValue()),
		WalletBalance:  units(snap.Balance),
		Allowance:      units(snap.Allowance),
		APY:            s.cfg.Staking.APY,
		Share:          dashboard.Share(snap),
		UpdatedAt:      snap.UpdatedAt,
	}
	if snap.Account.Connected() {
		r.Account = snap.Account.Address.Hex()
	}
	if snap.Err != nil {
		r.Error = snap.Err.Error()
	}
	if s.metrics != nil {
		sum := s.metrics.Summary()
		r.Session = &sum
	}
	return r
}

// refresh refetches every read and returns the snapshot, showing a spinner.
func (s *session) refresh(ctx context.Context) reader.Snapshot {
	var snap reader.Snapshot
	_ = WithSpinner("Refreshing balances", func() error {
		snap, _ = s.reader.Refetch(ctx)
		return nil
	})
	return snap
}
