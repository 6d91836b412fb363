package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/internal/chain"
	"github.com/stakedash/stakedash/internal/config"
	"github.com/stakedash/stakedash/internal/dashboard"
	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/internal/metrics"
	"github.com/stakedash/stakedash/internal/reader"
)

// errRebind asks the dashboard loop to reopen its session on another network.
var errRebind = errors.New("network changed")

func NewDashboardCmd() *cobra.Command {
	var refresh int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Live staking dashboard",
		Long: `Display a live dashboard for the connected wallet.

Shows:
- Total staked in the pool and the APY
- Your stake, pending rewards and total value
- Wallet balance
- A reward estimate between polls

Press Ctrl+C to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if refresh > 0 {
				cfg.Polling.IntervalSecs = refresh
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				err := runDashboard(ctx, cfg)
				if !errors.Is(err, errRebind) {
					return err
				}
				Info(fmt.Sprintf("Switched to %s, reconnecting...", cfg.ActiveNetwork))
			}
		},
	}

	cmd.Flags().IntVarP(&refresh, "refresh", "r", 0, "Poll interval in seconds (default from config)")

	return cmd
}

// dashboardView is everything one frame renders.
type dashboardView struct {
	network   string
	chainID   int64
	account   string
	connected bool
	snap      reader.Snapshot
	cards     []dashboard.Card
	rewards   dashboard.RewardsView
	share     string
	interval  time.Duration
}

func runDashboard(ctx context.Context, cfg *config.Config) error {
	var s *session
	err := WithSpinner("Connecting to "+cfg.ActiveNetwork, func() error {
		var err error
		s, err = openSession(ctx, cfg, sessionOptions{})
		return err
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.conn.Start(ctx); err != nil {
		return err
	}
	events, unsubscribeConn := s.conn.Subscribe()
	defer unsubscribeConn()
	snaps, unsubscribeReader := s.reader.Subscribe()
	defer unsubscribeReader()
	s.reader.Start(ctx)

	apy, err := format.DecFromFloat(cfg.Staking.APY)
	if err != nil {
		return err
	}
	grid := dashboard.NewStatsGrid(apy, cfg.FormatOptions(), s.symbol)
	rewards := dashboard.NewRewardsPanel(apy, cfg.RewardFormatOptions(), s.symbol)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	connected := true
	snap := s.reader.Snapshot()
	render := func() {
		now := time.Now()
		view := dashboardView{
			network:   s.network.Name,
			chainID:   s.network.ChainID,
			account:   shortAccount(cfg, snap),
			connected: connected,
			snap:      snap,
			cards:     grid.Cards(snap),
			rewards:   rewards.Display(now),
			share:     dashboard.Share(snap),
			interval:  cfg.Polling.Interval(),
		}
		clearScreen()
		fmt.Println(renderDashboard(view))
	}
	render()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nExiting dashboard...")
			fmt.Println(Hint(sessionLine(s.metrics.Summary())))
			return nil

		case next, ok := <-snaps:
			if !ok {
				return nil
			}
			snap = next
			rewards.Update(snap)
			if snap.Err == nil && !snap.UpdatedAt.IsZero() {
				s.metrics.MarkRefreshed(snap.UpdatedAt)
			}
			render()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case chain.AccountChanged:
				s.reader.SetAccount(ev.Account)
			case chain.Disconnected:
				connected = false
				s.metrics.SetConnected(false)
				logging.Warn("provider unavailable", logging.Component("cli"), logging.Err(ev.Err))
			case chain.NetworkChanged:
				connected = true
				s.metrics.SetConnected(true)
				if ev.Network.ChainID != s.network.ChainID {
					name, ok := cfg.NetworkByChainID(ev.Network.ChainID)
					if !ok {
						return fmt.Errorf("wallet moved to unconfigured chain %d", ev.Network.ChainID)
					}
					if err := cfg.SetActive(name); err != nil {
						return err
					}
					return errRebind
				}
			}
			render()

		case <-ticker.C:
			render()
		}
	}
}

func sessionLine(sum metrics.Summary) string {
	return fmt.Sprintf("%d reads (%.1f%% failed, avg %s), %d confirmed / %d failed transactions in %s",
		sum.Reads, sum.ErrorRate()*100, sum.AvgReadLatency.Round(time.Millisecond),
		sum.ConfirmedTxs, sum.FailedTxs, sum.Uptime.Round(time.Second))
}

func shortAccount(cfg *config.Config, snap reader.Snapshot) string {
	if !snap.Account.Connected() {
		return "not connected"
	}
	short, err := format.ShortenIdentifier(snap.Account.Address.Hex(), cfg.Display.AddressChars)
	if err != nil {
		return snap.Account.Address.Hex()
	}
	return short
}

func renderDashboard(v dashboardView) string {
	var sb strings.Builder

	status := "connected"
	if !v.connected {
		status = "disconnected"
	} else if v.snap.IsLoading {
		status = "loading"
	}
	sb.WriteString(fmt.Sprintf("%s  %s (chain %d)  %s  %s\n\n",
		Logo(), v.network, v.chainID, v.account, StatusBadge(status)))

	sb.WriteString(RenderCards(v.cards, 3))
	sb.WriteString("\n")

	if v.snap.Account.Connected() {
		fields := [][2]string{
			{"On-chain", v.rewards.PendingStr},
		}
		if v.rewards.IsEstimate {
			fields = append(fields, [2]string{"Estimated", v.rewards.EstimatedStr + " (est.)"})
			fields = append(fields, [2]string{"Since poll", v.rewards.SinceStr})
		}
		fields = append(fields, [2]string{"Pool share", v.share})
		sb.WriteString(StatusBox("Rewards", fields))
		sb.WriteString("\n")
	} else {
		sb.WriteString(Hint("No wallet connected. Create one with: stakedash wallet create"))
		sb.WriteString("\n")
	}

	if v.snap.Err != nil {
		sb.WriteString(StyleWarning.Render("  Network unavailable, showing last known values"))
		sb.WriteString("\n")
	}
	updated := "never"
	if !v.snap.UpdatedAt.IsZero() {
		updated = v.snap.UpdatedAt.Format("15:04:05")
	}
	sb.WriteString(Hint(fmt.Sprintf("Updated %s, polling every %s. Press Ctrl+C to exit.", updated, v.interval)))
	return sb.String()
}

func clearScreen() {
	if isTTY() {
		fmt.Print("\033[H\033[2J")
	}
}
