package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/internal/dashboard"
	"github.com/stakedash/stakedash/internal/format"
	"github.com/stakedash/stakedash/internal/reader"
	"github.com/stakedash/stakedash/internal/tx"
)

func NewStakeCmd() *cobra.Command {
	return newAmountCmd(dashboard.ModeStake)
}

func NewUnstakeCmd() *cobra.Command {
	return newAmountCmd(dashboard.ModeUnstake)
}

func newAmountCmd(mode dashboard.Mode) *cobra.Command {
	var yes bool

	short := "Stake tokens into the pool"
	long := `Stake tokens from your wallet into the staking pool.

If the pool's allowance is below the amount, an approve transaction is sent
and confirmed first. The stake is never sent if the approval fails.

Examples:
  stakedash stake 100
  stakedash stake max
  stakedash stake          # interactive`
	if mode == dashboard.ModeUnstake {
		short = "Withdraw staked tokens"
		long = `Withdraw staked tokens back to your wallet.

Examples:
  stakedash unstake 50
  stakedash unstake max`
	}

	cmd := &cobra.Command{
		Use:   mode.String() + " [amount|max]",
		Short: short,
		Long:  long,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			return runAmountAction(cmd.Context(), mode, input, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runAmountAction(parent context.Context, mode dashboard.Mode, input string, yes bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, sessionOptions{unlock: true})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.refresh(ctx)
	if snap.Err != nil {
		return snap.Err
	}
	form := dashboard.NewAmountForm(mode, snap, cfg.FormatOptions(), s.symbol, s.minStake())

	if input == "" {
		if !isInteractive() {
			return fmt.Errorf("amount required: stakedash %s [amount|max]", mode)
		}
		if input, err = promptAmount(form); err != nil {
			return err
		}
	}

	amount, err := form.Validate(input)
	if err != nil {
		return err
	}
	if form.Pending(s.txs) {
		return fmt.Errorf("%s: %w", mode, tx.ErrActionPending)
	}

	label := form.ButtonLabel(input, false)
	if form.NeedsApproval(amount) {
		Info(fmt.Sprintf("Allowance %s is below %s, approval required first", s.amount(snap.Allowance), s.amount(amount)))
	}
	if !yes && isInteractive() {
		ok, err := confirmAction(fmt.Sprintf("%s %s?", mode.Action().Label(), s.amount(amount)), label)
		if err != nil {
			return err
		}
		if !ok {
			Info("Cancelled, nothing sent")
			return nil
		}
	}

	var st tx.State
	if mode == dashboard.ModeStake {
		st, err = s.flow.Stake(ctx, amount)
	} else {
		st, err = s.flow.Unstake(ctx, amount)
	}
	if err != nil {
		return explainTxError(s, st, err)
	}

	printPosition(s, s.refresh(ctx), st)
	return nil
}

func NewClaimCmd() *cobra.Command {
	return newRewardsCmd(tx.ActionClaim, "claim", "Claim pending rewards to your wallet")
}

func NewCompoundCmd() *cobra.Command {
	return newRewardsCmd(tx.ActionCompound, "compound", "Restake pending rewards")
}

func newRewardsCmd(action tx.Action, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewardsAction(cmd.Context(), action)
		},
	}
}

func runRewardsAction(parent context.Context, action tx.Action) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, sessionOptions{unlock: true})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.refresh(ctx)
	if snap.Err != nil {
		return snap.Err
	}

	apy, err := format.DecFromFloat(cfg.Staking.APY)
	if err != nil {
		return err
	}
	panel := dashboard.NewRewardsPanel(apy, cfg.RewardFormatOptions(), s.symbol)
	panel.Update(snap)
	if !panel.CanClaim(s.txs) {
		Info("No pending rewards")
		return nil
	}
	Info(fmt.Sprintf("Pending rewards: %s", panel.Display(snap.StakeUpdatedAt).PendingStr))
	if accrued, err := s.staking.CalculateRewards(ctx, s.account.Address); err == nil && accrued.Cmp(panel.Pending()) != 0 {
		Info(fmt.Sprintf("Accrued at the latest block: %s", s.rewardAmount(accrued)))
	}

	var st tx.State
	if action == tx.ActionCompound {
		st, err = s.flow.Compound(ctx)
	} else {
		st, err = s.flow.Claim(ctx)
	}
	if err != nil {
		return explainTxError(s, st, err)
	}

	printPosition(s, s.refresh(ctx), st)
	return nil
}

func promptAmount(form *dashboard.AmountForm) (string, error) {
	var input string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Amount to %s", form.Mode())).
				Description(fmt.Sprintf("Available: %s (type %q for all)", form.Available(), dashboard.MaxKeyword)).
				Placeholder(form.MaxDisplay()).
				Validate(func(v string) error {
					_, err := form.Validate(v)
					return err
				}).
				Value(&input),
		),
	).WithTheme(huh.ThemeBase()).Run()
	return input, err
}

func confirmAction(title, affirmative string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative(affirmative).
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeBase()).Run()
	return ok, err
}

func explainTxError(s *session, st tx.State, err error) error {
	if errors.Is(err, tx.ErrActionPending) {
		return err
	}
	if st.TxHash != (common.Hash{}) && s.network.ExplorerURL != "" {
		fmt.Println(Hint(fmt.Sprintf("%s/tx/%s", s.network.ExplorerURL, st.TxHash.Hex())))
	}
	return fmt.Errorf("%s: %s", st.Action, tx.FailureReason(err))
}

func printPosition(s *session, snap reader.Snapshot, st tx.State) {
	fields := [][2]string{
		{"Transaction", st.TxHash.Hex()},
	}
	if st.Receipt != nil && st.Receipt.BlockNumber != nil {
		fields = append(fields, [2]string{"Block", st.Receipt.BlockNumber.String()})
	}
	fields = append(fields,
		[2]string{"Staked", s.amount(snap.StakeInfo.StakedAmount)},
		[2]string{"Rewards", s.amount(snap.StakeInfo.PendingRewards)},
		[2]string{"Balance", s.amount(snap.Balance)},
		[2]string{"Total value", s.amount(snap.TotalValue())},
	)
	if s.network.ExplorerURL != "" {
		fields = append(fields, [2]string{"Explorer", s.network.ExplorerURL + "/tx/" + st.TxHash.Hex()})
	}
	fmt.Println(StatusBox(st.Action.Label()+" confirmed", fields))
}
