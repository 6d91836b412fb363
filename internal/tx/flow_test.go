package tx

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000005a4e00")
)

// fakeContracts records the order of write calls.
type fakeContracts struct {
	mu         sync.Mutex
	allowance  *big.Int
	allowErr   error
	approveErr error
	calls      []string
	nonce      uint64
}

func (f *fakeContracts) record(call string) *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.nonce++
	return newTx(f.nonce)
}

func (f *fakeContracts) Allowance(_ context.Context, o, spender common.Address) (*big.Int, error) {
	if o != owner || spender != poolAddr {
		return nil, errors.New("unexpected allowance query")
	}
	return f.allowance, f.allowErr
}

func (f *fakeContracts) Approve(_ context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return f.record("approve:" + amount.String()), nil
}

func (f *fakeContracts) Address() common.Address { return poolAddr }

func (f *fakeContracts) Stake(_ context.Context, amount *big.Int) (*types.Transaction, error) {
	return f.record("stake:" + amount.String()), nil
}

func (f *fakeContracts) Unstake(_ context.Context, amount *big.Int) (*types.Transaction, error) {
	return f.record("unstake:" + amount.String()), nil
}

func (f *fakeContracts) ClaimRewards(context.Context) (*types.Transaction, error) {
	return f.record("claim"), nil
}

func (f *fakeContracts) Compound(context.Context) (*types.Transaction, error) {
	return f.record("compound"), nil
}

func newFlow(f *fakeContracts, w Waiter) *StakeFlow {
	return NewStakeFlow(owner, f, f, NewSet(w, Options{}))
}

func sameCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNeedsApproval(t *testing.T) {
	tests := []struct {
		allowance, amount *big.Int
		want              bool
	}{
		{big.NewInt(0), big.NewInt(1), true},
		{big.NewInt(5), big.NewInt(5), false},
		{big.NewInt(10), big.NewInt(5), false},
		{nil, big.NewInt(1), true},
		{big.NewInt(0), big.NewInt(0), false},
		{big.NewInt(0), nil, false},
	}
	for _, tt := range tests {
		if got := NeedsApproval(tt.allowance, tt.amount); got != tt.want {
			t.Errorf("NeedsApproval(%v, %v) = %v, want %v", tt.allowance, tt.amount, got, tt.want)
		}
	}
}

func TestStakeFlow(t *testing.T) {
	tests := []struct {
		name      string
		allowance int64
		want      []string
	}{
		{"approves when allowance short", 10, []string{"approve:100", "stake:100"}},
		{"skips approval when sufficient", 100, []string{"stake:100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeContracts{allowance: big.NewInt(tt.allowance)}
			flow := newFlow(f, okWaiter())

			st, err := flow.Stake(context.Background(), big.NewInt(100))
			if err != nil {
				t.Fatalf("Stake() error = %v", err)
			}
			if st.Action != ActionStake || st.Phase != PhaseConfirmed {
				t.Errorf("state = %+v", st)
			}
			if !sameCalls(f.calls, tt.want) {
				t.Errorf("calls = %v, want %v", f.calls, tt.want)
			}
		})
	}
}

func TestStakeFlowApproveFails(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		f := &fakeContracts{allowance: big.NewInt(0), approveErr: errors.New("insufficient funds for gas")}
		flow := newFlow(f, okWaiter())

		st, err := flow.Stake(context.Background(), big.NewInt(100))
		if !errors.Is(err, ErrProviderRejected) {
			t.Fatalf("Stake() error = %v, want ErrProviderRejected", err)
		}
		if st.Action != ActionApprove || st.Phase != PhaseFailed {
			t.Errorf("state = %+v, want failed approve", st)
		}
		if len(f.calls) != 0 {
			t.Errorf("calls = %v, want none", f.calls)
		}
		if flow.Trackers().Tracker(ActionStake).State().Phase != PhaseIdle {
			t.Error("stake tracker left idle state")
		}
	})

	t.Run("reverted", func(t *testing.T) {
		f := &fakeContracts{allowance: big.NewInt(0)}
		flow := newFlow(f, &fakeWaiter{status: types.ReceiptStatusFailed})

		_, err := flow.Stake(context.Background(), big.NewInt(100))
		if !errors.Is(err, ErrTransactionReverted) {
			t.Fatalf("Stake() error = %v, want ErrTransactionReverted", err)
		}
		if !sameCalls(f.calls, []string{"approve:100"}) {
			t.Errorf("calls = %v, stake must not be attempted", f.calls)
		}
	})
}

func TestStakeFlowAllowanceError(t *testing.T) {
	f := &fakeContracts{allowErr: errors.New("rpc down")}
	flow := newFlow(f, okWaiter())
	if _, err := flow.Stake(context.Background(), big.NewInt(1)); err == nil {
		t.Fatal("Stake() error = nil")
	}
	if len(f.calls) != 0 {
		t.Errorf("calls = %v, want none", f.calls)
	}
}

func TestStakeFlowOtherActions(t *testing.T) {
	f := &fakeContracts{}
	flow := newFlow(f, okWaiter())
	ctx := context.Background()

	if _, err := flow.Unstake(ctx, big.NewInt(7)); err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Compound(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"unstake:7", "claim", "compound"}
	if !sameCalls(f.calls, want) {
		t.Errorf("calls = %v, want %v", f.calls, want)
	}
	if flow.Trackers().AnyPending() {
		t.Error("AnyPending() = true after all runs finished")
	}
}

func TestSetTrackers(t *testing.T) {
	s := NewSet(okWaiter(), Options{})
	for _, a := range Actions {
		if s.Tracker(a).Action() != a {
			t.Errorf("Tracker(%s).Action() = %s", a, s.Tracker(a).Action())
		}
	}
	defer func() {
		if recover() == nil {
			t.Error("Tracker(unknown) did not panic")
		}
	}()
	s.Tracker(Action(99))
}
