package reader

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/stakedash/stakedash/pkg/types"
)

// StakingSource is the staking pool's read surface.
type StakingSource interface {
	GetStakeInfo(ctx context.Context, user common.Address) (types.StakeInfo, error)
	TotalStaked(ctx context.Context) (*big.Int, error)
}

// TokenSource is the token's read surface.
type TokenSource interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// Snapshot aggregates one refresh of every query.
//
// IsLoading covers the account-scoped reads only and is always false with no
// account. TotalLoading reports the pool-wide totalStaked read separately.
type Snapshot struct {
	Account      types.Account
	StakeInfo    types.StakeInfo
	Balance      *big.Int
	Allowance    *big.Int
	TotalStaked  *big.Int
	IsLoading    bool
	TotalLoading bool
	Err          error
	// UpdatedAt is the newest update across all reads.
	UpdatedAt time.Time
	// StakeUpdatedAt is when StakeInfo was last fetched successfully.
	StakeUpdatedAt time.Time
}

// TotalValue is staked plus pending rewards, derived on every call.
func (s Snapshot) TotalValue() *big.Int {
	return s.StakeInfo.Total()
}

// Options configures a StakeReader.
type Options struct {
	PollInterval time.Duration
	Limiter      *rate.Limiter
	Observer     Observer
}

type accountQueries struct {
	account   types.Account
	stakeInfo *Query[types.StakeInfo]
	balance   *Query[*big.Int]
	allowance *Query[*big.Int]
}

func (a *accountQueries) close() {
	a.stakeInfo.Close()
	a.balance.Close()
	a.allowance.Close()
}

// StakeReader polls the connected account's position, token balance and
// allowance, and the pool's total stake.
type StakeReader struct {
	staking StakingSource
	token   TokenSource
	spender common.Address
	opts    Options
	group   singleflight.Group

	total *Query[*big.Int]

	mu       sync.Mutex
	acct     *accountQueries
	startCtx context.Context
	closed   bool

	subsMu sync.Mutex
	subs   map[chan Snapshot]struct{}
}

// NewStakeReader builds a reader. spender is the staking pool address used
// for the allowance read.
func NewStakeReader(staking StakingSource, token TokenSource, spender common.Address, opts Options) *StakeReader {
	r := &StakeReader{
		staking: staking,
		token:   token,
		spender: spender,
		opts:    opts,
		subs:    make(map[chan Snapshot]struct{}),
	}
	r.total = NewQuery("totalStaked", func(ctx context.Context) (*big.Int, error) {
		return staking.TotalStaked(ctx)
	}, r.queryOptions("totalStaked"))
	return r
}

func (r *StakeReader) queryOptions(label string) QueryOptions {
	return QueryOptions{
		PollInterval: r.opts.PollInterval,
		Label:        label,
		Limiter:      r.opts.Limiter,
		Group:        &r.group,
		Observer:     r.opts.Observer,
		OnUpdate:     r.publish,
	}
}

func (r *StakeReader) newAccountQueries(acct types.Account) *accountQueries {
	addr := acct.Address
	suffix := ":" + addr.Hex()
	return &accountQueries{
		account: acct,
		stakeInfo: NewQuery("getStakeInfo"+suffix, func(ctx context.Context) (types.StakeInfo, error) {
			return r.staking.GetStakeInfo(ctx, addr)
		}, r.queryOptions("getStakeInfo")),
		balance: NewQuery("balanceOf"+suffix, func(ctx context.Context) (*big.Int, error) {
			return r.token.BalanceOf(ctx, addr)
		}, r.queryOptions("balanceOf")),
		allowance: NewQuery("allowance"+suffix, func(ctx context.Context) (*big.Int, error) {
			return r.token.Allowance(ctx, addr, r.spender)
		}, r.queryOptions("allowance")),
	}
}

// Start begins polling. Account queries added later by SetAccount start
// under the same ctx.
func (r *StakeReader) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.startCtx != nil {
		r.mu.Unlock()
		return
	}
	r.startCtx = ctx
	acct := r.acct
	r.mu.Unlock()

	r.total.Start(ctx)
	if acct != nil {
		acct.start(ctx)
	}
}

func (a *accountQueries) start(ctx context.Context) {
	a.stakeInfo.Start(ctx)
	a.balance.Start(ctx)
	a.allowance.Start(ctx)
}

// SetAccount swaps the account-scoped queries. The previous account's
// queries are closed and their in-flight results discarded. A disconnected
// account leaves only the global query running.
func (r *StakeReader) SetAccount(acct types.Account) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.acct != nil && r.acct.account == acct {
		r.mu.Unlock()
		return
	}
	old := r.acct
	r.acct = nil
	if acct.Connected() {
		r.acct = r.newAccountQueries(acct)
	}
	next := r.acct
	ctx := r.startCtx
	r.mu.Unlock()

	if old != nil {
		old.close()
	}
	if next != nil && ctx != nil {
		next.start(ctx)
	}
	r.publish()
}

// Account returns the account the reader is scoped to.
func (r *StakeReader) Account() types.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acct == nil {
		return types.Disconnected
	}
	return r.acct.account
}

// Refetch refreshes every query concurrently and returns the snapshot.
// Callers invoke it after a transaction confirms.
func (r *StakeReader) Refetch(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	acct := r.acct
	r.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { _, err := r.total.Refetch(ctx); return err })
	if acct != nil {
		g.Go(func() error { _, err := acct.stakeInfo.Refetch(ctx); return err })
		g.Go(func() error { _, err := acct.balance.Refetch(ctx); return err })
		g.Go(func() error { _, err := acct.allowance.Refetch(ctx); return err })
	}
	err := g.Wait()
	return r.Snapshot(), err
}

// Snapshot assembles the latest state of every query.
func (r *StakeReader) Snapshot() Snapshot {
	r.mu.Lock()
	acct := r.acct
	r.mu.Unlock()

	snap := Snapshot{
		Account:     types.Disconnected,
		StakeInfo:   types.ZeroStakeInfo(),
		Balance:     new(big.Int),
		Allowance:   new(big.Int),
		TotalStaked: new(big.Int),
	}
	var errs []error

	total := r.total.Latest()
	if total.HasData && total.Data != nil {
		snap.TotalStaked = new(big.Int).Set(total.Data)
	}
	snap.TotalLoading = total.IsLoading
	snap.UpdatedAt = total.UpdatedAt
	if total.Err != nil {
		errs = append(errs, total.Err)
	}

	if acct != nil {
		snap.Account = acct.account

		info := acct.stakeInfo.Latest()
		if info.HasData {
			snap.StakeInfo = info.Data.Copy()
			snap.StakeUpdatedAt = info.UpdatedAt
		}
		bal := acct.balance.Latest()
		if bal.HasData && bal.Data != nil {
			snap.Balance = new(big.Int).Set(bal.Data)
		}
		allow := acct.allowance.Latest()
		if allow.HasData && allow.Data != nil {
			snap.Allowance = new(big.Int).Set(allow.Data)
		}

		snap.IsLoading = info.IsLoading || bal.IsLoading || allow.IsLoading
		for _, st := range []struct {
			err error
			at  time.Time
		}{{info.Err, info.UpdatedAt}, {bal.Err, bal.UpdatedAt}, {allow.Err, allow.UpdatedAt}} {
			if st.err != nil {
				errs = append(errs, st.err)
			}
			if st.at.After(snap.UpdatedAt) {
				snap.UpdatedAt = st.at
			}
		}
	}

	snap.Err = errors.Join(errs...)
	return snap
}

// Subscribe delivers a snapshot after every query update. Only the newest
// snapshot is buffered; a slow reader skips intermediate ones.
func (r *StakeReader) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			if _, ok := r.subs[ch]; ok {
				delete(r.subs, ch)
				close(ch)
			}
		})
	}
}

func (r *StakeReader) publish() {
	snap := r.Snapshot()

	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close stops every query and closes subscriber channels.
func (r *StakeReader) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	acct := r.acct
	r.mu.Unlock()

	r.total.Close()
	if acct != nil {
		acct.close()
	}

	r.subsMu.Lock()
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
	r.subsMu.Unlock()
}
