// Package reader polls contract view calls and keeps the last good value of
// each, so the dashboard always has something to render.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/stakedash/stakedash/internal/logging"
	"github.com/stakedash/stakedash/internal/util"
)

// DefaultPollInterval is used when QueryOptions.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

var (
	// ErrNetworkUnavailable wraps every failed fetch. The previous value is kept.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrClosed is returned by Refetch after Close.
	ErrClosed = errors.New("query closed")
)

// Observer receives one call per provider round trip.
type Observer interface {
	ObserveRead(query string, d time.Duration, err error)
}

// Fetcher performs one view call.
type Fetcher[T any] func(ctx context.Context) (T, error)

// QueryOptions tunes a Query. Zero values select the defaults.
type QueryOptions struct {
	// PollInterval between background refreshes.
	PollInterval time.Duration
	// Label names the query in logs and metrics; defaults to the key.
	Label string
	// Limiter bounds provider calls. Nil is unlimited.
	Limiter *rate.Limiter
	// Group coalesces fetches by key. Queries sharing a Group and a key
	// share in-flight calls.
	Group *singleflight.Group
	// Observer records each call. Nil disables.
	Observer Observer
	// OnUpdate runs after every state change, outside the query's lock.
	OnUpdate func()
}

// State is a query's current view.
type State[T any] struct {
	Data      T
	HasData   bool
	IsLoading bool
	Err       error
	UpdatedAt time.Time
}

// Query is one polled view call.
type Query[T any] struct {
	key   string
	fetch Fetcher[T]
	opts  QueryOptions

	// ctx bounds every fetch; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	state   State[T]
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQuery creates an idle query. Nothing is fetched until Start or Refetch.
func NewQuery[T any](key string, fetch Fetcher[T], opts QueryOptions) *Query[T] {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Label == "" {
		opts.Label = key
	}
	if opts.Group == nil {
		opts.Group = &singleflight.Group{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Query[T]{key: key, fetch: fetch, opts: opts, ctx: ctx, cancel: cancel}
}

func (q *Query[T]) Key() string { return q.key }

// Start fetches immediately and then every PollInterval until Close or ctx
// is done. Calling Start twice is a no-op.
func (q *Query[T]) Start(ctx context.Context) {
	q.mu.Lock()
	if q.closed || q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.wg.Add(1)
	q.mu.Unlock()

	util.Go("query:"+q.opts.Label, func() {
		defer q.wg.Done()
		q.poll(ctx)
	})
}

func (q *Query[T]) poll(ctx context.Context) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := q.Refetch(ctx); errors.Is(err, ErrClosed) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-q.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refetch runs a fetch now, or joins one already in flight for the same key,
// and returns the resulting state. The error is the fetch error, if any;
// the state's Err carries the same failure wrapped in ErrNetworkUnavailable.
func (q *Query[T]) Refetch(ctx context.Context) (State[T], error) {
	q.mu.Lock()
	if q.closed {
		st := q.state
		q.mu.Unlock()
		return st, ErrClosed
	}
	changed := false
	if !q.state.HasData && !q.state.IsLoading {
		q.state.IsLoading = true
		changed = true
	}
	q.mu.Unlock()
	if changed {
		q.notify()
	}

	ch := q.opts.Group.DoChan(q.key, func() (interface{}, error) {
		return q.call()
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return q.Latest(), ctx.Err()
	case <-q.ctx.Done():
		return q.Latest(), ErrClosed
	case res = <-ch:
	}

	return q.apply(res)
}

// call performs the provider round trip under the limiter.
func (q *Query[T]) call() (interface{}, error) {
	if q.opts.Limiter != nil {
		if err := q.opts.Limiter.Wait(q.ctx); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	val, err := q.fetch(q.ctx)
	if q.opts.Observer != nil {
		q.opts.Observer.ObserveRead(q.opts.Label, time.Since(start), err)
	}
	return val, err
}

// apply folds a fetch result into the state unless the query was closed
// while the fetch was in flight.
func (q *Query[T]) apply(res singleflight.Result) (State[T], error) {
	q.mu.Lock()
	if q.closed {
		st := q.state
		q.mu.Unlock()
		return st, ErrClosed
	}

	if res.Err != nil {
		q.state.Err = fmt.Errorf("%w: %s: %v", ErrNetworkUnavailable, q.opts.Label, res.Err)
		q.state.IsLoading = false
		st := q.state
		q.mu.Unlock()

		logging.Debug("query failed, keeping last value",
			logging.Component("reader"), "query", q.opts.Label, logging.Err(res.Err))
		q.notify()
		return st, res.Err
	}

	val, ok := res.Val.(T)
	if !ok && res.Val != nil {
		q.mu.Unlock()
		return q.Latest(), fmt.Errorf("query %s: unexpected result type %T", q.key, res.Val)
	}
	q.state = State[T]{Data: val, HasData: true, UpdatedAt: time.Now()}
	st := q.state
	q.mu.Unlock()

	q.notify()
	return st, nil
}

func (q *Query[T]) notify() {
	if q.opts.OnUpdate != nil {
		q.opts.OnUpdate()
	}
}

// Latest returns the current state without fetching.
func (q *Query[T]) Latest() State[T] {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// Close stops polling and discards the results of in-flight calls.
// It waits for the poll goroutine to exit.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
