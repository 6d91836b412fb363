package tx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stakedash/stakedash/internal/contracts"
	"github.com/stakedash/stakedash/internal/logging"
)

// DefaultConfirmTimeout bounds the wait in AwaitingConfirmation.
const DefaultConfirmTimeout = 2 * time.Minute

var (
	ErrActionPending       = errors.New("action already pending")
	ErrProviderRejected    = errors.New("provider rejected transaction")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrTimeout             = errors.New("confirmation timed out")
)

// Submitter dispatches one mutation and returns its transaction handle.
type Submitter func(ctx context.Context) (*types.Transaction, error)

// Waiter blocks until a transaction is mined with enough confirmations.
// A reverted receipt is returned without error.
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// NonceSyncer is implemented by waiters that track nonces locally. It is
// called after a rejected submission.
type NonceSyncer interface {
	SyncNonce(ctx context.Context) error
}

// Observer counts phase transitions.
type Observer interface {
	ObservePhase(action, phase string)
}

// State is a tracker's view of its current run.
type State struct {
	Action    Action
	Phase     Phase
	TxHash    common.Hash
	Receipt   *types.Receipt
	Events    []contracts.Event
	Err       error
	UpdatedAt time.Time
}

// Options configures a Tracker.
type Options struct {
	ConfirmTimeout time.Duration
	Observer       Observer
	// Listener sees every transition, Idle included.
	Listener func(State)
	// Notify receives one Notification per non-idle transition.
	Notify func(Notification)
	// Decode extracts events from a confirmed receipt.
	Decode func(*types.Receipt) []contracts.Event
}

// Tracker runs at most one transaction of its action at a time.
type Tracker struct {
	action Action
	waiter Waiter
	opts   Options

	mu    sync.Mutex
	state State
}

// NewTracker returns an idle tracker for action.
func NewTracker(action Action, waiter Waiter, opts Options) *Tracker {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Tracker{
		action: action,
		waiter: waiter,
		opts:   opts,
		state:  State{Action: action, Phase: PhaseIdle},
	}
}

func (t *Tracker) Action() Action { return t.action }

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsPending reports whether a run is submitting or awaiting confirmation.
func (t *Tracker) IsPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Phase.Pending()
}

// Run submits the transaction and waits for its confirmation. The returned
// state is terminal unless err is ErrActionPending. A tracker left in a
// terminal phase passes through Idle first. Run never retries and never
// refreshes reads; callers refetch on Confirmed.
func (t *Tracker) Run(ctx context.Context, submit Submitter) (State, error) {
	t.mu.Lock()
	if t.state.Phase.Pending() {
		st := t.state
		t.mu.Unlock()
		return st, fmt.Errorf("%s: %w", t.action, ErrActionPending)
	}
	var reset *State
	if t.state.Phase.Terminal() {
		idle := t.setLocked(State{Action: t.action, Phase: PhaseIdle})
		reset = &idle
	}
	st := t.setLocked(State{Action: t.action, Phase: PhaseSubmitting})
	t.mu.Unlock()
	if reset != nil {
		t.emit(*reset)
	}
	t.emit(st)

	logging.Info("submitting transaction", logging.Component("tx"), logging.Action(t.action.String()))

	tx, err := submit(ctx)
	if err == nil && tx == nil {
		err = errors.New("no transaction returned")
	}
	if err != nil {
		if syncer, ok := t.waiter.(NonceSyncer); ok {
			if serr := syncer.SyncNonce(ctx); serr != nil {
				logging.Debug("nonce resync failed", logging.Component("tx"), logging.Err(serr))
			}
		}
		return t.fail(common.Hash{}, nil, fmt.Errorf("%w: %w", ErrProviderRejected, err))
	}

	hash := tx.Hash()
	t.transition(State{Action: t.action, Phase: PhaseAwaitingConfirmation, TxHash: hash})
	logging.Info("transaction sent", logging.Component("tx"),
		logging.Action(t.action.String()), logging.TxHash(hash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, t.opts.ConfirmTimeout)
	defer cancel()

	receipt, err := t.waiter.WaitMined(waitCtx, tx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("confirmation wait cancelled: %w", ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			err = fmt.Errorf("%w after %s", ErrTimeout, t.opts.ConfirmTimeout)
		default:
			err = fmt.Errorf("waiting for %s: %w", hash.Hex(), err)
		}
		return t.fail(hash, nil, err)
	}
	if receipt == nil || receipt.Status == types.ReceiptStatusFailed {
		return t.fail(hash, receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex()))
	}

	var events []contracts.Event
	if t.opts.Decode != nil {
		events = t.opts.Decode(receipt)
	}
	final := t.transition(State{
		Action:  t.action,
		Phase:   PhaseConfirmed,
		TxHash:  hash,
		Receipt: receipt,
		Events:  events,
	})
	logging.Info("transaction confirmed", logging.Component("tx"),
		logging.Action(t.action.String()), logging.TxHash(hash.Hex()),
		"block", receipt.BlockNumber)
	return final, nil
}

func (t *Tracker) fail(hash common.Hash, receipt *types.Receipt, err error) (State, error) {
	st := t.transition(State{Action: t.action, Phase: PhaseFailed, TxHash: hash, Receipt: receipt, Err: err})
	logging.Warn("transaction failed", logging.Component("tx"),
		logging.Action(t.action.String()), logging.Err(err))
	return st, err
}

// Acknowledge returns a terminal tracker to Idle. It reports false when the
// tracker was not in a terminal phase.
func (t *Tracker) Acknowledge() bool {
	t.mu.Lock()
	if !t.state.Phase.Terminal() {
		t.mu.Unlock()
		return false
	}
	st := t.setLocked(State{Action: t.action, Phase: PhaseIdle})
	t.mu.Unlock()
	t.emit(st)
	return true
}

func (t *Tracker) transition(next State) State {
	t.mu.Lock()
	st := t.setLocked(next)
	t.mu.Unlock()
	t.emit(st)
	return st
}

func (t *Tracker) setLocked(next State) State {
	next.UpdatedAt = time.Now()
	t.state = next
	return next
}

func (t *Tracker) emit(st State) {
	if t.opts.Observer != nil {
		t.opts.Observer.ObservePhase(st.Action.String(), st.Phase.String())
	}
	if t.opts.Listener != nil {
		t.opts.Listener(st)
	}
	if t.opts.Notify != nil && st.Phase != PhaseIdle {
		t.opts.Notify(newNotification(st))
	}
}
