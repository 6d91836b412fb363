package tx

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedash/stakedash/internal/contracts"
)

// NotificationKind is the user-facing step a notification reports.
type NotificationKind int

const (
	NotifySubmitted NotificationKind = iota + 1
	NotifyConfirming
	NotifyConfirmed
	NotifyFailed
)

func (k NotificationKind) String() string {
	switch k {
	case NotifySubmitted:
		return "submitted"
	case NotifyConfirming:
		return "confirming"
	case NotifyConfirmed:
		return "confirmed"
	case NotifyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notification is emitted on every non-idle transition.
type Notification struct {
	Kind    NotificationKind
	Action  Action
	TxHash  common.Hash
	Message string
	Err     error
	// Events decoded from the receipt, set on NotifyConfirmed.
	Events []contracts.Event
}

func newNotification(st State) Notification {
	n := Notification{Action: st.Action, TxHash: st.TxHash, Err: st.Err, Events: st.Events}
	switch st.Phase {
	case PhaseSubmitting:
		n.Kind = NotifySubmitted
		n.Message = fmt.Sprintf("%s submitted, confirm in your wallet", st.Action.Label())
	case PhaseAwaitingConfirmation:
		n.Kind = NotifyConfirming
		n.Message = fmt.Sprintf("%s sent (%s), waiting for confirmation", st.Action.Label(), shortHash(st.TxHash))
	case PhaseConfirmed:
		n.Kind = NotifyConfirmed
		n.Message = fmt.Sprintf("%s confirmed", st.Action.Label())
	case PhaseFailed:
		n.Kind = NotifyFailed
		n.Message = fmt.Sprintf("%s failed: %s", st.Action.Label(), FailureReason(st.Err))
	}
	return n
}

// FailureReason turns a tracker error into a short human-readable reason.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransactionReverted):
		return "transaction reverted"
	case errors.Is(err, ErrTimeout):
		return "no confirmation before the timeout"
	default:
		return err.Error()
	}
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	if len(s) < 14 {
		return s
	}
	return s[:10] + "..." + s[len(s)-4:]
}
