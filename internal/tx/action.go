// Package tx tracks state-changing contract calls from submission to
// confirmation.
package tx

// Action names one kind of mutation. Each action has its own Tracker.
type Action int

const (
	ActionApprove Action = iota + 1
	ActionStake
	ActionUnstake
	ActionClaim
	ActionCompound
)

// Actions lists every action in display order.
var Actions = []Action{ActionApprove, ActionStake, ActionUnstake, ActionClaim, ActionCompound}

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionStake:
		return "stake"
	case ActionUnstake:
		return "unstake"
	case ActionClaim:
		return "claim"
	case ActionCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// Label is the button text for the action.
func (a Action) Label() string {
	switch a {
	case ActionApprove:
		return "Approve"
	case ActionStake:
		return "Stake"
	case ActionUnstake:
		return "Unstake"
	case ActionClaim:
		return "Claim Rewards"
	case ActionCompound:
		return "Compound"
	default:
		return "Unknown"
	}
}

// Phase is a tracker's position in the transaction lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingConfirmation
	PhaseConfirmed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pending reports whether the phase blocks a new run of the same action.
func (p Phase) Pending() bool {
	return p == PhaseSubmitting || p == PhaseAwaitingConfirmation
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed
}
