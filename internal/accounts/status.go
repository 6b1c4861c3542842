package accounts

import (
	"fmt"

	"github.com/agrimart/backoffice/internal/audit"
)

// Transition is a confirmed status change requested by an operator.
type Transition string

const (
	TransitionActivate   Transition = "activate"
	TransitionDeactivate Transition = "deactivate"
	TransitionSuspend    Transition = "suspend"
)

// ParseTransition resolves a transition name.
func ParseTransition(raw string) (Transition, bool) {
	t := Transition(raw)
	switch t {
	case TransitionActivate, TransitionDeactivate, TransitionSuspend:
		return t, true
	}
	return t, false
}

// Target returns the status the transition moves to.
func (t Transition) Target() Status {
	switch t {
	case TransitionActivate:
		return StatusActive
	case TransitionDeactivate:
		return StatusInactive
	case TransitionSuspend:
		return StatusSuspended
	}
	panic(fmt.Sprintf("accounts: unknown transition %q", string(t)))
}

func (t Transition) auditAction() audit.Action {
	switch t {
	case TransitionActivate:
		return audit.ActionActivate
	case TransitionDeactivate:
		return audit.ActionDeactivate
	default:
		return audit.ActionSuspend
	}
}

// CanTransition reports whether an account may move from one status to
// another. Staying in place is always allowed. Suspension is left only by
// reactivation, and nothing returns an account to pending.
//
//	pending   -> active | inactive | suspended
//	active    -> inactive | suspended
//	inactive  -> active | suspended
//	suspended -> active
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusActive, StatusSuspended:
		return true
	case StatusInactive:
		return from != StatusSuspended
	default:
		return false
	}
}

// ConfirmationPrompt is the user-facing question the UI must ask before
// invoking a transition.
func ConfirmationPrompt(a Account, t Transition) string {
	who := fmt.Sprintf("%s (%s)", a.Name, a.Email)
	switch t {
	case TransitionActivate:
		return fmt.Sprintf("Activate %s? They will be able to sign in again.", who)
	case TransitionDeactivate:
		return fmt.Sprintf("Deactivate %s? They will no longer be able to sign in.", who)
	case TransitionSuspend:
		return fmt.Sprintf("Suspend %s? They stay locked out until an administrator reactivates them.", who)
	}
	return fmt.Sprintf("Change the status of %s?", who)
}
