package exchange

import (
	"fmt"

	"pharmex/m/domain"
)

// Action is a state transition requested against an exchange. The backend is
// the authority on who may do what; this side only offers the transitions
// that are legal for the current status and viewing direction.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionProcess Action = "process"
)

// TransitionError reports an illegal transition attempt.
type TransitionError struct {
	Status    domain.ExchangeStatus
	Direction domain.Direction
	Action    Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("action %q is not available for a %s exchange in status %s", e.Action, e.Direction, e.Status)
}

// AvailableActions returns the transitions the acting pharmacy may be offered
// for an exchange. Direction IN means the acting pharmacy is the destination,
// OUT means it is the source.
//
//	PENDING  -> APPROVED (approve, destination only)
//	PENDING  -> REJECTED (reject, destination only, reason required)
//	PENDING  -> CANCELLED (cancel, source only, confirmation required)
//	APPROVED -> COMPLETED (process, destination only)
//
// Terminal statuses offer nothing. There is no path from APPROVED back to
// PENDING.
func AvailableActions(status domain.ExchangeStatus, dir domain.Direction) []Action {
	switch status {
	case domain.StatusPending:
		if dir == domain.DirectionIn {
			return []Action{ActionApprove, ActionReject}
		}
		return []Action{ActionCancel}
	case domain.StatusApproved:
		if dir == domain.DirectionIn {
			return []Action{ActionProcess}
		}
	}
	return nil
}

// CanTransition validates one transition against the displayed state before
// any network call is issued.
func CanTransition(status domain.ExchangeStatus, dir domain.Direction, action Action) error {
	for _, a := range AvailableActions(status, dir) {
		if a == action {
			return nil
		}
	}
	return &TransitionError{Status: status, Direction: dir, Action: action}
}
