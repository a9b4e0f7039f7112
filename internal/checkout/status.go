package checkout

import "errors"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrAlreadyInState reports a transition whose target equals the current
	// state; callers treat it as an idempotent no-op.
	ErrAlreadyInState = errors.New("order already in target state")
	// ErrIllegalTransition reports a transition the state machine does not
	// enumerate.
	ErrIllegalTransition = errors.New("illegal order state transition")
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true, StatusExpired: true},
	StatusPaid:      {StatusFulfilled: true},
	StatusFulfilled: {},
	StatusExpired:   {},
	StatusCancelled: {},
}

// CheckTransition enforces the closed transition table, distinguishing the
// no-op case from the illegal one so duplicate event deliveries can be acked
// while genuine state-machine violations surface.
func CheckTransition(from, to Status) error {
	if from == to {
		return ErrAlreadyInState
	}
	if !validNext[from][to] {
		return ErrIllegalTransition
	}
	return nil
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool { return len(validNext[s]) == 0 }
