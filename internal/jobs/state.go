// Package jobs holds the per-unit job state machine and the run-wide
// registry through which every worker reads and writes shared state.
package jobs

// State is a job's position in its lifecycle.
type State string

const (
	Created       State = "created"
	Compressing   State = "compressing"
	Compressed    State = "compressed"
	Verifying     State = "verifying"
	Verified      State = "verified"
	CompareFailed State = "compare_failed"
	Moving        State = "moving"
	Done          State = "done"
	Error         State = "error"
)

// States lists every state in lifecycle order.
var States = []State{Created, Compressing, Compressed, Verifying, Verified, CompareFailed, Moving, Done, Error}

// transitions lists the forward edges. Error is reachable from every
// non-terminal state and is handled separately.
var transitions = map[State][]State{
	Created:     {Compressing},
	Compressing: {Compressed},
	Compressed:  {Verifying},
	Verifying:   {Verified, CompareFailed},
	Verified:    {Moving, Done},
	Moving:      {Done},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == CompareFailed || s == Error
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Error {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
