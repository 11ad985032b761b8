package pool

// Status is the pool lifecycle state.
type Status int32

const (
	StatusOngoing Status = iota
	StatusClaimable
	StatusMatured
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusOngoing:
		return "Ongoing"
	case StatusClaimable:
		return "Claimable"
	case StatusMatured:
		return "Matured"
	case StatusTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status is one of the three final outcomes.
func (s Status) Terminal() bool {
	return s == StatusClaimable || s == StatusMatured || s == StatusTerminated
}

// CanTransitionTo validates state transitions. The machine only moves forward:
// Ongoing reaches exactly one terminal state, terminal states absorb.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusOngoing {
		return false
	}
	return next.Terminal()
}
