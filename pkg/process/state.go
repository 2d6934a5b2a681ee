package process

// State is the lifecycle state of a chat request
type State string

const (
	// StateIdle indicates no request is in flight
	StateIdle State = ""

	// StateSending indicates the query is being sent
	StateSending State = "sending"

	// StateStreaming indicates the response is being received
	StateStreaming State = "streaming"

	// StateCompleted indicates the stream ended normally
	StateCompleted State = "completed"

	// StateFailed indicates the transport failed
	StateFailed State = "failed"

	// StateCancelled indicates the user stopped the stream
	StateCancelled State = "cancelled"
)

var transitions = map[State][]State{
	StateIdle:      {StateSending},
	StateSending:   {StateStreaming, StateFailed, StateCancelled},
	StateStreaming: {StateCompleted, StateFailed, StateCancelled},
	StateCompleted: {StateIdle},
	StateFailed:    {StateIdle},
	StateCancelled: {StateIdle},
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// CanTransition reports whether moving from s to next is allowed
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a request
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive reports whether a request is in flight
func (s State) IsActive() bool {
	return s == StateSending || s == StateStreaming
}

// GetIcon returns the appropriate icon for a given process state
func (s State) GetIcon() string {
	switch s {
	case StateSending:
		return "↑"
	case StateStreaming:
		return "↓"
	case StateCompleted:
		return "✓"
	case StateFailed:
		return "✗"
	case StateCancelled:
		return "■"
	default:
		return ""
	}
}

// GetDisplayName returns a human-readable name for the state
func (s State) GetDisplayName() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateStreaming:
		return "Streaming"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return ""
	}
}
