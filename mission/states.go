package mission

import "fmt"

// Session states for a piloted drone connection.
const (
	StateDisconnected     = "disconnected"
	StateConnected        = "connected"
	StateStreaming        = "streaming"
	StateAirborne         = "airborne"
	StateManualControl    = "manual_control"
	StateAutonomous       = "autonomous_executing"
	StateLanded           = "landed"
	StateEmergencyStopped = "emergency_stopped"
)

// AbortReasonEmergency marks a mission abort caused by an emergency
// stop rather than a pilot decision or a dead link.
const AbortReasonEmergency = "emergency stop"

// validTransitions holds the legal session edges. An emergency stop is
// legal from every state and is handled in IsValidTransition rather
// than listed per state.
var validTransitions = map[string][]string{
	StateDisconnected:     {StateConnected},
	StateConnected:        {StateStreaming, StateDisconnected},
	StateStreaming:        {StateAirborne, StateConnected, StateDisconnected},
	StateAirborne:         {StateManualControl, StateAutonomous, StateLanded},
	StateManualControl:    {StateAirborne, StateLanded},
	StateAutonomous:       {StateAirborne, StateLanded},
	StateLanded:           {StateAirborne, StateDisconnected},
	StateEmergencyStopped: {StateDisconnected},
}

// IsValidTransition reports whether a session may move between the two
// states.
func IsValidTransition(from, to string) bool {
	if to == StateEmergencyStopped {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode reports the pilot-facing control mode for a session state.
func Mode(state string) string {
	switch state {
	case StateManualControl:
		return "manual"
	case StateAutonomous:
		return "autonomous"
	default:
		return "none"
	}
}

// InvalidStateTransitionError reports an operation attempted from a
// session state that does not allow it.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// ModeConflictError reports a control mode requested while the other
// mode is active. Modes never hand over directly; the pilot must
// return to airborne first.
type ModeConflictError struct {
	Active    string
	Requested string
}

func (e *ModeConflictError) Error() string {
	return fmt.Sprintf("%s control requested while %s mode is active", e.Requested, e.Active)
}
