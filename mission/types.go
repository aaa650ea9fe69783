package mission

// Mission record statuses
const (
	StatusCreated   = "created"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusEmergency = "emergency"
)

// validMissionTransitions defines which status transitions are allowed.
var validMissionTransitions = map[string][]string{
	StatusCreated:   {StatusExecuting, StatusAborted},
	StatusExecuting: {StatusCompleted, StatusAborted, StatusEmergency},
}

// IsValidMissionTransition checks if a status transition is allowed.
func IsValidMissionTransition(from, to string) bool {
	allowed, ok := validMissionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsMissionTerminal returns true if the status is a terminal state.
func IsMissionTerminal(status string) bool {
	return status == StatusCompleted || status == StatusAborted || status == StatusEmergency
}
