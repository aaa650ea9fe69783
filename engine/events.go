package engine

import (
	"time"

	"cropterd/telemetry"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Drone link events
	EventDroneConnected EventType = iota + 1
	EventDroneDisconnected

	// Telemetry events
	EventTelemetryUpdated
	EventVideoFrame

	// Session events
	EventSessionStateChanged
	EventEmergencyStopped

	// Mission events
	EventMissionCreated
	EventMissionStarted
	EventMissionProgress
	EventMissionCompleted
	EventMissionAborted
	EventMissionStatusChanged

	// Recording events
	EventRecordingStarted
	EventRecordingStopped

	// Planning events
	EventPlanGenerated
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// DroneEvent is emitted when the drone link comes up or goes down.
type DroneEvent struct {
	Mode   string `json:"mode,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// TelemetryEvent carries one validated telemetry snapshot.
type TelemetryEvent struct {
	Snapshot telemetry.Snapshot `json:"snapshot"`
}

// VideoFrameEvent carries one video frame off the drone link.
type VideoFrameEvent struct {
	Frame telemetry.Frame
}

// SessionStateEvent is emitted on every session transition.
type SessionStateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EmergencyEvent is emitted when an emergency stop fires.
type EmergencyEvent struct {
	Reason string `json:"reason"`
}

// MissionStartedEvent is emitted when the waypoint walker launches.
type MissionStartedEvent struct {
	MissionID string `json:"mission_id"`
	Waypoints int    `json:"waypoints"`
}

// MissionProgressEvent is emitted after each waypoint is reached.
type MissionProgressEvent struct {
	MissionID string `json:"mission_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// MissionCompletedEvent is emitted when every waypoint has been flown.
type MissionCompletedEvent struct {
	MissionID string `json:"mission_id"`
}

// MissionAbortedEvent is emitted when a mission ends early.
type MissionAbortedEvent struct {
	MissionID string `json:"mission_id"`
	Reason    string `json:"reason"`
}

// MissionRecordEvent is emitted on mission record status changes. An
// empty OldStatus marks a freshly created record.
type MissionRecordEvent struct {
	MissionUUID string `json:"mission_uuid"`
	OldStatus   string `json:"old_status,omitempty"`
	NewStatus   string `json:"new_status"`
}

// RecordingEvent is emitted when a video take starts or stops.
type RecordingEvent struct {
	Path   string `json:"path"`
	Frames int64  `json:"frames,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
}

// PlanGeneratedEvent is emitted when a flight plan is produced.
type PlanGeneratedEvent struct {
	PlanUUID  string `json:"plan_uuid"`
	FieldID   string `json:"field_id"`
	Waypoints int    `json:"waypoints"`
	Feasible  bool   `json:"feasible"`
}
