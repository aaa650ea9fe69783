package engine

import (
	"cropterd/mission"
	"cropterd/telemetry"
)

// sessionEmitter adapts the engine's EventBus to the mission.EventEmitter
// interface.
type sessionEmitter struct {
	bus *EventBus
}

func (e *sessionEmitter) SessionStateChanged(from, to string) {
	e.bus.Emit(Event{Type: EventSessionStateChanged, Payload: SessionStateEvent{From: from, To: to}})
}

func (e *sessionEmitter) DroneConnected(mode string) {
	e.bus.Emit(Event{Type: EventDroneConnected, Payload: DroneEvent{Mode: mode}})
}

func (e *sessionEmitter) DroneDisconnected(reason string) {
	e.bus.Emit(Event{Type: EventDroneDisconnected, Payload: DroneEvent{Reason: reason}})
}

func (e *sessionEmitter) MissionStarted(missionID string, waypoints int) {
	e.bus.Emit(Event{Type: EventMissionStarted, Payload: MissionStartedEvent{
		MissionID: missionID, Waypoints: waypoints,
	}})
}

func (e *sessionEmitter) MissionProgress(missionID string, completed, total int) {
	e.bus.Emit(Event{Type: EventMissionProgress, Payload: MissionProgressEvent{
		MissionID: missionID, Completed: completed, Total: total,
	}})
}

func (e *sessionEmitter) MissionCompleted(missionID string) {
	e.bus.Emit(Event{Type: EventMissionCompleted, Payload: MissionCompletedEvent{MissionID: missionID}})
}

func (e *sessionEmitter) MissionAborted(missionID, reason string) {
	e.bus.Emit(Event{Type: EventMissionAborted, Payload: MissionAbortedEvent{
		MissionID: missionID, Reason: reason,
	}})
}

func (e *sessionEmitter) EmergencyStopped(reason string) {
	e.bus.Emit(Event{Type: EventEmergencyStopped, Payload: EmergencyEvent{Reason: reason}})
}

// recordEmitter adapts the EventBus to the mission.RecordEmitter
// interface used by the mission records manager.
type recordEmitter struct {
	bus *EventBus
}

func (e *recordEmitter) MissionRecordChanged(missionUUID, oldStatus, newStatus string) {
	evtType := EventMissionStatusChanged
	if oldStatus == "" && newStatus == mission.StatusCreated {
		evtType = EventMissionCreated
	}
	e.bus.Emit(Event{Type: evtType, Payload: MissionRecordEvent{
		MissionUUID: missionUUID, OldStatus: oldStatus, NewStatus: newStatus,
	}})
}

// relayEmitter adapts the EventBus to the telemetry.EventEmitter
// interface.
type relayEmitter struct {
	bus *EventBus
}

func (e *relayEmitter) EmitTelemetry(s telemetry.Snapshot) {
	e.bus.Emit(Event{Type: EventTelemetryUpdated, Payload: TelemetryEvent{Snapshot: s}})
}

func (e *relayEmitter) EmitVideoFrame(f telemetry.Frame) {
	e.bus.Emit(Event{Type: EventVideoFrame, Payload: VideoFrameEvent{Frame: f}})
}
