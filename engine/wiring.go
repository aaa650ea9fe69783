package engine

import (
	"cropterd/drone"
	"cropterd/mission"
	"cropterd/store"
	"cropterd/telemetry"
)

// wireEventHandlers sets up the full event chain:
// SessionStateChanged → relay and recorder lifecycle
// MissionStarted/Progress/Completed/Aborted → mission record updates
func (e *Engine) wireEventHandlers() {
	// Session state → relay start/stop, recording auto start/stop
	e.Events.SubscribeTypes(func(evt Event) {
		change := evt.Payload.(SessionStateEvent)
		e.handleSessionState(change)
	}, EventSessionStateChanged)

	// Mission started → record goes executing, rolling take is attached
	e.Events.SubscribeTypes(func(evt Event) {
		started := evt.Payload.(MissionStartedEvent)
		e.handleMissionStarted(started)
	}, EventMissionStarted)

	// Progress ticks → persisted waypoint count
	e.Events.SubscribeTypes(func(evt Event) {
		progress := evt.Payload.(MissionProgressEvent)
		if err := e.missionMgr.UpdateProgress(progress.MissionID, progress.Completed); err != nil {
			e.debugFn("mission %s progress: %v", progress.MissionID, err)
		}
	}, EventMissionProgress)

	// Completion → record closes as completed
	e.Events.SubscribeTypes(func(evt Event) {
		done := evt.Payload.(MissionCompletedEvent)
		if err := e.missionMgr.TransitionMission(done.MissionID, mission.StatusCompleted, "all waypoints flown"); err != nil {
			e.debugFn("mission %s record: %v", done.MissionID, err)
		}
	}, EventMissionCompleted)

	// Abort → record closes as aborted or emergency
	e.Events.SubscribeTypes(func(evt Event) {
		aborted := evt.Payload.(MissionAbortedEvent)
		e.handleMissionAborted(aborted)
	}, EventMissionAborted)
}

func (e *Engine) handleSessionState(change SessionStateEvent) {
	switch change.To {
	case mission.StateConnected:
		if change.From == mission.StateDisconnected {
			e.relay.Start()
		}
	case mission.StateAirborne:
		// Takeoff starts a take so the flight is on file from the first
		// frame. Returning to hover from a control mode is not a takeoff.
		if change.From == mission.StateStreaming || change.From == mission.StateLanded {
			e.autoStartRecording()
		}
	case mission.StateLanded:
		e.autoStopRecording()
	case mission.StateEmergencyStopped, mission.StateDisconnected:
		e.autoStopRecording()
		e.relay.Stop()
	}
}

func (e *Engine) handleMissionStarted(started MissionStartedEvent) {
	e.recorder.AttachMission(started.MissionID)
	if err := e.missionMgr.TransitionMission(started.MissionID, mission.StatusExecuting, ""); err != nil {
		// Ad hoc missions flown straight from a client have no record.
		e.debugFn("mission %s record: %v", started.MissionID, err)
	}
}

// handleMissionAborted closes the mission record. Only a pilot emergency
// stop marks the record as emergency; a link loss or a land request
// mid-mission closes it as aborted with the reason as detail.
func (e *Engine) handleMissionAborted(aborted MissionAbortedEvent) {
	status := mission.StatusAborted
	if aborted.Reason == mission.AbortReasonEmergency {
		status = mission.StatusEmergency
	}
	if err := e.missionMgr.TransitionMission(aborted.MissionID, status, aborted.Reason); err != nil {
		e.debugFn("mission %s record: %v", aborted.MissionID, err)
	}
}

func (e *Engine) autoStartRecording() {
	if e.recorder.Active() {
		return
	}
	if _, err := e.StartRecording(); err != nil {
		e.logFn("auto recording: %v", err)
	}
}

func (e *Engine) autoStopRecording() {
	if !e.recorder.Active() {
		return
	}
	if _, err := e.StopRecording(); err != nil {
		e.logFn("auto recording: %v", err)
	}
}

// StartRecording opens a new video take and announces it on the bus.
func (e *Engine) StartRecording() (string, error) {
	path, err := e.recorder.StartRecording(nil, e.streamFormat())
	if err != nil {
		return "", err
	}
	e.logFn("recording started: %s", path)
	e.Events.Emit(Event{Type: EventRecordingStarted, Payload: RecordingEvent{Path: path}})
	return path, nil
}

// StopRecording closes the active take, if any, and announces the
// finished file on the bus.
func (e *Engine) StopRecording() (*store.Recording, error) {
	rec, err := e.recorder.StopRecording()
	if err != nil {
		return rec, err
	}
	if rec == nil {
		return nil, nil
	}
	e.logFn("recording stopped: %s (%d frames, %d bytes)", rec.Path, rec.Frames, rec.Bytes)
	e.Events.Emit(Event{
		Type:    EventRecordingStopped,
		Payload: RecordingEvent{Path: rec.Path, Frames: rec.Frames, Bytes: rec.Bytes},
	})
	return rec, nil
}

// streamFormat picks the container for recorded takes. The simulator
// serves JPEG stills, a real drone serves an H.264 elementary stream.
func (e *Engine) streamFormat() string {
	if e.link.Mode() == drone.ModeTello {
		return telemetry.FormatH264
	}
	return telemetry.FormatJPEG
}
