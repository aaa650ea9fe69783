package mission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"cropterd/dispatch"
	"cropterd/drone"
	"cropterd/planner"
	"cropterd/telemetry"
)

const (
	// Legs longer than this are flown as a series of bounded hops so
	// every navigation command stays inside the SDK's 5 m cap.
	maxLegHopCM     = 480
	missionSpeedCMS = 100
)

// EventEmitter receives session lifecycle notifications.
type EventEmitter interface {
	SessionStateChanged(from, to string)
	DroneConnected(mode string)
	DroneDisconnected(reason string)
	MissionStarted(missionID string, waypoints int)
	MissionProgress(missionID string, completed, total int)
	MissionCompleted(missionID string)
	MissionAborted(missionID, reason string)
	EmergencyStopped(reason string)
}

type nopEmitter struct{}

func (nopEmitter) SessionStateChanged(string, string) {}
func (nopEmitter) DroneConnected(string)              {}
func (nopEmitter) DroneDisconnected(string)           {}
func (nopEmitter) MissionStarted(string, int)         {}
func (nopEmitter) MissionProgress(string, int, int)   {}
func (nopEmitter) MissionCompleted(string)            {}
func (nopEmitter) MissionAborted(string, string)      {}
func (nopEmitter) EmergencyStopped(string)            {}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State         string `json:"state"`
	Mode          string `json:"mode"`
	DroneMode     string `json:"drone_mode"`
	ActiveMission string `json:"active_mission,omitempty"`
}

// Config assembles a session's collaborators.
type Config struct {
	Link       drone.Link
	Dispatcher *dispatch.Dispatcher
	Sampler    *dispatch.Sampler
	Emitter    EventEmitter
	Telemetry  func() (telemetry.Snapshot, bool)
	LogFunc    func(string, ...any)
}

// Session drives one drone through its flight lifecycle. All state
// changes go through the transition table; an emergency stop preempts
// whatever else is in progress and is legal from any state.
type Session struct {
	link    drone.Link
	disp    *dispatch.Dispatcher
	sampler *dispatch.Sampler
	emitter EventEmitter
	telemFn func() (telemetry.Snapshot, bool)
	logFn   func(string, ...any)

	// opMu serializes pilot operations. The emergency path takes only
	// mu so it is never stuck behind a slow operation.
	opMu sync.Mutex

	mu            sync.Mutex
	state         string
	activeMission string
	missionCancel context.CancelFunc
	missionWg     sync.WaitGroup
}

func NewSession(cfg Config) *Session {
	if cfg.Emitter == nil {
		cfg.Emitter = nopEmitter{}
	}
	if cfg.LogFunc == nil {
		cfg.LogFunc = log.Printf
	}
	return &Session{
		link:    cfg.Link,
		disp:    cfg.Dispatcher,
		sampler: cfg.Sampler,
		emitter: cfg.Emitter,
		telemFn: cfg.Telemetry,
		logFn:   cfg.LogFunc,
		state:   StateDisconnected,
	}
}

// State returns the current session state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:         s.state,
		Mode:          Mode(s.state),
		DroneMode:     s.link.Mode(),
		ActiveMission: s.activeMission,
	}
}

// commit applies a transition only if the session is still in the
// state the operation started from. A false return means the state
// moved underneath the operation, which in practice is an emergency
// stop winning the race.
func (s *Session) commit(from, to string) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	if from == StateAutonomous {
		s.activeMission = ""
	}
	s.mu.Unlock()
	s.emitter.SessionStateChanged(from, to)
	return true
}

func (s *Session) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the drone link and arms the command dispatcher.
func (s *Session) Connect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	if from != StateDisconnected {
		return &InvalidStateTransitionError{From: from, To: StateConnected}
	}
	if err := s.link.Connect(ctx); err != nil {
		return err
	}
	s.disp.Start()
	s.commit(from, StateConnected)
	s.emitter.DroneConnected(s.link.Mode())
	return nil
}

// Disconnect releases the drone link. Only legal on the ground.
func (s *Session) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	switch from {
	case StateConnected, StateStreaming, StateLanded:
	default:
		return &InvalidStateTransitionError{From: from, To: StateDisconnected}
	}
	s.disp.Stop()
	if err := s.link.Close(); err != nil {
		s.logFn("closing drone link: %v", err)
	}
	s.commit(from, StateDisconnected)
	s.emitter.DroneDisconnected("pilot request")
	return nil
}

// StartStream turns the video feed on.
func (s *Session) StartStream() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	if from != StateConnected {
		return &InvalidStateTransitionError{From: from, To: StateStreaming}
	}
	if err := s.link.StartVideo(); err != nil {
		return err
	}
	s.commit(from, StateStreaming)
	return nil
}

// StopStream turns the video feed off.
func (s *Session) StopStream() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	if from != StateStreaming {
		return &InvalidStateTransitionError{From: from, To: StateConnected}
	}
	if err := s.link.StopVideo(); err != nil {
		s.logFn("stopping video: %v", err)
	}
	s.commit(from, StateConnected)
	return nil
}

// Takeoff lifts the drone to hover. Legal while streaming or after a
// landing.
func (s *Session) Takeoff(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	switch from {
	case StateStreaming, StateLanded:
	default:
		return &InvalidStateTransitionError{From: from, To: StateAirborne}
	}
	if err := s.disp.Send(ctx, drone.Command{Op: drone.OpTakeoff}); err != nil {
		return err
	}
	if !s.commit(from, StateAirborne) {
		return &InvalidStateTransitionError{From: s.current(), To: StateAirborne}
	}
	return nil
}

// Land brings the drone down from any flying state. An active mission
// is aborted first, manual control is released.
func (s *Session) Land(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	switch from {
	case StateAirborne:
	case StateManualControl:
		s.sampler.Stop()
	case StateAutonomous:
		s.stopWalker("landing requested")
	default:
		return &InvalidStateTransitionError{From: from, To: StateLanded}
	}
	if err := s.disp.Send(ctx, drone.Command{Op: drone.OpLand}); err != nil {
		return err
	}
	if !s.commit(from, StateLanded) {
		return &InvalidStateTransitionError{From: s.current(), To: StateLanded}
	}
	return nil
}

// EnterManual puts the pilot on the stick. Refused while a mission is
// executing.
func (s *Session) EnterManual() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	switch from {
	case StateAirborne:
	case StateAutonomous:
		return &ModeConflictError{Active: "autonomous", Requested: "manual"}
	default:
		return &InvalidStateTransitionError{From: from, To: StateManualControl}
	}
	s.sampler.Start()
	if !s.commit(from, StateManualControl) {
		s.sampler.Stop()
		return &InvalidStateTransitionError{From: s.current(), To: StateManualControl}
	}
	return nil
}

// ExitManual hands the drone back to a plain hover.
func (s *Session) ExitManual() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	if from != StateManualControl {
		return &InvalidStateTransitionError{From: from, To: StateAirborne}
	}
	s.sampler.Stop()
	s.commit(from, StateAirborne)
	return nil
}

// ManualTap feeds a one-shot pilot input to the sampler.
func (s *Session) ManualTap(dir string, magnitude int) error {
	if err := s.requireManual(); err != nil {
		return err
	}
	return s.sampler.Tap(dir, magnitude)
}

// ManualPress starts a held pilot input.
func (s *Session) ManualPress(dir string, magnitude int) error {
	if err := s.requireManual(); err != nil {
		return err
	}
	return s.sampler.Press(dir, magnitude)
}

// ManualRelease ends a held pilot input. Safe in any state.
func (s *Session) ManualRelease(dir string) {
	s.sampler.Release(dir)
}

func (s *Session) requireManual() error {
	switch from := s.current(); from {
	case StateManualControl:
		return nil
	case StateAutonomous:
		return &ModeConflictError{Active: "autonomous", Requested: "manual"}
	default:
		return &InvalidStateTransitionError{From: from, To: StateManualControl}
	}
}

// ExecuteMission starts walking a flight plan. The walker runs in the
// background; completion, progress and aborts surface as events.
func (s *Session) ExecuteMission(plan *planner.FlightPlan, missionID string, landAfter bool) error {
	if plan == nil || len(plan.Waypoints) == 0 {
		return fmt.Errorf("flight plan has no waypoints")
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	switch from {
	case StateAirborne:
	case StateManualControl:
		return &ModeConflictError{Active: "manual", Requested: "autonomous"}
	case StateAutonomous:
		return &ModeConflictError{Active: "autonomous", Requested: "autonomous"}
	default:
		return &InvalidStateTransitionError{From: from, To: StateAutonomous}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.missionCancel = cancel
	s.activeMission = missionID
	s.mu.Unlock()

	if !s.commit(from, StateAutonomous) {
		cancel()
		s.mu.Lock()
		s.missionCancel = nil
		s.activeMission = ""
		s.mu.Unlock()
		return &InvalidStateTransitionError{From: s.current(), To: StateAutonomous}
	}

	s.missionWg.Add(1)
	go s.runMission(ctx, plan, missionID, landAfter)
	return nil
}

// EmergencyStop halts everything: the walker is cancelled and the
// command queue purged, then the drone is told to land on the direct
// path. Legal from any state, including a repeat.
func (s *Session) EmergencyStop(reason string) error {
	s.mu.Lock()
	cancel := s.missionCancel
	s.missionCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.sampler.Stop()

	err := s.disp.EmergencyStop(context.Background())

	s.mu.Lock()
	from := s.state
	id := s.activeMission
	s.state = StateEmergencyStopped
	s.activeMission = ""
	s.mu.Unlock()

	if id != "" {
		s.emitter.MissionAborted(id, AbortReasonEmergency)
	}
	if from != StateEmergencyStopped {
		s.emitter.SessionStateChanged(from, StateEmergencyStopped)
		s.emitter.EmergencyStopped(reason)
	}
	return err
}

// Reset acknowledges an emergency stop and releases the drone. The
// next flight starts from a fresh connection.
func (s *Session) Reset() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	from := s.current()
	if from != StateEmergencyStopped {
		return &InvalidStateTransitionError{From: from, To: StateDisconnected}
	}
	s.missionWg.Wait()
	s.disp.Reset()
	s.disp.Stop()
	s.sampler.Stop()
	if err := s.link.Close(); err != nil {
		s.logFn("closing drone link: %v", err)
	}
	s.commit(from, StateDisconnected)
	s.emitter.DroneDisconnected("reset after emergency stop")
	return nil
}

func (s *Session) stopWalker(reason string) {
	s.mu.Lock()
	cancel := s.missionCancel
	id := s.activeMission
	s.missionCancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.missionWg.Wait()
	if id != "" {
		s.emitter.MissionAborted(id, reason)
	}
}

func (s *Session) runMission(ctx context.Context, plan *planner.FlightPlan, missionID string, landAfter bool) {
	defer s.missionWg.Done()
	total := len(plan.Waypoints)
	s.emitter.MissionStarted(missionID, total)

	// Climb to the plan altitude before the first leg, when telemetry
	// can tell us where we are.
	if s.telemFn != nil {
		if snap, ok := s.telemFn(); ok {
			if cmd, need := climbCommand(snap.HeightCM, plan.AltitudeCM); need {
				if !s.sendLeg(ctx, missionID, cmd) {
					return
				}
			}
		}
	}

	prev := planner.Waypoint{}
	for i, wp := range plan.Waypoints {
		for _, cmd := range legCommands(prev, wp) {
			if !s.sendLeg(ctx, missionID, cmd) {
				return
			}
		}
		prev = wp
		s.emitter.MissionProgress(missionID, i+1, total)
	}

	s.finishMission(ctx, missionID, landAfter)
}

// sendLeg sends one hop with a single retry. A false return means the
// mission must stop, either because it was cancelled or because the
// link is gone.
func (s *Session) sendLeg(ctx context.Context, missionID string, cmd drone.Command) bool {
	err := s.disp.Send(ctx, cmd)
	if err == nil {
		return true
	}
	if s.missionInterrupted(ctx, err) {
		return false
	}
	s.logFn("mission %s: %s not acked, retrying: %v", missionID, cmd.Op, err)
	if err = s.disp.Send(ctx, cmd); err == nil {
		return true
	}
	if s.missionInterrupted(ctx, err) {
		return false
	}
	s.abortLinkLost(missionID, err)
	return false
}

func (s *Session) missionInterrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, dispatch.ErrPreempted) || errors.Is(err, dispatch.ErrStopped)
}

// abortLinkLost handles a leg failing twice: the mission is dead, so
// get the drone on the ground and latch the session.
func (s *Session) abortLinkLost(missionID string, cause error) {
	err := &drone.LinkLostError{Op: "mission", Err: cause}
	s.logFn("mission %s aborted: %v", missionID, err)
	s.emitter.MissionAborted(missionID, err.Error())

	if e := s.disp.EmergencyStop(context.Background()); e != nil {
		s.logFn("emergency stop after link loss: %v", e)
	}

	s.mu.Lock()
	from := s.state
	s.state = StateEmergencyStopped
	s.activeMission = ""
	s.missionCancel = nil
	s.mu.Unlock()
	if from != StateEmergencyStopped {
		s.emitter.SessionStateChanged(from, StateEmergencyStopped)
		s.emitter.EmergencyStopped("drone link lost during mission")
	}
}

func (s *Session) finishMission(ctx context.Context, missionID string, landAfter bool) {
	s.emitter.MissionCompleted(missionID)
	if landAfter {
		if err := s.disp.Send(ctx, drone.Command{Op: drone.OpLand}); err != nil {
			s.logFn("landing after mission %s: %v", missionID, err)
		} else {
			s.commit(StateAutonomous, StateLanded)
			return
		}
	}
	s.commit(StateAutonomous, StateAirborne)
}

// climbCommand builds the altitude adjustment from the current height
// to the plan altitude. Differences under the SDK minimum are flown as
// is.
func climbCommand(currentCM, targetCM int) (drone.Command, bool) {
	dz := targetCM - currentCM
	if dz >= dispatch.MinMoveCM {
		return drone.Command{Op: drone.OpUp, DistanceCM: dz}, true
	}
	if dz <= -dispatch.MinMoveCM {
		return drone.Command{Op: drone.OpDown, DistanceCM: -dz}, true
	}
	return drone.Command{}, false
}

// legCommands translates one waypoint leg into relative go commands.
// The planner frame maps onto the drone's body frame with the drone at
// the field origin facing +Y, so forward is +Y and left is -X. Long
// legs are split into equal hops inside the SDK bound.
func legCommands(prev, wp planner.Waypoint) []drone.Command {
	fwdCM := int(math.Round((wp.Y - prev.Y) * 100))
	leftCM := int(math.Round(-(wp.X - prev.X) * 100))
	if abs(fwdCM) < dispatch.MinMoveCM && abs(leftCM) < dispatch.MinMoveCM {
		return nil
	}
	dist := math.Hypot(float64(fwdCM), float64(leftCM))
	hops := int(math.Ceil(dist / maxLegHopCM))
	cmds := make([]drone.Command, 0, hops)
	prevF, prevL := 0, 0
	for h := 1; h <= hops; h++ {
		f := int(math.Round(float64(fwdCM) * float64(h) / float64(hops)))
		l := int(math.Round(float64(leftCM) * float64(h) / float64(hops)))
		if f == prevF && l == prevL {
			continue
		}
		cmds = append(cmds, drone.Command{
			Op:       drone.OpGo,
			DX:       f - prevF,
			DY:       l - prevL,
			SpeedCMS: missionSpeedCMS,
		})
		prevF, prevL = f, l
	}
	return cmds
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
