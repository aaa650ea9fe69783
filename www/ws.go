package www

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"cropterd/dispatch"
	"cropterd/engine"
	"cropterd/mission"
	"cropterd/planner"
	"cropterd/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultMoveCM    = 20
	defaultRotateDeg = 15
)

// The pilot console runs on the same trusted network as the drone, so
// cross-origin upgrades are allowed.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlClient is one websocket session on the control channel.
type controlClient struct {
	conn *websocket.Conn
	send chan []byte
}

// reply queues a response for the writer goroutine. Unlike broadcasts
// it waits briefly instead of dropping.
func (c *controlClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-time.After(time.Second):
	}
}

// writeLoop is the only goroutine allowed to write on the conn.
func (c *controlClient) writeLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// ControlHub fans live flight traffic out to control channel clients
// and tracks which client, if any, holds the drone.
type ControlHub struct {
	mu         sync.Mutex
	clients    map[*controlClient]struct{}
	controller *controlClient
}

// NewControlHub creates a new ControlHub.
func NewControlHub() *ControlHub {
	return &ControlHub{clients: make(map[*controlClient]struct{})}
}

// Stop closes every client connection.
func (hub *ControlHub) Stop() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for c := range hub.clients {
		c.conn.Close()
	}
}

func (hub *ControlHub) register(c *controlClient) {
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()
}

func (hub *ControlHub) unregister(c *controlClient) {
	hub.mu.Lock()
	if _, ok := hub.clients[c]; ok {
		delete(hub.clients, c)
		close(c.send)
	}
	if hub.controller == c {
		hub.controller = nil
	}
	hub.mu.Unlock()
}

// Broadcast sends one message to every connected client. Slow clients
// are skipped rather than awaited.
func (hub *ControlHub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	hub.mu.Lock()
	for c := range hub.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop
		}
	}
	hub.mu.Unlock()
}

func (hub *ControlHub) acquire(c *controlClient) {
	hub.mu.Lock()
	hub.controller = c
	hub.mu.Unlock()
}

func (hub *ControlHub) release(c *controlClient) {
	hub.mu.Lock()
	if hub.controller == c {
		hub.controller = nil
	}
	hub.mu.Unlock()
}

// guard rejects flight actions from observers while another client
// holds the drone. With no holder the session's own state machine is
// the only gate, which keeps orphaned flights recoverable from any
// console.
func (hub *ControlHub) guard(c *controlClient) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return hub.controller == nil || hub.controller == c
}

// wireTelemetry is the telemetry dict shape the pilot console renders.
func wireTelemetry(s telemetry.Snapshot) map[string]interface{} {
	t := map[string]interface{}{
		"battery":     s.Battery,
		"height":      s.HeightCM,
		"flight_time": s.FlightTimeSec,
		"temperature": map[string]int{"high": s.TempHighC, "low": s.TempLowC},
	}
	if s.Position != nil {
		t["position"] = s.Position
	}
	return t
}

type controlRequest struct {
	Action    string          `json:"action"`
	Distance  int             `json:"distance"`
	Degrees   int             `json:"degrees"`
	LandAfter bool            `json:"land_after"`
	Reason    string          `json:"reason"`
	Mission   *missionRequest `json:"mission"`
}

type missionRequest struct {
	MissionID  string             `json:"mission_id"`
	PlanID     string             `json:"plan_id"`
	FieldID    string             `json:"field_id"`
	AltitudeCM int                `json:"altitude_cm"`
	Waypoints  []planner.Waypoint `json:"waypoints"`
}

func (h *Handlers) handleControlSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control socket upgrade: %v", err)
		return
	}
	c := &controlClient{conn: conn, send: make(chan []byte, 64)}
	h.control.register(c)
	go c.writeLoop()

	defer func() {
		h.control.unregister(c)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req controlRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(failureResponse("invalid_request", "malformed control message", h.engine.Session().State()))
			continue
		}
		c.reply(h.handleAction(r.Context(), c, req))
	}
}

func (h *Handlers) handleAction(ctx context.Context, c *controlClient, req controlRequest) map[string]interface{} {
	sess := h.engine.Session()

	// The kill switch, the recovery path and plain status are never
	// gated on who holds the drone.
	switch req.Action {
	case "get_status":
		return h.statusResponse()
	case "emergency_stop":
		reason := req.Reason
		if reason == "" {
			reason = "pilot request"
		}
		return h.result(sess.EmergencyStop(reason), "emergency stop executed")
	case "reset":
		return h.result(sess.Reset(), "session reset")
	}

	if !h.control.guard(c) {
		return failureResponse("drone_busy", "another client is flying the drone", sess.State())
	}

	switch req.Action {
	case "connect":
		return h.actionConnect(ctx, c)
	case "disconnect":
		err := sess.Disconnect()
		if err == nil {
			h.control.release(c)
		}
		return h.result(err, "disconnected")
	case "start_stream":
		return h.result(sess.StartStream(), "stream started")
	case "stop_stream":
		return h.result(sess.StopStream(), "stream stopped")
	case "takeoff":
		return h.result(sess.Takeoff(ctx), "airborne")
	case "land":
		return h.result(sess.Land(ctx), "landed")
	case "start_recording":
		path, err := h.engine.StartRecording()
		if err != nil {
			return h.failure(err)
		}
		resp := h.success("recording started")
		resp["path"] = path
		return resp
	case "stop_recording":
		rec, err := h.engine.StopRecording()
		if err != nil {
			return h.failure(err)
		}
		if rec == nil {
			return h.success("no active recording")
		}
		resp := h.success("recording stopped")
		resp["recording"] = rec
		return resp
	case "execute_mission":
		return h.actionExecuteMission(req)
	case "move_forward", "move_back", "move_left", "move_right",
		"move_up", "move_down", "rotate_cw", "rotate_ccw":
		return h.actionMove(req)
	default:
		return failureResponse("invalid_request", fmt.Sprintf("unknown action %q", req.Action), sess.State())
	}
}

// actionConnect binds the drone to the client and brings the link up.
// Connecting to an already live link is a handover, not an error, so a
// console can pick up a flight whose controller dropped off.
func (h *Handlers) actionConnect(ctx context.Context, c *controlClient) map[string]interface{} {
	sess := h.engine.Session()
	h.control.acquire(c)
	if err := sess.Connect(ctx); err != nil {
		var transition *mission.InvalidStateTransitionError
		if errors.As(err, &transition) && sess.State() != mission.StateDisconnected {
			return h.success("control acquired")
		}
		h.control.release(c)
		return h.failure(err)
	}
	return h.success("connected")
}

// actionMove feeds one tap to the manual sampler, entering manual mode
// on the way if the drone is hovering.
func (h *Handlers) actionMove(req controlRequest) map[string]interface{} {
	sess := h.engine.Session()

	magnitude := req.Distance
	if magnitude == 0 {
		magnitude = defaultMoveCM
	}
	dir := req.Action
	switch req.Action {
	case "move_forward":
		dir = dispatch.DirForward
	case "move_back":
		dir = dispatch.DirBack
	case "move_left":
		dir = dispatch.DirLeft
	case "move_right":
		dir = dispatch.DirRight
	case "move_up":
		dir = dispatch.DirUp
	case "move_down":
		dir = dispatch.DirDown
	case "rotate_cw", "rotate_ccw":
		// These action names double as sampler directions.
		magnitude = req.Degrees
		if magnitude == 0 {
			magnitude = defaultRotateDeg
		}
	}

	if sess.State() != mission.StateManualControl {
		if err := sess.EnterManual(); err != nil {
			return h.failure(err)
		}
	}
	if err := sess.ManualTap(dir, magnitude); err != nil {
		return h.failure(err)
	}
	return h.success("")
}

// actionExecuteMission walks a plan delivered inline over the channel.
// A saved plan id is enough on its own; waypoints are loaded from the
// store when the message leaves them out.
func (h *Handlers) actionExecuteMission(req controlRequest) map[string]interface{} {
	sess := h.engine.Session()
	if req.Mission == nil {
		return failureResponse("invalid_request", "mission payload required", sess.State())
	}
	m := req.Mission

	plan := &planner.FlightPlan{
		ID:         m.PlanID,
		FieldID:    m.FieldID,
		Pattern:    planner.PatternBoustrophedon,
		AltitudeCM: m.AltitudeCM,
		Waypoints:  m.Waypoints,
	}
	if len(plan.Waypoints) == 0 && m.PlanID != "" {
		if rec, err := h.engine.DB().GetFlightPlan(m.PlanID); err == nil {
			json.Unmarshal([]byte(rec.Waypoints), &plan.Waypoints)
			plan.FieldID = rec.FieldID
			plan.AltitudeCM = rec.AltitudeCM
		}
	}
	if len(plan.Waypoints) == 0 {
		return failureResponse("invalid_request", "mission has no waypoints", sess.State())
	}

	missionID := m.MissionID
	if missionID == "" {
		// Flying a saved plan opens a durable mission record; an inline
		// ad hoc plan still gets an id for event correlation.
		missionID = uuid.New().String()
		if m.PlanID != "" {
			if rec, err := h.engine.MissionManager().CreateMission(m.PlanID); err == nil {
				missionID = rec.UUID
			}
		}
	}

	if err := sess.ExecuteMission(plan, missionID, req.LandAfter); err != nil {
		return h.failure(err)
	}
	resp := h.success("mission started")
	resp["mission_id"] = missionID
	return resp
}

func (h *Handlers) statusResponse() map[string]interface{} {
	resp := h.success("")
	resp["link_mode"] = h.engine.LinkMode()
	resp["recording"] = h.engine.Recording()
	if snap, ok := h.engine.Relay().Latest(); ok {
		resp["telemetry"] = wireTelemetry(snap)
	}
	return resp
}

func (h *Handlers) success(msg string) map[string]interface{} {
	state := h.engine.Session().State()
	resp := map[string]interface{}{
		"success": true,
		"state":   state,
		"mode":    mission.Mode(state),
	}
	if msg != "" {
		resp["message"] = msg
	}
	return resp
}

func (h *Handlers) failure(err error) map[string]interface{} {
	return failureResponse(errorCode(err), err.Error(), h.engine.Session().State())
}

func failureResponse(code, msg, state string) map[string]interface{} {
	return map[string]interface{}{
		"success":       false,
		"error_code":    code,
		"error_message": msg,
		"state":         state,
	}
}

func (h *Handlers) result(err error, msg string) map[string]interface{} {
	if err != nil {
		return h.failure(err)
	}
	return h.success(msg)
}

// SetupEngineListeners forwards live flight traffic to control channel
// clients: frames while streaming, raw telemetry between streams, and
// every mission and session transition.
func (hub *ControlHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		frame := evt.Payload.(engine.VideoFrameEvent).Frame
		msg := map[string]interface{}{
			"type":      "video_frame",
			"data":      base64.StdEncoding.EncodeToString(frame.Data),
			"format":    frame.Format,
			"seq":       frame.Seq,
			"recording": eng.Recording(),
		}
		if snap, ok := eng.Relay().Latest(); ok {
			msg["telemetry"] = wireTelemetry(snap)
		}
		hub.Broadcast(msg)
	}, engine.EventVideoFrame)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		// Frames carry telemetry whenever the camera is up, so the
		// bare feed only matters before the stream starts.
		if eng.Session().State() != mission.StateConnected {
			return
		}
		msg := wireTelemetry(evt.Payload.(engine.TelemetryEvent).Snapshot)
		msg["type"] = "telemetry"
		hub.Broadcast(msg)
	}, engine.EventTelemetryUpdated)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		msg := map[string]interface{}{"type": "mission_status"}
		switch p := evt.Payload.(type) {
		case engine.SessionStateEvent:
			msg["state"] = p.To
		case engine.MissionStartedEvent:
			msg["state"] = eng.Session().State()
			msg["mission_id"] = p.MissionID
			msg["status"] = mission.StatusExecuting
			msg["waypoint_index"] = 0
			msg["total_waypoints"] = p.Waypoints
		case engine.MissionProgressEvent:
			msg["state"] = eng.Session().State()
			msg["mission_id"] = p.MissionID
			msg["status"] = mission.StatusExecuting
			msg["waypoint_index"] = p.Completed
			msg["total_waypoints"] = p.Total
		case engine.MissionCompletedEvent:
			msg["state"] = eng.Session().State()
			msg["mission_id"] = p.MissionID
			msg["status"] = mission.StatusCompleted
		case engine.MissionAbortedEvent:
			msg["state"] = eng.Session().State()
			msg["mission_id"] = p.MissionID
			msg["detail"] = p.Reason
			if p.Reason == mission.AbortReasonEmergency {
				msg["status"] = mission.StatusEmergency
			} else {
				msg["status"] = mission.StatusAborted
			}
		}
		hub.Broadcast(msg)
	}, engine.EventSessionStateChanged, engine.EventMissionStarted,
		engine.EventMissionProgress, engine.EventMissionCompleted,
		engine.EventMissionAborted)
}
