package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cropterd/config"
	"cropterd/mission"
	"cropterd/planner"
	"cropterd/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.DatabasePath = filepath.Join(dir, "test.db")
	cfg.RecordingsDir = filepath.Join(dir, "recordings")
	cfg.Telemetry.PollIntervalMS = 20

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e, err := New(Config{AppConfig: cfg, ConfigPath: filepath.Join(dir, "config.yaml"), DB: db})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// takeOff walks the session through connect, stream on, takeoff.
func takeOff(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	if err := e.Session().Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := e.Session().StartStream(); err != nil {
		t.Fatalf("start stream: %v", err)
	}
	if err := e.Session().Takeoff(ctx); err != nil {
		t.Fatalf("takeoff: %v", err)
	}
}

func seedPlan(t *testing.T, db *store.DB, planUUID string, waypoints int) {
	t.Helper()
	if _, err := db.CreateField("north", "North Paddock", `{"boundary":[[0,0],[40,0],[40,30],[0,30]]}`); err != nil {
		t.Fatalf("create field: %v", err)
	}
	_, err := db.SaveFlightPlan(store.FlightPlanRecord{
		UUID:            planUUID,
		FieldID:         "north",
		Pattern:         "boustrophedon",
		AltitudeCM:      150,
		OverlapPct:      0.2,
		WaypointCount:   waypoints,
		TotalDistanceM:  80,
		DurationSec:     90,
		BatteryPct:      18,
		BatteriesNeeded: 1,
		CoverageSqm:     1200,
		Feasible:        true,
		Waypoints:       "[]",
		Warnings:        "[]",
	})
	if err != nil {
		t.Fatalf("save plan: %v", err)
	}
}

func TestEngineRejectsUnknownDroneMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Drone.Mode = "quadcopter"
	if _, err := New(Config{AppConfig: cfg}); err == nil {
		t.Fatal("expected an error for an unknown drone mode")
	}
}

func TestEngineStartsRelayOnConnect(t *testing.T) {
	e := newTestEngine(t)

	if _, ok := e.Relay().Latest(); ok {
		t.Fatal("relay should not have telemetry before connect")
	}
	if err := e.Session().Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, ok := e.Relay().Latest()
		return ok
	})
}

func TestEngineAutoRecordsFlight(t *testing.T) {
	e := newTestEngine(t)
	var started, stopped int
	e.Events.SubscribeTypes(func(evt Event) {
		switch evt.Type {
		case EventRecordingStarted:
			started++
		case EventRecordingStopped:
			stopped++
		}
	}, EventRecordingStarted, EventRecordingStopped)

	takeOff(t, e)
	waitFor(t, 2*time.Second, func() bool { return e.Recording() })

	if err := e.Session().Land(context.Background()); err != nil {
		t.Fatalf("land: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return !e.Recording() })

	if started != 1 || stopped != 1 {
		t.Fatalf("expected one take, got %d started / %d stopped", started, stopped)
	}
	recs, err := e.DB().ListRecordings()
	if err != nil {
		t.Fatalf("list recordings: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recording row, got %d", len(recs))
	}
	if recs[0].EndedAt == nil {
		t.Fatal("recording row was never finished")
	}
	if recs[0].MissionUUID != nil {
		t.Fatalf("free flight should not bind a mission, got %q", *recs[0].MissionUUID)
	}
}

func TestEngineMissionRecordLifecycle(t *testing.T) {
	e := newTestEngine(t)
	seedPlan(t, e.DB(), "plan-1", 2)

	m, err := e.MissionManager().CreateMission("plan-1")
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.Status != mission.StatusCreated {
		t.Fatalf("expected created, got %s", m.Status)
	}

	takeOff(t, e)
	waitFor(t, 2*time.Second, func() bool { return e.Recording() })

	plan := &planner.FlightPlan{
		FieldID:    "north",
		AltitudeCM: 150,
		Waypoints:  []planner.Waypoint{{X: 0, Y: 1}, {X: 1, Y: 1}},
	}
	if err := e.Session().ExecuteMission(plan, m.UUID, false); err != nil {
		t.Fatalf("execute mission: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		rec, err := e.DB().GetMissionByUUID(m.UUID)
		return err == nil && rec.Status == mission.StatusCompleted
	})

	rec, err := e.DB().GetMissionByUUID(m.UUID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if rec.WaypointsDone != 2 {
		t.Fatalf("expected 2 waypoints done, got %d", rec.WaypointsDone)
	}
	if rec.StartedAt == nil || rec.EndedAt == nil {
		t.Fatal("expected start and end stamps on a completed mission")
	}
	if rec.BatteryStart == nil {
		t.Fatal("expected a battery stamp at mission start")
	}

	events, err := e.DB().ListMissionEvents(rec.ID)
	if err != nil {
		t.Fatalf("list mission events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected executing and completed events, got %d", len(events))
	}
	if events[0].NewStatus != mission.StatusExecuting || events[1].NewStatus != mission.StatusCompleted {
		t.Fatalf("wrong event sequence: %s then %s", events[0].NewStatus, events[1].NewStatus)
	}

	// The take that auto-started at takeoff is bound to the mission.
	if err := e.Session().Land(context.Background()); err != nil {
		t.Fatalf("land: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return !e.Recording() })
	recs, err := e.DB().ListRecordings()
	if err != nil {
		t.Fatalf("list recordings: %v", err)
	}
	if len(recs) != 1 || recs[0].MissionUUID == nil || *recs[0].MissionUUID != m.UUID {
		t.Fatal("expected the flight take bound to the mission record")
	}
}

func TestEngineEmergencyStopClosesEverything(t *testing.T) {
	e := newTestEngine(t)
	seedPlan(t, e.DB(), "plan-1", 40)

	m, err := e.MissionManager().CreateMission("plan-1")
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}

	takeOff(t, e)
	waitFor(t, 2*time.Second, func() bool { return e.Recording() })

	// Legs of four meters keep the walker busy long enough to pull the
	// plug mid-flight.
	wps := make([]planner.Waypoint, 40)
	for i := range wps {
		wps[i] = planner.Waypoint{X: float64(i%2) * 4, Y: float64(i/2) * 4}
	}
	plan := &planner.FlightPlan{FieldID: "north", AltitudeCM: 150, Waypoints: wps}
	if err := e.Session().ExecuteMission(plan, m.UUID, false); err != nil {
		t.Fatalf("execute mission: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		rec, err := e.DB().GetMissionByUUID(m.UUID)
		return err == nil && rec.Status == mission.StatusExecuting
	})

	if err := e.Session().EmergencyStop("pilot request"); err != nil {
		t.Fatalf("emergency stop: %v", err)
	}

	if got := e.Session().State(); got != mission.StateEmergencyStopped {
		t.Fatalf("expected emergency_stopped, got %s", got)
	}
	rec, err := e.DB().GetMissionByUUID(m.UUID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if rec.Status != mission.StatusEmergency {
		t.Fatalf("expected emergency record, got %s", rec.Status)
	}
	if rec.EndedAt == nil {
		t.Fatal("expected an end stamp on the emergency record")
	}
	if e.Recording() {
		t.Fatal("expected the take closed on emergency stop")
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	takeOff(t, e)
	waitFor(t, 2*time.Second, func() bool { return e.Recording() })

	e.Stop()
	e.Stop()

	if e.Recording() {
		t.Fatal("expected recording closed on shutdown")
	}
}
