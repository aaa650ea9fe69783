package mission

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cropterd/store"

	"github.com/google/uuid"
)

// RecordEmitter is the interface the mission record manager uses to
// announce status changes.
type RecordEmitter interface {
	MissionRecordChanged(missionUUID, oldStatus, newStatus string)
}

// Manager handles the mission record lifecycle. The live flight is the
// session's business; the manager keeps the durable history and feeds
// the farm broker through the outbox.
type Manager struct {
	db        *store.DB
	emitter   RecordEmitter
	farmID    string
	droneID   string
	batteryFn func() *int
}

// NewManager creates a mission record manager. batteryFn may be nil
// when no telemetry source is available.
func NewManager(db *store.DB, emitter RecordEmitter, farmID, droneID string, batteryFn func() *int) *Manager {
	return &Manager{
		db:        db,
		emitter:   emitter,
		farmID:    farmID,
		droneID:   droneID,
		batteryFn: batteryFn,
	}
}

// CreateMission opens a mission record against a stored flight plan
// and enqueues the announcement to the outbox.
func (m *Manager) CreateMission(planUUID string) (*store.Mission, error) {
	plan, err := m.db.GetFlightPlan(planUUID)
	if err != nil {
		return nil, fmt.Errorf("flight plan %s not found: %w", planUUID, err)
	}

	missionUUID := uuid.New().String()
	missionID, err := m.db.CreateMission(missionUUID, planUUID, plan.FieldID, plan.WaypointCount)
	if err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}

	msg := Message{
		FarmID:         m.farmID,
		DroneID:        m.droneID,
		MissionUUID:    missionUUID,
		PlanUUID:       planUUID,
		FieldID:        plan.FieldID,
		Status:         StatusCreated,
		WaypointsTotal: plan.WaypointCount,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	payload, _ := json.Marshal(msg)
	if _, err := m.db.EnqueueOutbox("missions", payload, "mission_created"); err != nil {
		log.Printf("enqueue mission %s: %v", missionUUID, err)
	}

	m.emitter.MissionRecordChanged(missionUUID, "", StatusCreated)
	return m.db.GetMission(missionID)
}

// TransitionMission moves a mission record to a new status with
// validation. Start and end timestamps and battery levels are stamped
// on the executing and terminal edges.
func (m *Manager) TransitionMission(missionUUID, newStatus, detail string) error {
	mission, err := m.db.GetMissionByUUID(missionUUID)
	if err != nil {
		return fmt.Errorf("get mission: %w", err)
	}

	if !IsValidMissionTransition(mission.Status, newStatus) {
		return fmt.Errorf("invalid transition from %s to %s", mission.Status, newStatus)
	}

	oldStatus := mission.Status
	if err := m.db.UpdateMissionStatus(mission.ID, newStatus, detail); err != nil {
		return fmt.Errorf("update mission status: %w", err)
	}
	if err := m.db.InsertMissionEvent(mission.ID, oldStatus, newStatus, detail); err != nil {
		log.Printf("insert mission event: %v", err)
	}

	switch {
	case newStatus == StatusExecuting:
		if err := m.db.MarkMissionStarted(mission.ID, m.battery()); err != nil {
			log.Printf("mark mission started: %v", err)
		}
	case IsMissionTerminal(newStatus):
		if err := m.db.MarkMissionEnded(mission.ID, m.battery()); err != nil {
			log.Printf("mark mission ended: %v", err)
		}
	}

	msg := Message{
		FarmID:      m.farmID,
		DroneID:     m.droneID,
		MissionUUID: missionUUID,
		PlanUUID:    mission.PlanUUID,
		FieldID:     mission.FieldID,
		Status:      newStatus,
		Detail:      detail,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	payload, _ := json.Marshal(msg)
	if _, err := m.db.EnqueueOutbox("missions", payload, "mission_status"); err != nil {
		log.Printf("enqueue mission status %s: %v", missionUUID, err)
	}

	m.emitter.MissionRecordChanged(missionUUID, oldStatus, newStatus)
	return nil
}

// UpdateProgress persists how far along the walker is.
func (m *Manager) UpdateProgress(missionUUID string, waypointsDone int) error {
	mission, err := m.db.GetMissionByUUID(missionUUID)
	if err != nil {
		return fmt.Errorf("get mission: %w", err)
	}
	return m.db.UpdateMissionProgress(mission.ID, waypointsDone)
}

func (m *Manager) battery() *int {
	if m.batteryFn == nil {
		return nil
	}
	return m.batteryFn()
}

// Message is the outbound mission report JSON.
type Message struct {
	FarmID         string `json:"farm_id"`
	DroneID        string `json:"drone_id"`
	MissionUUID    string `json:"mission_uuid"`
	PlanUUID       string `json:"plan_uuid,omitempty"`
	FieldID        string `json:"field_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Detail         string `json:"detail,omitempty"`
	WaypointsTotal int    `json:"waypoints_total,omitempty"`
	Timestamp      string `json:"timestamp"`
}
