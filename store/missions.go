package store

import "database/sql"

// Mission is one execution of a flight plan.
type Mission struct {
	ID             int64   `json:"id"`
	UUID           string  `json:"uuid"`
	PlanUUID       string  `json:"plan_uuid"`
	FieldID        string  `json:"field_id"`
	Status         string  `json:"status"`
	WaypointsTotal int     `json:"waypoints_total"`
	WaypointsDone  int     `json:"waypoints_done"`
	BatteryStart   *int    `json:"battery_start"`
	BatteryEnd     *int    `json:"battery_end"`
	Detail         string  `json:"detail"`
	StartedAt      *string `json:"started_at"`
	EndedAt        *string `json:"ended_at"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`

	// Joined fields
	FieldName string `json:"field_name"`
}

// MissionEvent records a mission status transition.
type MissionEvent struct {
	ID        int64  `json:"id"`
	MissionID int64  `json:"mission_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

const missionSelectCols = `m.id, m.uuid, m.plan_uuid, m.field_id, m.status,
	m.waypoints_total, m.waypoints_done, m.battery_start, m.battery_end,
	m.detail, m.started_at, m.ended_at, m.created_at, m.updated_at,
	COALESCE(f.name, '')`

const missionJoin = `FROM missions m
	LEFT JOIN fields f ON f.field_id = m.field_id`

func (db *DB) ListMissions() ([]Mission, error) {
	rows, err := db.Query(`SELECT ` + missionSelectCols + ` ` + missionJoin + ` ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMissions(rows)
}

func (db *DB) ListActiveMissions() ([]Mission, error) {
	rows, err := db.Query(`SELECT ` + missionSelectCols + ` ` + missionJoin + `
		WHERE m.status NOT IN ('completed', 'aborted', 'emergency')
		ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMissions(rows)
}

func scanMissions(rows *sql.Rows) ([]Mission, error) {
	var missions []Mission
	for rows.Next() {
		var m Mission
		if err := rows.Scan(&m.ID, &m.UUID, &m.PlanUUID, &m.FieldID, &m.Status,
			&m.WaypointsTotal, &m.WaypointsDone, &m.BatteryStart, &m.BatteryEnd,
			&m.Detail, &m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt,
			&m.FieldName); err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

func (db *DB) GetMission(id int64) (*Mission, error) {
	m := &Mission{}
	err := db.QueryRow(`SELECT `+missionSelectCols+` `+missionJoin+` WHERE m.id = ?`, id).
		Scan(&m.ID, &m.UUID, &m.PlanUUID, &m.FieldID, &m.Status,
			&m.WaypointsTotal, &m.WaypointsDone, &m.BatteryStart, &m.BatteryEnd,
			&m.Detail, &m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt,
			&m.FieldName)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (db *DB) GetMissionByUUID(uuid string) (*Mission, error) {
	m := &Mission{}
	err := db.QueryRow(`SELECT `+missionSelectCols+` `+missionJoin+` WHERE m.uuid = ?`, uuid).
		Scan(&m.ID, &m.UUID, &m.PlanUUID, &m.FieldID, &m.Status,
			&m.WaypointsTotal, &m.WaypointsDone, &m.BatteryStart, &m.BatteryEnd,
			&m.Detail, &m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt,
			&m.FieldName)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (db *DB) CreateMission(uuid, planUUID, fieldID string, waypointsTotal int) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO missions (uuid, plan_uuid, field_id, waypoints_total)
		VALUES (?, ?, ?, ?)`,
		uuid, planUUID, fieldID, waypointsTotal)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) UpdateMissionStatus(id int64, newStatus, detail string) error {
	_, err := db.Exec(`UPDATE missions SET status=?, detail=?, updated_at=datetime('now','localtime') WHERE id=?`,
		newStatus, detail, id)
	return err
}

// MarkMissionStarted stamps the start time and opening battery level.
func (db *DB) MarkMissionStarted(id int64, batteryStart *int) error {
	_, err := db.Exec(`UPDATE missions SET started_at=datetime('now','localtime'), battery_start=?,
		updated_at=datetime('now','localtime') WHERE id=?`, batteryStart, id)
	return err
}

// MarkMissionEnded stamps the end time and closing battery level.
func (db *DB) MarkMissionEnded(id int64, batteryEnd *int) error {
	_, err := db.Exec(`UPDATE missions SET ended_at=datetime('now','localtime'), battery_end=?,
		updated_at=datetime('now','localtime') WHERE id=?`, batteryEnd, id)
	return err
}

func (db *DB) UpdateMissionProgress(id int64, waypointsDone int) error {
	_, err := db.Exec(`UPDATE missions SET waypoints_done=?, updated_at=datetime('now','localtime') WHERE id=?`,
		waypointsDone, id)
	return err
}

func (db *DB) InsertMissionEvent(missionID int64, oldStatus, newStatus, detail string) error {
	_, err := db.Exec(`INSERT INTO mission_events (mission_id, old_status, new_status, detail) VALUES (?, ?, ?, ?)`,
		missionID, oldStatus, newStatus, detail)
	return err
}

func (db *DB) ListMissionEvents(missionID int64) ([]MissionEvent, error) {
	rows, err := db.Query(`SELECT id, mission_id, old_status, new_status, detail, created_at FROM mission_events WHERE mission_id = ? ORDER BY created_at`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []MissionEvent
	for rows.Next() {
		var e MissionEvent
		if err := rows.Scan(&e.ID, &e.MissionID, &e.OldStatus, &e.NewStatus, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
