package store

import "database/sql"

// FlightPlanRecord is a persisted flight plan. Waypoints and warnings
// are stored as JSON so a plan re-loads exactly as it was generated.
type FlightPlanRecord struct {
	ID              int64   `json:"id"`
	UUID            string  `json:"uuid"`
	FieldID         string  `json:"field_id"`
	Pattern         string  `json:"pattern"`
	AltitudeCM      int     `json:"altitude_cm"`
	OverlapPct      float64 `json:"overlap_pct"`
	WaypointCount   int     `json:"waypoint_count"`
	TotalDistanceM  float64 `json:"total_distance_m"`
	DurationSec     float64 `json:"duration_sec"`
	BatteryPct      float64 `json:"battery_pct"`
	BatteriesNeeded int     `json:"batteries_needed"`
	CoverageSqm     float64 `json:"coverage_sqm"`
	Feasible        bool    `json:"feasible"`
	Waypoints       string  `json:"waypoints"`
	Warnings        string  `json:"warnings"`
	CreatedAt       string  `json:"created_at"`
}

const planSelectCols = `id, uuid, field_id, pattern, altitude_cm, overlap_pct, waypoint_count,
	total_distance_m, duration_sec, battery_pct, batteries_needed, coverage_sqm,
	feasible, waypoints, warnings, created_at`

func (db *DB) SaveFlightPlan(p FlightPlanRecord) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO flight_plans (uuid, field_id, pattern, altitude_cm, overlap_pct, waypoint_count,
			total_distance_m, duration_sec, battery_pct, batteries_needed, coverage_sqm,
			feasible, waypoints, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UUID, p.FieldID, p.Pattern, p.AltitudeCM, p.OverlapPct, p.WaypointCount,
		p.TotalDistanceM, p.DurationSec, p.BatteryPct, p.BatteriesNeeded, p.CoverageSqm,
		p.Feasible, p.Waypoints, p.Warnings)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) GetFlightPlan(uuid string) (*FlightPlanRecord, error) {
	p := &FlightPlanRecord{}
	err := db.QueryRow(`SELECT `+planSelectCols+` FROM flight_plans WHERE uuid = ?`, uuid).
		Scan(&p.ID, &p.UUID, &p.FieldID, &p.Pattern, &p.AltitudeCM, &p.OverlapPct, &p.WaypointCount,
			&p.TotalDistanceM, &p.DurationSec, &p.BatteryPct, &p.BatteriesNeeded, &p.CoverageSqm,
			&p.Feasible, &p.Waypoints, &p.Warnings, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) ListFlightPlans(fieldID string) ([]FlightPlanRecord, error) {
	var rows *sql.Rows
	var err error
	if fieldID == "" {
		rows, err = db.Query(`SELECT ` + planSelectCols + ` FROM flight_plans ORDER BY created_at DESC`)
	} else {
		rows, err = db.Query(`SELECT `+planSelectCols+` FROM flight_plans WHERE field_id = ? ORDER BY created_at DESC`, fieldID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFlightPlans(rows)
}

func scanFlightPlans(rows *sql.Rows) ([]FlightPlanRecord, error) {
	var plans []FlightPlanRecord
	for rows.Next() {
		var p FlightPlanRecord
		if err := rows.Scan(&p.ID, &p.UUID, &p.FieldID, &p.Pattern, &p.AltitudeCM, &p.OverlapPct, &p.WaypointCount,
			&p.TotalDistanceM, &p.DurationSec, &p.BatteryPct, &p.BatteriesNeeded, &p.CoverageSqm,
			&p.Feasible, &p.Waypoints, &p.Warnings, &p.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (db *DB) DeleteFlightPlan(uuid string) error {
	_, err := db.Exec(`DELETE FROM flight_plans WHERE uuid = ?`, uuid)
	return err
}
