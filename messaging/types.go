package messaging

// Directive is an inbound control message from the farm broker.
type Directive struct {
	NodeID    string `json:"node_id"`
	Directive string `json:"directive"` // emergency_stop, reset
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Heartbeat announces a live node to the farm broker.
type Heartbeat struct {
	NodeID       string `json:"node_id"`
	Kind         string `json:"kind"` // register, heartbeat
	Hostname     string `json:"hostname"`
	Version      string `json:"version,omitempty"`
	UptimeSec    int64  `json:"uptime_sec"`
	DroneMode    string `json:"drone_mode"`
	SessionState string `json:"session_state"`
	SentAt       string `json:"sent_at"`
}

// TelemetryReport is the periodic roll-up of drone telemetry sent to
// the farm broker through the outbox.
type TelemetryReport struct {
	NodeID        string `json:"node_id"`
	Battery       int    `json:"battery"`
	BatteryMin    int    `json:"battery_min"`
	BatteryMax    int    `json:"battery_max"`
	HeightCM      int    `json:"height_cm"`
	FlightTimeSec int    `json:"flight_time_sec"`
	TempLowC      int    `json:"temp_low"`
	TempHighC     int    `json:"temp_high"`
	Samples       int    `json:"samples"`
	SentAt        string `json:"sent_at"`
}
