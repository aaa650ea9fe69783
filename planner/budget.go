package planner

import "math"

const (
	hoverSecPerWaypoint = 1.0
	takeoffLandingSec   = 6.0
)

// Budget is the estimated cost of flying a plan. BatteryPct may exceed
// 100 and is never clamped; feasibility decisions read it as-is.
type Budget struct {
	TotalDistanceM  float64 `json:"total_distance_m"`
	DurationSec     int     `json:"estimated_duration_sec"`
	BatteryPct      float64 `json:"estimated_battery_pct"`
	BatteriesNeeded int     `json:"batteries_needed"`
	CoverageAreaSqm float64 `json:"coverage_area_sqm"`
}

// Estimate prices a waypoint sequence: cruise time over the summed leg
// distance, one second of hover per waypoint, and a fixed six seconds
// of takeoff and landing overhead. Pure; no I/O, no clock.
func Estimate(wps []Waypoint, prof Profile) Budget {
	if len(wps) == 0 {
		return Budget{}
	}
	var dist float64
	for i := 1; i < len(wps); i++ {
		dist += math.Hypot(wps[i].X-wps[i-1].X, wps[i].Y-wps[i-1].Y)
	}
	total := dist/prof.MaxSpeedMS + float64(len(wps))*hoverSecPerWaypoint + takeoffLandingSec
	batteryPct := total / float64(prof.UsableFlightTimeSec) * 100

	batteries := int(math.Ceil(batteryPct / 100))
	if batteries < 1 {
		batteries = 1
	}
	return Budget{
		TotalDistanceM:  dist,
		DurationSec:     int(math.Round(total)),
		BatteryPct:      batteryPct,
		BatteriesNeeded: batteries,
	}
}
