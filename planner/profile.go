package planner

import "math"

// Profile describes the capabilities of the airframe that will fly the
// plan. Planning and budgeting never read hardware state; everything
// derives from these numbers.
type Profile struct {
	CameraFOVHDeg       float64
	CameraFOVVDeg       float64
	MaxAltitudeM        float64
	MinAltitudeM        float64
	MaxSpeedMS          float64
	MaxRangeM           float64
	BatteryLifeMin      float64
	BatteryBufferPct    float64
	UsableFlightTimeSec int
	MaxMoveCM           int
	MinMoveCM           int
	PositionDriftCM     int
}

// TelloProfile returns the capability profile of the DJI/Ryze Tello.
// Usable flight time is the rated 30 minutes minus a 20% reserve.
func TelloProfile() Profile {
	return Profile{
		CameraFOVHDeg:       82.6,
		CameraFOVVDeg:       51.0,
		MaxAltitudeM:        3.0,
		MinAltitudeM:        0.5,
		MaxSpeedMS:          2.0,
		MaxRangeM:           80,
		BatteryLifeMin:      30,
		BatteryBufferPct:    0.20,
		UsableFlightTimeSec: 1440,
		MaxMoveCM:           500,
		MinMoveCM:           20,
		PositionDriftCM:     50,
	}
}

// FootprintWidth returns the across-track ground coverage of one camera
// frame at the given altitude, in meters.
func (p Profile) FootprintWidth(altM float64) float64 {
	return 2 * altM * math.Tan(p.CameraFOVHDeg*math.Pi/360)
}

// FootprintHeight returns the along-track ground coverage of one camera
// frame at the given altitude, in meters.
func (p Profile) FootprintHeight(altM float64) float64 {
	return 2 * altM * math.Tan(p.CameraFOVVDeg*math.Pi/360)
}

// MaxWaypointsPerBattery caps a single-battery plan: usable flight time
// minus takeoff overhead, two seconds per waypoint, 10% slack.
func (p Profile) MaxWaypointsPerBattery() int {
	return int(float64((p.UsableFlightTimeSec-10)/2) * 0.9)
}
