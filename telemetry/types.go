package telemetry

import (
	"fmt"
	"time"
)

const (
	FormatJPEG = "jpeg"
	FormatH264 = "h264"
)

// Position is a dead-reckoned position in centimeters. Only the
// simulated link can report one; hardware drifts too much to track.
type Position struct {
	XCM int `json:"x_cm"`
	YCM int `json:"y_cm"`
	ZCM int `json:"z_cm"`
}

// Snapshot is one telemetry reading from the drone link.
type Snapshot struct {
	Battery       int       `json:"battery"`
	HeightCM      int       `json:"height"`
	FlightTimeSec int       `json:"flight_time"`
	TempLowC      int       `json:"temp_low"`
	TempHighC     int       `json:"temp_high"`
	Position      *Position `json:"position,omitempty"`
	DistanceCM    int       `json:"distance_cm,omitempty"`
	Time          time.Time `json:"-"`
}

// Frame is one video frame (or hardware stream chunk) from the link.
type Frame struct {
	Data       []byte
	Format     string
	Seq        uint64
	CapturedAt time.Time
}

// ValidationError reports a telemetry reading outside physical bounds.
// Readings failing validation are dropped, never propagated.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("telemetry validation: %s=%d out of range", e.Field, e.Value)
}

// Validate rejects physically impossible readings: battery outside
// [0,100], negative height, negative flight time.
func Validate(s Snapshot) error {
	if s.Battery < 0 || s.Battery > 100 {
		return &ValidationError{Field: "battery", Value: s.Battery}
	}
	if s.HeightCM < 0 {
		return &ValidationError{Field: "height", Value: s.HeightCM}
	}
	if s.FlightTimeSec < 0 {
		return &ValidationError{Field: "flight_time", Value: s.FlightTimeSec}
	}
	return nil
}
