package drone

import (
	"context"
	"fmt"

	"cropterd/telemetry"
)

const (
	ModeSim   = "sim"
	ModeTello = "tello"
)

// Command operations, matching the Tello text SDK tokens.
const (
	OpTakeoff   = "takeoff"
	OpLand      = "land"
	OpUp        = "up"
	OpDown      = "down"
	OpLeft      = "left"
	OpRight     = "right"
	OpForward   = "forward"
	OpBack      = "back"
	OpRotateCW  = "cw"
	OpRotateCCW = "ccw"
	OpGo        = "go"
	OpEmergency = "emergency"
	OpStreamOn  = "streamon"
	OpStreamOff = "streamoff"
)

// Command is one drone instruction. DistanceCM applies to directional
// moves, Degrees to rotations, DX/DY/DZ/SpeedCMS to go.
type Command struct {
	Op         string
	DistanceCM int
	Degrees    int
	DX, DY, DZ int
	SpeedCMS   int
}

// text renders the command in SDK wire form.
func (c Command) text() string {
	switch c.Op {
	case OpUp, OpDown, OpLeft, OpRight, OpForward, OpBack:
		return fmt.Sprintf("%s %d", c.Op, c.DistanceCM)
	case OpRotateCW, OpRotateCCW:
		return fmt.Sprintf("%s %d", c.Op, c.Degrees)
	case OpGo:
		return fmt.Sprintf("go %d %d %d %d", c.DX, c.DY, c.DZ, c.SpeedCMS)
	}
	return c.Op
}

// LinkLostError reports a drone that stopped answering.
type LinkLostError struct {
	Op  string
	Err error
}

func (e *LinkLostError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("drone link lost: %v", e.Err)
	}
	return fmt.Sprintf("drone link lost during %s: %v", e.Op, e.Err)
}

func (e *LinkLostError) Unwrap() error { return e.Err }

// Link is the capability surface of one drone connection. A session
// owns exactly one Link; the variant (simulated or hardware) is chosen
// at session creation and never changes mid-session.
type Link interface {
	Connect(ctx context.Context) error
	Close() error

	// Send transmits one command and blocks until the drone acks it,
	// the context expires, or the link fails.
	Send(ctx context.Context, cmd Command) error

	Telemetry() (telemetry.Snapshot, error)

	StartVideo() error
	StopVideo() error
	Video() <-chan telemetry.Frame

	Mode() string
}
