package drone

import (
	"strings"
	"testing"
)

func TestParseState_Full(t *testing.T) {
	raw := "pitch:0;roll:-1;yaw:3;vgx:0;vgy:0;vgz:0;templ:48;temph:52;tof:10;h:120;bat:87;baro:163.22;time:245;agx:1.00;agy:-3.00;agz:-998.00;\r\n"
	snap, err := parseState(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.Battery != 87 {
		t.Errorf("battery = %d, want 87", snap.Battery)
	}
	if snap.HeightCM != 120 {
		t.Errorf("height = %d, want 120", snap.HeightCM)
	}
	if snap.FlightTimeSec != 245 {
		t.Errorf("flight time = %d, want 245", snap.FlightTimeSec)
	}
	if snap.TempLowC != 48 || snap.TempHighC != 52 {
		t.Errorf("temps = %d/%d, want 48/52", snap.TempLowC, snap.TempHighC)
	}
	if snap.Position != nil {
		t.Error("hardware state must not invent a position")
	}
}

func TestParseState_MissingBattery(t *testing.T) {
	if _, err := parseState("h:10;time:5;"); err == nil {
		t.Error("datagram without bat should be rejected")
	}
}

func TestParseState_SkipsMalformedFields(t *testing.T) {
	snap, err := parseState("garbage;;bat:55;baro:not-a-number;h:oops;")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.Battery != 55 {
		t.Errorf("battery = %d, want 55", snap.Battery)
	}
	if snap.HeightCM != 0 {
		t.Errorf("unparsable height should stay 0, got %d", snap.HeightCM)
	}
}

func TestCommandText(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{Command{Op: OpTakeoff}, "takeoff"},
		{Command{Op: OpForward, DistanceCM: 50}, "forward 50"},
		{Command{Op: OpRotateCW, Degrees: 90}, "cw 90"},
		{Command{Op: OpGo, DX: 100, DY: -20, DZ: 0, SpeedCMS: 80}, "go 100 -20 0 80"},
		{Command{Op: OpEmergency}, "emergency"},
	}
	for _, c := range cases {
		if got := c.cmd.text(); got != c.want {
			t.Errorf("text(%s) = %q, want %q", c.cmd.Op, got, c.want)
		}
	}
}

func TestLinkLostError_Message(t *testing.T) {
	err := &LinkLostError{Op: "forward", Err: errTimeout{}}
	if !strings.Contains(err.Error(), "forward") {
		t.Errorf("message %q should name the command", err.Error())
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "i/o timeout" }
