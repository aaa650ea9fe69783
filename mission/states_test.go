package mission

import "testing"

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StateDisconnected, StateConnected, true},
		{StateDisconnected, StateAirborne, false},
		{StateConnected, StateStreaming, true},
		{StateConnected, StateAirborne, false},
		{StateStreaming, StateAirborne, true},
		{StateStreaming, StateConnected, true},
		{StateAirborne, StateManualControl, true},
		{StateAirborne, StateAutonomous, true},
		{StateAirborne, StateLanded, true},
		{StateManualControl, StateAutonomous, false},
		{StateAutonomous, StateManualControl, false},
		{StateManualControl, StateAirborne, true},
		{StateAutonomous, StateLanded, true},
		{StateLanded, StateAirborne, true},
		{StateLanded, StateDisconnected, true},
		{StateLanded, StateStreaming, false},
		{StateEmergencyStopped, StateDisconnected, true},
		{StateEmergencyStopped, StateAirborne, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	// An emergency stop is legal from everywhere, including itself.
	for from := range validTransitions {
		if !IsValidTransition(from, StateEmergencyStopped) {
			t.Errorf("IsValidTransition(%s, %s) = false, want true", from, StateEmergencyStopped)
		}
	}
}

func TestMode(t *testing.T) {
	if got := Mode(StateManualControl); got != "manual" {
		t.Errorf("Mode(manual_control) = %q, want manual", got)
	}
	if got := Mode(StateAutonomous); got != "autonomous" {
		t.Errorf("Mode(autonomous_executing) = %q, want autonomous", got)
	}
	for _, state := range []string{StateDisconnected, StateAirborne, StateLanded} {
		if got := Mode(state); got != "none" {
			t.Errorf("Mode(%s) = %q, want none", state, got)
		}
	}
}
