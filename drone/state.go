package drone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cropterd/telemetry"
)

// parseState decodes the Tello state datagram, a semicolon-separated
// key:value string such as
// "pitch:0;roll:0;yaw:0;bat:87;h:10;time:120;templ:48;temph:52;".
// Keys we do not track are skipped; non-integer values are ignored.
func parseState(s string) (telemetry.Snapshot, error) {
	snap := telemetry.Snapshot{}
	sawBattery := false

	for _, field := range strings.Split(strings.TrimSpace(s), ";") {
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "bat":
			snap.Battery = n
			sawBattery = true
		case "h":
			snap.HeightCM = n
		case "time":
			snap.FlightTimeSec = n
		case "templ":
			snap.TempLowC = n
		case "temph":
			snap.TempHighC = n
		}
	}
	if !sawBattery {
		return snap, fmt.Errorf("state datagram missing bat field: %q", s)
	}
	snap.Time = time.Now().UTC()
	return snap, nil
}
