package www

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsDial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendAction writes one control message and returns its response,
// skipping any broadcast traffic interleaved on the socket.
func sendAction(t *testing.T, conn *websocket.Conn, req map[string]interface{}) map[string]interface{} {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write %v: %v", req["action"], err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read after %v: %v", req["action"], err)
		}
		if _, broadcast := msg["type"]; broadcast {
			continue
		}
		return msg
	}
	t.Fatalf("no response to %v", req["action"])
	return nil
}

func waitBroadcast(t *testing.T, conn *websocket.Conn, typ string, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(8 * time.Second))
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s broadcast: %v", typ, err)
		}
		if msg["type"] == typ && (match == nil || match(msg)) {
			return msg
		}
	}
	t.Fatalf("no %s broadcast arrived", typ)
	return nil
}

func mustSucceed(t *testing.T, resp map[string]interface{}, wantState string) {
	t.Helper()
	if resp["success"] != true {
		t.Fatalf("action failed: %v", resp)
	}
	if wantState != "" && resp["state"] != wantState {
		t.Fatalf("state = %v, want %s (%v)", resp["state"], wantState, resp)
	}
}

func mustFail(t *testing.T, resp map[string]interface{}, wantCode string) {
	t.Helper()
	if resp["success"] != false {
		t.Fatalf("action unexpectedly succeeded: %v", resp)
	}
	if resp["error_code"] != wantCode {
		t.Fatalf("error_code = %v, want %s (%v)", resp["error_code"], wantCode, resp)
	}
}

func TestControlChannelFlight(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := wsDial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var malformed map[string]interface{}
	if err := conn.ReadJSON(&malformed); err != nil {
		t.Fatalf("read malformed response: %v", err)
	}
	mustFail(t, malformed, "invalid_request")

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "connect"}), "connected")

	// Flight commands are refused until the camera is up.
	mustFail(t, sendAction(t, conn, map[string]interface{}{"action": "takeoff"}), "invalid_state_transition")

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "start_stream"}), "streaming")
	frame := waitBroadcast(t, conn, "video_frame", nil)
	if data, _ := frame["data"].(string); data == "" {
		t.Errorf("video frame carries no payload: %v", frame)
	}
	if frame["format"] == "" {
		t.Errorf("video frame has no format: %v", frame)
	}

	rec := sendAction(t, conn, map[string]interface{}{"action": "start_recording"})
	mustSucceed(t, rec, "")
	if path, _ := rec["path"].(string); path == "" {
		t.Errorf("start_recording returned no path: %v", rec)
	}

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "takeoff"}), "airborne")

	// A movement tap from a hover drops the session into manual mode.
	move := sendAction(t, conn, map[string]interface{}{"action": "move_forward", "distance": 50})
	mustSucceed(t, move, "manual_control")
	if move["mode"] != "manual" {
		t.Errorf("mode after tap = %v, want manual", move["mode"])
	}
	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "rotate_cw", "degrees": 90}), "manual_control")

	stopRec := sendAction(t, conn, map[string]interface{}{"action": "stop_recording"})
	mustSucceed(t, stopRec, "")
	take, _ := stopRec["recording"].(map[string]interface{})
	if take == nil || take["path"] == "" {
		t.Errorf("stop_recording returned no take: %v", stopRec)
	}

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "land"}), "landed")
	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "disconnect"}), "disconnected")
}

func TestControlChannelExclusivity(t *testing.T) {
	srv, _ := newTestServer(t)
	pilot := wsDial(t, srv)
	observer := wsDial(t, srv)

	mustSucceed(t, sendAction(t, pilot, map[string]interface{}{"action": "connect"}), "connected")

	// A second client cannot steal the drone while the pilot holds it.
	mustFail(t, sendAction(t, observer, map[string]interface{}{"action": "connect"}), "drone_busy")
	mustFail(t, sendAction(t, observer, map[string]interface{}{"action": "takeoff"}), "drone_busy")

	// Status and the kill switch are never gated.
	status := sendAction(t, observer, map[string]interface{}{"action": "get_status"})
	mustSucceed(t, status, "connected")
	if status["link_mode"] != "sim" {
		t.Errorf("link_mode = %v", status["link_mode"])
	}
	mustSucceed(t, sendAction(t, observer, map[string]interface{}{"action": "emergency_stop", "reason": "observer abort"}), "emergency_stopped")
	mustSucceed(t, sendAction(t, observer, map[string]interface{}{"action": "reset"}), "disconnected")

	// Control stays with the pilot until their socket goes away.
	mustFail(t, sendAction(t, observer, map[string]interface{}{"action": "connect"}), "drone_busy")
	pilot.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := sendAction(t, observer, map[string]interface{}{"action": "connect"})
		if resp["success"] == true {
			mustSucceed(t, resp, "connected")
			break
		}
		mustFail(t, resp, "drone_busy")
		if time.Now().After(deadline) {
			t.Fatal("control never released after the holder dropped")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestControlChannelMission(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := wsDial(t, srv)

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "connect"}), "connected")
	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "start_stream"}), "streaming")
	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "takeoff"}), "airborne")

	resp := sendAction(t, conn, map[string]interface{}{
		"action": "execute_mission",
		"mission": map[string]interface{}{
			"altitude_cm": 150,
			"waypoints": []map[string]float64{
				{"x": 0, "y": 1},
				{"x": 1, "y": 1},
			},
		},
	})
	mustSucceed(t, resp, "autonomous_executing")
	missionID, _ := resp["mission_id"].(string)
	if missionID == "" {
		t.Fatalf("no mission id in %v", resp)
	}

	done := waitBroadcast(t, conn, "mission_status", func(m map[string]interface{}) bool {
		return m["status"] == "completed"
	})
	if done["mission_id"] != missionID {
		t.Errorf("completion for mission %v, want %s", done["mission_id"], missionID)
	}

	// The walker hands the hover back when the plan has no land step.
	waitBroadcast(t, conn, "mission_status", func(m map[string]interface{}) bool {
		return m["status"] == nil && m["state"] == "airborne"
	})
	status := sendAction(t, conn, map[string]interface{}{"action": "get_status"})
	mustSucceed(t, status, "airborne")

	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "land"}), "landed")
	mustSucceed(t, sendAction(t, conn, map[string]interface{}{"action": "disconnect"}), "disconnected")
}
