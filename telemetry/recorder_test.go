package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cropterd/store"
)

func newTestRecorder(t *testing.T) (*Recorder, *store.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rec := NewRecorder(db, RecorderConfig{
		Dir:     filepath.Join(dir, "recordings"),
		LogFunc: func(string, ...any) {},
	})
	return rec, db
}

func TestRecorder_TakeLifecycle(t *testing.T) {
	rec, db := newTestRecorder(t)

	if rec.Active() {
		t.Fatal("fresh recorder should be inactive")
	}

	// Frames before a take starts go nowhere.
	rec.Append(Frame{Data: []byte("early")})

	path, err := rec.StartRecording(nil, FormatJPEG)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasSuffix(path, ".mjpeg") {
		t.Errorf("path = %q, want .mjpeg suffix for jpeg stream", path)
	}
	if !rec.Active() {
		t.Error("recorder should be active after start")
	}

	rec.Append(Frame{Data: []byte("aaaa")})
	rec.Append(Frame{Data: []byte("bbbbbb")})

	row, err := rec.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if row == nil {
		t.Fatal("stop should return the finished row")
	}
	if row.Frames != 2 || row.Bytes != 10 {
		t.Errorf("frames/bytes = %d/%d, want 2/10", row.Frames, row.Bytes)
	}
	if rec.Active() {
		t.Error("recorder should be inactive after stop")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read take: %v", err)
	}
	if !bytes.Equal(data, []byte("aaaabbbbbb")) {
		t.Errorf("file content = %q", data)
	}

	rows, err := db.ListRecordings()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Frames != 2 || rows[0].EndedAt == nil {
		t.Errorf("row = %+v, want finished with 2 frames", rows[0])
	}
	if rows[0].MissionUUID != nil {
		t.Errorf("MissionUUID = %v, want nil", rows[0].MissionUUID)
	}
}

func TestRecorder_DoubleStartRejected(t *testing.T) {
	rec, _ := newTestRecorder(t)
	if _, err := rec.StartRecording(nil, FormatH264); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := rec.StartRecording(nil, FormatH264); err == nil {
		t.Fatal("second start should be rejected")
	}
	rec.StopRecording()
}

func TestRecorder_StopWithoutTakeIsNoop(t *testing.T) {
	rec, _ := newTestRecorder(t)
	row, err := rec.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if row != nil {
		t.Errorf("row = %+v, want nil", row)
	}
}

func TestRecorder_AttachMission(t *testing.T) {
	rec, db := newTestRecorder(t)

	rec.AttachMission("mission-1") // no take yet, must not panic or write

	if _, err := rec.StartRecording(nil, FormatH264); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.AttachMission("mission-1")
	rec.StopRecording()

	rows, _ := db.ListRecordings()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].MissionUUID == nil || *rows[0].MissionUUID != "mission-1" {
		t.Errorf("MissionUUID = %v, want mission-1", rows[0].MissionUUID)
	}
}

func TestRecorder_MissionBoundTake(t *testing.T) {
	rec, db := newTestRecorder(t)

	mu := "mission-7"
	if _, err := rec.StartRecording(&mu, FormatH264); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.Append(Frame{Data: []byte("x")})
	rec.StopRecording()

	rows, _ := db.ListRecordings()
	if rows[0].MissionUUID == nil || *rows[0].MissionUUID != "mission-7" {
		t.Errorf("MissionUUID = %v, want mission-7", rows[0].MissionUUID)
	}
	if rows[0].Format != "h264" {
		t.Errorf("Format = %q, want h264", rows[0].Format)
	}
}
