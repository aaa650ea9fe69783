package telemetry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cropterd/store"
)

// RecorderConfig tunes the video recorder.
type RecorderConfig struct {
	Dir     string
	LogFunc func(format string, args ...any)
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.Dir == "" {
		c.Dir = "recordings"
	}
	if c.LogFunc == nil {
		c.LogFunc = log.Printf
	}
	return c
}

// Recorder appends video frames to a file on disk and books a
// recordings row around each take. It implements FrameSink so the relay
// can feed it unconditionally; frames arriving while no take is active
// are discarded.
type Recorder struct {
	db  *store.DB
	cfg RecorderConfig

	mu        sync.Mutex
	file      *os.File
	recID     int64
	path      string
	frames    int64
	bytes     int64
	writeErrs int
}

func NewRecorder(db *store.DB, cfg RecorderConfig) *Recorder {
	return &Recorder{db: db, cfg: cfg.withDefaults()}
}

// Active reports whether a take is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// fileExt maps a stream format to the container extension on disk.
// JPEG frames are appended back to back, which players read as MJPEG.
func fileExt(format string) string {
	if format == FormatJPEG {
		return "mjpeg"
	}
	return format
}

// StartRecording opens a new take for the given stream format and
// returns the file path. missionUUID may be nil for takes that start
// before any mission does.
func (r *Recorder) StartRecording(missionUUID *string, format string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return "", fmt.Errorf("recording already active: %s", r.path)
	}

	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(r.cfg.Dir, fmt.Sprintf("rec_%s.%s",
		time.Now().Format("20060102_150405"), fileExt(format)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open recording file: %w", err)
	}

	id, err := r.db.CreateRecording(missionUUID, path, format)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("create recording row: %w", err)
	}

	r.file = f
	r.recID = id
	r.path = path
	r.frames = 0
	r.bytes = 0
	r.writeErrs = 0
	return path, nil
}

// Append writes one frame to the active take. It is a no-op while no
// take is open.
func (r *Recorder) Append(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	n, err := r.file.Write(f.Data)
	if err != nil {
		r.writeErrs++
		if r.writeErrs == 1 {
			r.cfg.LogFunc("recording write %s: %v", r.path, err)
		}
		return
	}
	r.frames++
	r.bytes += int64(n)
}

// AttachMission links the active take to a mission that started while
// the camera was already rolling.
func (r *Recorder) AttachMission(missionUUID string) {
	r.mu.Lock()
	id := r.recID
	active := r.file != nil
	r.mu.Unlock()
	if !active {
		return
	}
	if err := r.db.AttachRecordingMission(id, missionUUID); err != nil {
		r.cfg.LogFunc("attach recording to mission %s: %v", missionUUID, err)
	}
}

// StopRecording closes the active take and stamps the recordings row.
// It returns the finished row, or nil if nothing was recording.
func (r *Recorder) StopRecording() (*store.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil, nil
	}

	closeErr := r.file.Close()
	rec := &store.Recording{
		ID:     r.recID,
		Path:   r.path,
		Frames: r.frames,
		Bytes:  r.bytes,
	}
	r.file = nil

	if err := r.db.FinishRecording(rec.ID, rec.Frames, rec.Bytes); err != nil {
		return rec, fmt.Errorf("finish recording row: %w", err)
	}
	if closeErr != nil {
		return rec, fmt.Errorf("close recording file: %w", closeErr)
	}
	return rec, nil
}
