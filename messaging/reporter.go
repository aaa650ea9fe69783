package messaging

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"cropterd/store"
	"cropterd/telemetry"
)

// TelemetryReporter rolls up telemetry snapshots and enqueues a summary
// on the outbox at the report interval. Follows the Heartbeater pattern.
type TelemetryReporter struct {
	db       *store.DB
	nodeID   string
	interval time.Duration

	mu         sync.Mutex
	last       telemetry.Snapshot
	batteryMin int
	batteryMax int
	samples    int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTelemetryReporter creates a reporter for the given node identity.
func NewTelemetryReporter(db *store.DB, nodeID string, interval time.Duration) *TelemetryReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &TelemetryReporter{
		db:       db,
		nodeID:   nodeID,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// RecordSnapshot folds one validated reading into the accumulator.
// Called from the event bus, so it only touches memory.
func (tr *TelemetryReporter) RecordSnapshot(snap telemetry.Snapshot) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.samples == 0 || snap.Battery < tr.batteryMin {
		tr.batteryMin = snap.Battery
	}
	if tr.samples == 0 || snap.Battery > tr.batteryMax {
		tr.batteryMax = snap.Battery
	}
	tr.last = snap
	tr.samples++
}

// Start begins the periodic flush loop.
func (tr *TelemetryReporter) Start() {
	go tr.loop()
}

// Stop flushes any remaining samples and halts the loop.
func (tr *TelemetryReporter) Stop() {
	tr.stopOnce.Do(func() {
		close(tr.stopCh)
		tr.flush()
	})
}

func (tr *TelemetryReporter) loop() {
	ticker := time.NewTicker(tr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-tr.stopCh:
			return
		case <-ticker.C:
			tr.flush()
		}
	}
}

func (tr *TelemetryReporter) flush() {
	tr.mu.Lock()
	if tr.samples == 0 {
		tr.mu.Unlock()
		return
	}
	// Swap out the accumulator
	last, lo, hi, n := tr.last, tr.batteryMin, tr.batteryMax, tr.samples
	tr.samples = 0
	tr.mu.Unlock()

	report := TelemetryReport{
		NodeID:        tr.nodeID,
		Battery:       last.Battery,
		BatteryMin:    lo,
		BatteryMax:    hi,
		HeightCM:      last.HeightCM,
		FlightTimeSec: last.FlightTimeSec,
		TempLowC:      last.TempLowC,
		TempHighC:     last.TempHighC,
		Samples:       n,
		SentAt:        time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("telemetry_reporter: encode report: %v", err)
		return
	}
	if _, err := tr.db.EnqueueOutbox("telemetry", payload, "telemetry_report"); err != nil {
		log.Printf("telemetry_reporter: enqueue report: %v", err)
	}
}
