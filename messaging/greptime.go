package messaging

import (
	"context"
	"log"
	"sync"
	"time"

	"cropterd/telemetry"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

const historyTable = "drone_telemetry"

// HistoryWriter ships telemetry to GreptimeDB so battery and flight
// curves survive past the relay's single latest snapshot. Readings are
// queued from the event bus and written on a worker goroutine at a
// sampled cadence.
type HistoryWriter struct {
	client greptime.Client
	db     string
	nodeID string

	minGap time.Duration
	in     chan telemetry.Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewHistoryWriter connects to GreptimeDB and auto-creates the
// telemetry table if needed.
func NewHistoryWriter(endpoint, database, nodeID string) (*HistoryWriter, error) {
	ctx := ingesterContext.NewContext(context.Background())
	client, err := greptime.NewClient(ctx, &greptime.Config{
		Endpoint: endpoint,
	})
	if err != nil {
		return nil, err
	}

	ddl := `
CREATE TABLE IF NOT EXISTS drone_telemetry (
  node_id STRING TAG,
  battery DOUBLE,
  height_cm DOUBLE,
  flight_time_sec DOUBLE,
  temp_low DOUBLE,
  temp_high DOUBLE,
  distance_cm DOUBLE,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='30d')
`
	if _, err := client.SQL(ctx, ddl); err != nil {
		return nil, err
	}

	return &HistoryWriter{
		client: client,
		db:     database,
		nodeID: nodeID,
		minGap: 5 * time.Second,
		in:     make(chan telemetry.Snapshot, 16),
		stopCh: make(chan struct{}),
	}, nil
}

// RecordSnapshot queues one reading. Drops when the writer is behind
// so the event bus never blocks on the history sink.
func (w *HistoryWriter) RecordSnapshot(snap telemetry.Snapshot) {
	select {
	case w.in <- snap:
	default:
	}
}

// Start begins the write loop.
func (w *HistoryWriter) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the write loop.
func (w *HistoryWriter) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *HistoryWriter) loop() {
	defer w.wg.Done()
	var lastWrite time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case snap := <-w.in:
			if time.Since(lastWrite) < w.minGap {
				continue
			}
			if err := w.write(snap); err != nil {
				log.Printf("history write: %v", err)
				continue
			}
			lastWrite = time.Now()
		}
	}
}

func (w *HistoryWriter) write(snap telemetry.Snapshot) error {
	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(historyTable)
	tbl.AddTagColumn("node_id", types.StringType, 0)
	tbl.AddFieldColumn("battery", types.Float64Type)
	tbl.AddFieldColumn("height_cm", types.Float64Type)
	tbl.AddFieldColumn("flight_time_sec", types.Float64Type)
	tbl.AddFieldColumn("temp_low", types.Float64Type)
	tbl.AddFieldColumn("temp_high", types.Float64Type)
	tbl.AddFieldColumn("distance_cm", types.Float64Type)
	tbl.SetTimeIndex("ts", types.TimestampType)

	tbl.AppendTagValue("node_id", w.nodeID)
	tbl.AppendFieldValue("battery", float64(snap.Battery))
	tbl.AppendFieldValue("height_cm", float64(snap.HeightCM))
	tbl.AppendFieldValue("flight_time_sec", float64(snap.FlightTimeSec))
	tbl.AppendFieldValue("temp_low", float64(snap.TempLowC))
	tbl.AppendFieldValue("temp_high", float64(snap.TempHighC))
	tbl.AppendFieldValue("distance_cm", float64(snap.DistanceCM))
	tbl.AppendTimeIndex(snap.Time)

	return w.client.Write(ctx, w.db, []*table.Table{tbl})
}
