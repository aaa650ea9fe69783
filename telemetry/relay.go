package telemetry

import (
	"log"
	"sync"
	"time"
)

// Source is the slice of the drone link the relay reads from.
type Source interface {
	Telemetry() (Snapshot, error)
	Video() <-chan Frame
}

// EventEmitter is the interface the relay uses to publish readings and
// frames. The engine package implements this via an adapter to avoid
// import cycles.
type EventEmitter interface {
	EmitTelemetry(s Snapshot)
	EmitVideoFrame(f Frame)
}

// FrameSink receives every pumped video frame. The recorder implements
// this; appends are no-ops while no recording is active.
type FrameSink interface {
	Append(f Frame)
}

// RelayConfig tunes the relay.
type RelayConfig struct {
	PollInterval time.Duration
	LogFunc      func(format string, args ...any)
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.LogFunc == nil {
		c.LogFunc = log.Printf
	}
	return c
}

// Relay polls the drone link for telemetry, keeps the last reading that
// passed validation, and pumps video frames to the event bus and the
// frame sink. A reading that fails validation is dropped and logged;
// the previous good snapshot stays current.
type Relay struct {
	src     Source
	emitter EventEmitter
	sink    FrameSink
	cfg     RelayConfig

	mu       sync.RWMutex
	latest   Snapshot
	haveGood bool
	srcOK    bool
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRelay creates a relay over src. emitter and sink may be nil.
func NewRelay(src Source, emitter EventEmitter, sink FrameSink, cfg RelayConfig) *Relay {
	return &Relay{
		src:     src,
		emitter: emitter,
		sink:    sink,
		cfg:     cfg.withDefaults(),
	}
}

// Start launches the poll and video pump goroutines. Safe to call again
// after Stop.
func (r *Relay) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.stopChan = make(chan struct{})
	r.running = true
	stop := r.stopChan
	r.mu.Unlock()

	r.wg.Add(2)
	go r.pollLoop(stop)
	go r.pumpLoop(stop)
}

// Stop halts both loops and waits for them to exit.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopChan)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
}

// Latest returns the most recent valid snapshot, if any reading has
// passed validation since the relay was created.
func (r *Relay) Latest() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.haveGood
}

func (r *Relay) pollLoop(stop chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.pollTick()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pollTick()
		}
	}
}

func (r *Relay) pollTick() {
	s, err := r.src.Telemetry()
	if err != nil {
		r.mu.Lock()
		wasOK := r.srcOK
		r.srcOK = false
		r.mu.Unlock()
		if wasOK {
			r.cfg.LogFunc("telemetry source unavailable: %v", err)
		}
		return
	}

	if s.Time.IsZero() {
		s.Time = time.Now().UTC()
	}
	if err := Validate(s); err != nil {
		r.cfg.LogFunc("telemetry dropped: %v", err)
		return
	}

	r.mu.Lock()
	wasDown := !r.srcOK && r.haveGood
	r.srcOK = true
	r.latest = s
	r.haveGood = true
	r.mu.Unlock()
	if wasDown {
		r.cfg.LogFunc("telemetry source recovered")
	}

	if r.emitter != nil {
		r.emitter.EmitTelemetry(s)
	}
}

func (r *Relay) pumpLoop(stop chan struct{}) {
	defer r.wg.Done()
	frames := r.src.Video()
	for {
		select {
		case <-stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if r.sink != nil {
				r.sink.Append(f)
			}
			if r.emitter != nil {
				r.emitter.EmitVideoFrame(f)
			}
		}
	}
}
