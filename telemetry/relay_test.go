package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu     sync.Mutex
	snap   Snapshot
	err    error
	frames chan Frame
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan Frame, 8)}
}

func (s *fakeSource) set(snap Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.err = err
}

func (s *fakeSource) Telemetry() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *fakeSource) Video() <-chan Frame { return s.frames }

type mockRelayEmitter struct {
	mu     sync.Mutex
	snaps  []Snapshot
	frames []Frame
}

func (m *mockRelayEmitter) EmitTelemetry(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
}

func (m *mockRelayEmitter) EmitVideoFrame(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
}

func (m *mockRelayEmitter) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps), len(m.frames)
}

type collectSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collectSink) Append(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestRelay(t *testing.T, src *fakeSource, emitter EventEmitter, sink FrameSink) *Relay {
	t.Helper()
	r := NewRelay(src, emitter, sink, RelayConfig{
		PollInterval: 10 * time.Millisecond,
		LogFunc:      func(string, ...any) {},
	})
	t.Cleanup(r.Stop)
	return r
}

func TestRelay_TracksLatest(t *testing.T) {
	src := newFakeSource()
	src.set(Snapshot{Battery: 88, HeightCM: 120, FlightTimeSec: 30}, nil)
	emitter := &mockRelayEmitter{}
	r := newTestRelay(t, src, emitter, nil)

	if _, ok := r.Latest(); ok {
		t.Fatal("Latest should be empty before Start")
	}

	r.Start()
	waitFor(t, time.Second, func() bool { _, ok := r.Latest(); return ok }, "no snapshot arrived")

	got, _ := r.Latest()
	if got.Battery != 88 || got.HeightCM != 120 {
		t.Errorf("Latest = %+v", got)
	}
	if got.Time.IsZero() {
		t.Error("Time should be stamped when the source omits it")
	}

	src.set(Snapshot{Battery: 87, HeightCM: 150, FlightTimeSec: 35}, nil)
	waitFor(t, time.Second, func() bool {
		s, _ := r.Latest()
		return s.Battery == 87
	}, "updated snapshot never arrived")

	snaps, _ := emitter.counts()
	if snaps < 2 {
		t.Errorf("emitted snapshots = %d, want at least 2", snaps)
	}
}

func TestRelay_DropsInvalidKeepsLastGood(t *testing.T) {
	src := newFakeSource()
	src.set(Snapshot{Battery: 88, HeightCM: 120}, nil)
	r := newTestRelay(t, src, nil, nil)
	r.Start()
	waitFor(t, time.Second, func() bool { _, ok := r.Latest(); return ok }, "no snapshot arrived")

	src.set(Snapshot{Battery: 150, HeightCM: 120}, nil)
	time.Sleep(50 * time.Millisecond)

	got, ok := r.Latest()
	if !ok {
		t.Fatal("last good snapshot should survive a bad reading")
	}
	if got.Battery != 88 {
		t.Errorf("Battery = %d, want 88 (bad reading must not replace it)", got.Battery)
	}
}

func TestRelay_SourceErrorKeepsLastGood(t *testing.T) {
	src := newFakeSource()
	src.set(Snapshot{Battery: 88}, nil)
	r := newTestRelay(t, src, nil, nil)
	r.Start()
	waitFor(t, time.Second, func() bool { _, ok := r.Latest(); return ok }, "no snapshot arrived")

	src.set(Snapshot{}, errors.New("link down"))
	time.Sleep(50 * time.Millisecond)

	got, ok := r.Latest()
	if !ok || got.Battery != 88 {
		t.Errorf("Latest = %+v ok=%v, want battery 88 preserved", got, ok)
	}

	// Recovery resumes updates.
	src.set(Snapshot{Battery: 70}, nil)
	waitFor(t, time.Second, func() bool {
		s, _ := r.Latest()
		return s.Battery == 70
	}, "relay never recovered")
}

func TestRelay_PumpsFramesToSinkAndEmitter(t *testing.T) {
	src := newFakeSource()
	src.set(Snapshot{Battery: 88}, nil)
	emitter := &mockRelayEmitter{}
	sink := &collectSink{}
	r := newTestRelay(t, src, emitter, sink)
	r.Start()

	for i := 1; i <= 3; i++ {
		src.frames <- Frame{Data: []byte{byte(i)}, Format: FormatJPEG, Seq: uint64(i)}
	}
	waitFor(t, time.Second, func() bool { return sink.count() == 3 }, "frames never reached the sink")
	waitFor(t, time.Second, func() bool { _, f := emitter.counts(); return f == 3 }, "frames never reached the emitter")
}

func TestRelay_StopHaltsLoops(t *testing.T) {
	src := newFakeSource()
	src.set(Snapshot{Battery: 88}, nil)
	emitter := &mockRelayEmitter{}
	r := newTestRelay(t, src, emitter, nil)
	r.Start()
	waitFor(t, time.Second, func() bool { s, _ := emitter.counts(); return s > 0 }, "no snapshot arrived")

	r.Stop()
	r.Stop()
	snaps, _ := emitter.counts()
	time.Sleep(50 * time.Millisecond)
	after, _ := emitter.counts()
	if after != snaps {
		t.Errorf("snapshots kept arriving after Stop: %d -> %d", snaps, after)
	}

	// Restartable after Stop.
	r.Start()
	waitFor(t, time.Second, func() bool { s, _ := emitter.counts(); return s > after }, "relay did not restart")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		ok   bool
	}{
		{"valid", Snapshot{Battery: 50, HeightCM: 100, FlightTimeSec: 10}, true},
		{"battery low", Snapshot{Battery: -1}, false},
		{"battery high", Snapshot{Battery: 101}, false},
		{"negative height", Snapshot{Battery: 50, HeightCM: -5}, false},
		{"negative flight time", Snapshot{Battery: 50, FlightTimeSec: -1}, false},
		{"empty is valid", Snapshot{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.snap)
			if tc.ok && err != nil {
				t.Errorf("Validate(%+v) = %v, want nil", tc.snap, err)
			}
			if !tc.ok && err == nil {
				t.Errorf("Validate(%+v) = nil, want error", tc.snap)
			}
		})
	}
}
