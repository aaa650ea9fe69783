package dispatch

import (
	"errors"
	"testing"
	"time"

	"cropterd/drone"
)

func (f *fakeLink) commands() []drone.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]drone.Command, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestSampler(t *testing.T, link *fakeLink) *Sampler {
	t.Helper()
	d := newTestDispatcher(t, link)
	s := NewSampler(d, SamplerConfig{Interval: 20 * time.Millisecond})
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func countOp(cmds []drone.Command, op string) int {
	n := 0
	for _, cmd := range cmds {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

func TestSampler_TapSendsOnce(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	if err := s.Tap(DirForward, 50); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	waitFor(t, time.Second, func() bool { return countOp(link.commands(), drone.OpForward) == 1 }, "tap never produced a command")

	time.Sleep(100 * time.Millisecond)
	if got := countOp(link.commands(), drone.OpForward); got != 1 {
		t.Fatalf("tap produced %d commands, want 1", got)
	}
	cmds := link.commands()
	if cmds[0].DistanceCM != 50 {
		t.Fatalf("distance = %d, want 50", cmds[0].DistanceCM)
	}
}

func TestSampler_HeldRepeatsUntilRelease(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	if err := s.Press(DirForward, 0); err != nil {
		t.Fatalf("Press: %v", err)
	}
	waitFor(t, time.Second, func() bool { return countOp(link.commands(), drone.OpForward) >= 3 }, "held input never repeated")

	s.Release(DirForward)
	time.Sleep(60 * time.Millisecond)
	n := countOp(link.commands(), drone.OpForward)
	time.Sleep(100 * time.Millisecond)
	if got := countOp(link.commands(), drone.OpForward); got != n {
		t.Fatalf("commands kept flowing after release: %d -> %d", n, got)
	}

	// Zero magnitude uses the default step.
	for _, cmd := range link.commands() {
		if cmd.DistanceCM != 30 {
			t.Fatalf("distance = %d, want default step 30", cmd.DistanceCM)
		}
	}
}

func TestSampler_OpposingInputsCancel(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	if err := s.Press(DirForward, 50); err != nil {
		t.Fatalf("Press forward: %v", err)
	}
	if err := s.Press(DirBack, 50); err != nil {
		t.Fatalf("Press back: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if got := link.commands(); len(got) != 0 {
		t.Fatalf("opposing inputs produced %d commands, want 0", len(got))
	}
}

func TestSampler_DominantAxisWins(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	if err := s.Press(DirForward, 100); err != nil {
		t.Fatalf("Press forward: %v", err)
	}
	if err := s.Press(DirRight, 40); err != nil {
		t.Fatalf("Press right: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(link.commands()) >= 3 }, "no commands produced")
	for _, cmd := range link.commands() {
		if cmd.Op != drone.OpForward {
			t.Fatalf("got %s command, want only forward while it dominates", cmd.Op)
		}
	}
}

func TestSampler_RotationYieldsToTranslation(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	if err := s.Press(DirRotateCW, 90); err != nil {
		t.Fatalf("Press rotate: %v", err)
	}
	if err := s.Press(DirUp, 40); err != nil {
		t.Fatalf("Press up: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(link.commands()) >= 2 }, "no commands produced")
	if got := countOp(link.commands(), drone.OpRotateCW); got != 0 {
		t.Fatalf("rotation sent %d times while translating, want 0", got)
	}

	s.ReleaseAll()
	time.Sleep(60 * time.Millisecond)
	before := len(link.commands())
	if err := s.Press(DirRotateCW, 90); err != nil {
		t.Fatalf("Press rotate: %v", err)
	}
	waitFor(t, time.Second, func() bool { return countOp(link.commands(), drone.OpRotateCW) > 0 }, "rotation never sent once translation released")
	cmds := link.commands()
	if cmds[before].Op != drone.OpRotateCW || cmds[before].Degrees != 90 {
		t.Fatalf("first command after release = %+v, want cw 90", cmds[before])
	}
}

func TestSampler_StopLeavesNothingQueued(t *testing.T) {
	link := &fakeLink{}
	d := newTestDispatcher(t, link)
	s := NewSampler(d, SamplerConfig{Interval: 20 * time.Millisecond})
	s.Start()

	if err := s.Press(DirForward, 50); err != nil {
		t.Fatalf("Press: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(link.commands()) >= 1 }, "no commands produced")
	s.Stop()
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	n := len(link.commands())
	time.Sleep(100 * time.Millisecond)
	if got := len(link.commands()); got != n {
		t.Fatalf("commands kept flowing after Stop: %d -> %d", n, got)
	}
	if len(d.queue) != 0 {
		t.Fatalf("queue depth after Stop = %d, want 0", len(d.queue))
	}
}

func TestSampler_RejectsBadInput(t *testing.T) {
	link := &fakeLink{}
	s := newTestSampler(t, link)

	err := s.Tap(DirForward, 5)
	var pe *InvalidCommandParameterError
	if !errors.As(err, &pe) {
		t.Fatalf("Tap(forward, 5) = %v, want *InvalidCommandParameterError", err)
	}
	if err := s.Press("sideways", 30); err == nil {
		t.Fatal("Press with unknown direction succeeded")
	}
	time.Sleep(80 * time.Millisecond)
	if len(link.commands()) != 0 {
		t.Fatalf("rejected input produced commands: %v", link.ops())
	}
}
