package dispatch

import (
	"fmt"
	"sync"
	"time"

	"cropterd/drone"
)

// Manual input directions accepted by the sampler.
const (
	DirForward   = "forward"
	DirBack      = "back"
	DirLeft      = "left"
	DirRight     = "right"
	DirUp        = "up"
	DirDown      = "down"
	DirRotateCW  = "rotate_cw"
	DirRotateCCW = "rotate_ccw"
)

// SamplerConfig tunes the manual sampling loop.
type SamplerConfig struct {
	Interval  time.Duration
	StepCM    int
	RotateDeg int
}

func (c SamplerConfig) withDefaults() SamplerConfig {
	if c.Interval == 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.StepCM == 0 {
		c.StepCM = 30
	}
	if c.RotateDeg == 0 {
		c.RotateDeg = 30
	}
	return c
}

// Sampler turns raw pilot input into drone commands. Inputs are
// sampled on a fixed interval and coalesced: opposing directions
// cancel, the dominant axis wins, and a tick is skipped entirely when
// a command is still outstanding. Taps are consumed by the next tick,
// held directions repeat until released.
type Sampler struct {
	d   *Dispatcher
	cfg SamplerConfig

	mu       sync.Mutex
	held     map[string]int
	tapped   map[string]int
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSampler(d *Dispatcher, cfg SamplerConfig) *Sampler {
	return &Sampler{
		d:      d,
		cfg:    cfg.withDefaults(),
		held:   make(map[string]int),
		tapped: make(map[string]int),
	}
}

func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopChan)
}

// Stop halts the loop and clears all input. Nothing composed from
// prior input stays queued after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.held = make(map[string]int)
	s.tapped = make(map[string]int)
	s.mu.Unlock()
	s.wg.Wait()
}

// Press starts holding a direction; it repeats each tick until
// released. A zero magnitude uses the configured step.
func (s *Sampler) Press(dir string, magnitude int) error {
	mag, err := s.normalize(dir, magnitude)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.held[dir] = mag
	s.mu.Unlock()
	return nil
}

// Release stops holding a direction.
func (s *Sampler) Release(dir string) {
	s.mu.Lock()
	delete(s.held, dir)
	s.mu.Unlock()
}

// ReleaseAll clears every held direction.
func (s *Sampler) ReleaseAll() {
	s.mu.Lock()
	s.held = make(map[string]int)
	s.mu.Unlock()
}

// Tap registers a one-shot input consumed by the next tick.
func (s *Sampler) Tap(dir string, magnitude int) error {
	mag, err := s.normalize(dir, magnitude)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tapped[dir] = mag
	s.mu.Unlock()
	return nil
}

func (s *Sampler) normalize(dir string, magnitude int) (int, error) {
	switch dir {
	case DirRotateCW, DirRotateCCW:
		if magnitude == 0 {
			magnitude = s.cfg.RotateDeg
		}
		if magnitude < MinRotateDeg || magnitude > MaxRotateDeg {
			return 0, &InvalidCommandParameterError{Param: "degrees", Value: magnitude, Min: MinRotateDeg, Max: MaxRotateDeg}
		}
	case DirForward, DirBack, DirLeft, DirRight, DirUp, DirDown:
		if magnitude == 0 {
			magnitude = s.cfg.StepCM
		}
		if magnitude < MinMoveCM || magnitude > MaxMoveCM {
			return 0, &InvalidCommandParameterError{Param: "distance", Value: magnitude, Min: MinMoveCM, Max: MaxMoveCM}
		}
	default:
		return 0, fmt.Errorf("unknown direction %q", dir)
	}
	return magnitude, nil
}

func (s *Sampler) loop(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if cmd, ok := s.compose(); ok {
				s.d.TrySend(cmd)
			}
		}
	}
}

// compose nets the current input down to at most one command. Taps
// override a held value on the same direction and are cleared here
// whether or not a command goes out.
func (s *Sampler) compose() (drone.Command, bool) {
	s.mu.Lock()
	merged := make(map[string]int, len(s.held)+len(s.tapped))
	for dir, mag := range s.held {
		merged[dir] = mag
	}
	for dir, mag := range s.tapped {
		merged[dir] = mag
	}
	s.tapped = make(map[string]int)
	s.mu.Unlock()

	fwd := merged[DirForward] - merged[DirBack]
	lat := merged[DirRight] - merged[DirLeft]
	vert := merged[DirUp] - merged[DirDown]
	rot := merged[DirRotateCW] - merged[DirRotateCCW]

	// Opposing inputs can net below the SDK minimum; treat that as no
	// input on the axis.
	if abs(fwd) < MinMoveCM {
		fwd = 0
	}
	if abs(lat) < MinMoveCM {
		lat = 0
	}
	if abs(vert) < MinMoveCM {
		vert = 0
	}
	if abs(rot) < MinRotateDeg {
		rot = 0
	}

	switch {
	case fwd != 0 && abs(fwd) >= abs(lat) && abs(fwd) >= abs(vert):
		if fwd > 0 {
			return drone.Command{Op: drone.OpForward, DistanceCM: fwd}, true
		}
		return drone.Command{Op: drone.OpBack, DistanceCM: -fwd}, true
	case lat != 0 && abs(lat) >= abs(vert):
		if lat > 0 {
			return drone.Command{Op: drone.OpRight, DistanceCM: lat}, true
		}
		return drone.Command{Op: drone.OpLeft, DistanceCM: -lat}, true
	case vert != 0:
		if vert > 0 {
			return drone.Command{Op: drone.OpUp, DistanceCM: vert}, true
		}
		return drone.Command{Op: drone.OpDown, DistanceCM: -vert}, true
	case rot != 0:
		if rot > 0 {
			return drone.Command{Op: drone.OpRotateCW, Degrees: rot}, true
		}
		return drone.Command{Op: drone.OpRotateCCW, Degrees: -rot}, true
	}
	return drone.Command{}, false
}
