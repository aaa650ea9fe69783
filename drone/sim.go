package drone

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"cropterd/telemetry"
)

// batteryDrainPerSec empties a full charge over the rated 30 minutes
// of flight.
const batteryDrainPerSec = 100.0 / (30 * 60)

const hoverHeightCM = 100

// SimConfig tunes the simulated link.
type SimConfig struct {
	AckLatency   time.Duration
	VideoFPS     int
	StartBattery float64
}

func (c SimConfig) withDefaults() SimConfig {
	if c.AckLatency == 0 {
		c.AckLatency = 15 * time.Millisecond
	}
	if c.VideoFPS == 0 {
		c.VideoFPS = 30
	}
	if c.StartBattery == 0 {
		c.StartBattery = 100
	}
	return c
}

// SimLink is a kinematic drone model behind the Link interface. Moves
// update a dead-reckoned position, flight time accrues while airborne,
// and the battery drains at the rated endurance. Video is a synthetic
// JPEG stream.
type SimLink struct {
	cfg SimConfig

	mu          sync.Mutex
	connected   bool
	flying      bool
	streaming   bool
	x, y, z     float64 // cm
	headingDeg  float64
	battery     float64
	flightSec   float64
	distanceCM  float64
	lastAdvance time.Time

	frames    chan telemetry.Frame
	videoStop chan struct{}
	videoWg   sync.WaitGroup
	seq       uint64
}

func NewSimLink(cfg SimConfig) *SimLink {
	return &SimLink{
		cfg:    cfg.withDefaults(),
		frames: make(chan telemetry.Frame, 8),
	}
}

func (s *SimLink) Mode() string { return ModeSim }

func (s *SimLink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return fmt.Errorf("sim link already connected")
	}
	s.connected = true
	s.flying = false
	s.x, s.y, s.z = 0, 0, 0
	s.headingDeg = 0
	s.battery = s.cfg.StartBattery
	s.flightSec = 0
	s.distanceCM = 0
	s.lastAdvance = time.Now()
	return nil
}

func (s *SimLink) Close() error {
	s.StopVideo()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flying = false
	s.z = 0
	s.connected = false
	return nil
}

func (s *SimLink) Send(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("sim link not connected")
	}
	s.mu.Unlock()

	select {
	case <-time.After(s.cfg.AckLatency):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(time.Now())

	switch cmd.Op {
	case OpTakeoff:
		s.flying = true
		s.z = hoverHeightCM
	case OpLand:
		s.flying = false
		s.z = 0
	case OpEmergency:
		s.flying = false
		s.z = 0
	case OpUp:
		s.z += float64(cmd.DistanceCM)
	case OpDown:
		s.z = math.Max(0, s.z-float64(cmd.DistanceCM))
	case OpForward:
		s.moveBodyLocked(float64(cmd.DistanceCM), 0)
	case OpBack:
		s.moveBodyLocked(-float64(cmd.DistanceCM), 0)
	case OpLeft:
		s.moveBodyLocked(0, float64(cmd.DistanceCM))
	case OpRight:
		s.moveBodyLocked(0, -float64(cmd.DistanceCM))
	case OpRotateCW:
		s.headingDeg = math.Mod(s.headingDeg+float64(cmd.Degrees), 360)
	case OpRotateCCW:
		s.headingDeg = math.Mod(s.headingDeg-float64(cmd.Degrees)+360, 360)
	case OpGo:
		s.moveBodyLocked(float64(cmd.DX), float64(cmd.DY))
		s.z = math.Max(0, s.z+float64(cmd.DZ))
		s.distanceCM += math.Abs(float64(cmd.DZ))
	case OpStreamOn, OpStreamOff:
		// video is managed through StartVideo/StopVideo
	default:
		return fmt.Errorf("sim link: unknown command %q", cmd.Op)
	}
	return nil
}

// moveBodyLocked applies a body-frame displacement: fwd along the
// heading, left perpendicular to it.
func (s *SimLink) moveBodyLocked(fwd, left float64) {
	h := s.headingDeg * math.Pi / 180
	s.x += fwd*math.Sin(h) - left*math.Cos(h)
	s.y += fwd*math.Cos(h) + left*math.Sin(h)
	s.distanceCM += math.Hypot(fwd, left)
}

// advanceLocked accrues flight time and battery drain since the last
// call.
func (s *SimLink) advanceLocked(now time.Time) {
	if s.flying {
		dt := now.Sub(s.lastAdvance).Seconds()
		s.flightSec += dt
		s.battery = math.Max(0, s.battery-dt*batteryDrainPerSec)
	}
	s.lastAdvance = now
}

func (s *SimLink) Telemetry() (telemetry.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return telemetry.Snapshot{}, fmt.Errorf("sim link not connected")
	}
	s.advanceLocked(time.Now())
	return telemetry.Snapshot{
		Battery:       int(math.Round(s.battery)),
		HeightCM:      int(math.Round(s.z)),
		FlightTimeSec: int(s.flightSec),
		TempLowC:      48,
		TempHighC:     52,
		Position: &telemetry.Position{
			XCM: int(math.Round(s.x)),
			YCM: int(math.Round(s.y)),
			ZCM: int(math.Round(s.z)),
		},
		DistanceCM: int(math.Round(s.distanceCM)),
		Time:       time.Now().UTC(),
	}, nil
}

func (s *SimLink) StartVideo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return fmt.Errorf("sim link not connected")
	}
	if s.streaming {
		return nil
	}
	s.streaming = true
	s.videoStop = make(chan struct{})
	s.videoWg.Add(1)
	go s.videoLoop(s.videoStop)
	return nil
}

func (s *SimLink) StopVideo() error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return nil
	}
	stop := s.videoStop
	s.streaming = false
	s.mu.Unlock()

	close(stop)
	s.videoWg.Wait()
	return nil
}

func (s *SimLink) Video() <-chan telemetry.Frame { return s.frames }

func (s *SimLink) videoLoop(stop chan struct{}) {
	defer s.videoWg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.VideoFPS))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.seq++
			seq := s.seq
			s.mu.Unlock()
			frame := telemetry.Frame{
				Data:       renderFrame(seq),
				Format:     telemetry.FormatJPEG,
				Seq:        seq,
				CapturedAt: time.Now().UTC(),
			}
			select {
			case s.frames <- frame:
			default:
				// consumer is behind; drop rather than stall the loop
			}
		}
	}
}

// renderFrame produces a small synthetic JPEG so downstream video
// plumbing sees realistic, distinct payloads.
func renderFrame(seq uint64) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	shade := uint8(40 + seq%160)
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.RGBA{R: shade / 2, G: shade, B: shade / 3, A: 255})
		}
	}
	// marker block sweeps across so consecutive frames differ
	mx := int(seq % 150)
	for y := 55; y < 65; y++ {
		for x := mx; x < mx+10 && x < 160; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60})
	return buf.Bytes()
}
