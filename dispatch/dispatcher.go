package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cropterd/drone"
)

// Tello SDK bounds. Out-of-range values are rejected, never clamped.
const (
	MinMoveCM    = 20
	MaxMoveCM    = 500
	MinRotateDeg = 1
	MaxRotateDeg = 360
	MinSpeedCMS  = 10
	MaxSpeedCMS  = 100
)

// ErrPreempted is returned for queued commands purged by an emergency
// stop, and for sends attempted while the emergency latch is set.
var ErrPreempted = errors.New("command preempted by emergency stop")

// ErrStopped is returned for sends against a stopped dispatcher.
var ErrStopped = errors.New("dispatcher stopped")

// InvalidCommandParameterError reports a command parameter outside the
// SDK's accepted range.
type InvalidCommandParameterError struct {
	Param    string
	Value    int
	Min, Max int
}

func (e *InvalidCommandParameterError) Error() string {
	return fmt.Sprintf("invalid command parameter %s=%d, allowed [%d, %d]", e.Param, e.Value, e.Min, e.Max)
}

// ValidateCommand checks a command's parameters against the SDK
// bounds before it may be queued.
func ValidateCommand(cmd drone.Command) error {
	switch cmd.Op {
	case drone.OpUp, drone.OpDown, drone.OpLeft, drone.OpRight, drone.OpForward, drone.OpBack:
		if cmd.DistanceCM < MinMoveCM || cmd.DistanceCM > MaxMoveCM {
			return &InvalidCommandParameterError{Param: "distance", Value: cmd.DistanceCM, Min: MinMoveCM, Max: MaxMoveCM}
		}
	case drone.OpRotateCW, drone.OpRotateCCW:
		if cmd.Degrees < MinRotateDeg || cmd.Degrees > MaxRotateDeg {
			return &InvalidCommandParameterError{Param: "degrees", Value: cmd.Degrees, Min: MinRotateDeg, Max: MaxRotateDeg}
		}
	case drone.OpGo:
		for _, axis := range []struct {
			name string
			v    int
		}{{"x", cmd.DX}, {"y", cmd.DY}, {"z", cmd.DZ}} {
			if axis.v < -MaxMoveCM || axis.v > MaxMoveCM {
				return &InvalidCommandParameterError{Param: axis.name, Value: axis.v, Min: -MaxMoveCM, Max: MaxMoveCM}
			}
		}
		if abs(cmd.DX) < MinMoveCM && abs(cmd.DY) < MinMoveCM && abs(cmd.DZ) < MinMoveCM {
			return &InvalidCommandParameterError{Param: "x/y/z", Value: cmd.DX, Min: MinMoveCM, Max: MaxMoveCM}
		}
		if cmd.SpeedCMS < MinSpeedCMS || cmd.SpeedCMS > MaxSpeedCMS {
			return &InvalidCommandParameterError{Param: "speed", Value: cmd.SpeedCMS, Min: MinSpeedCMS, Max: MaxSpeedCMS}
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type queued struct {
	cmd  drone.Command
	resp chan error
}

// Config tunes the dispatcher.
type Config struct {
	QueueSize  int
	AckTimeout time.Duration
	LogFunc    func(string, ...any)
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = 16
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.LogFunc == nil {
		c.LogFunc = log.Printf
	}
	return c
}

// Dispatcher serializes all traffic to the drone link: exactly one
// command is outstanding at a time. An emergency stop latches the
// dispatcher, purges everything queued, and takes a direct path to the
// link so no queued command can ever reach the drone after it.
type Dispatcher struct {
	link       drone.Link
	queue      chan queued
	ackTimeout time.Duration
	logFn      func(string, ...any)

	latched  atomic.Bool
	inflight atomic.Bool

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(link drone.Link, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		link:       link,
		queue:      make(chan queued, cfg.QueueSize),
		ackTimeout: cfg.AckTimeout,
		logFn:      cfg.LogFunc,
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.wg.Add(1)
	go d.run(d.stopChan)
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	for {
		select {
		case q := <-d.queue:
			q.resp <- ErrStopped
		default:
			return
		}
	}
}

func (d *Dispatcher) run(stop chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-stop:
			return
		case q := <-d.queue:
			if d.latched.Load() {
				q.resp <- ErrPreempted
				continue
			}
			d.inflight.Store(true)
			ctx, cancel := context.WithTimeout(context.Background(), d.ackTimeout)
			err := d.link.Send(ctx, q.cmd)
			cancel()
			d.inflight.Store(false)
			q.resp <- err
		}
	}
}

// Send validates, queues and waits for the drone's ack.
func (d *Dispatcher) Send(ctx context.Context, cmd drone.Command) error {
	if err := ValidateCommand(cmd); err != nil {
		return err
	}
	if d.latched.Load() {
		return ErrPreempted
	}
	d.mu.Lock()
	running := d.running
	stop := d.stopChan
	d.mu.Unlock()
	if !running {
		return ErrStopped
	}

	q := queued{cmd: cmd, resp: make(chan error, 1)}
	select {
	case d.queue <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	}
	select {
	case err := <-q.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues a command only when the dispatcher is fully idle; a
// busy dispatcher skips it. Used by the manual sampler so held inputs
// coalesce instead of piling up.
func (d *Dispatcher) TrySend(cmd drone.Command) bool {
	if ValidateCommand(cmd) != nil || d.latched.Load() {
		return false
	}
	if len(d.queue) > 0 || d.inflight.Load() {
		return false
	}
	q := queued{cmd: cmd, resp: make(chan error, 1)}
	select {
	case d.queue <- q:
	default:
		return false
	}
	go func() {
		if err := <-q.resp; err != nil {
			d.logFn("manual %s: %v", cmd.Op, err)
		}
	}()
	return true
}

// EmergencyStop latches the dispatcher, purges the queue, and lands
// the drone on the direct path. If the land is not acked the motors
// are cut outright.
func (d *Dispatcher) EmergencyStop(ctx context.Context) error {
	d.latched.Store(true)
	purged := d.purge()
	if purged > 0 {
		d.logFn("emergency stop purged %d queued commands", purged)
	}

	lctx, cancel := context.WithTimeout(ctx, d.ackTimeout)
	defer cancel()
	if err := d.link.Send(lctx, drone.Command{Op: drone.OpLand}); err != nil {
		d.logFn("emergency land not acked, cutting motors: %v", err)
		ectx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel2()
		return d.link.Send(ectx, drone.Command{Op: drone.OpEmergency})
	}
	return nil
}

func (d *Dispatcher) purge() int {
	n := 0
	for {
		select {
		case q := <-d.queue:
			q.resp <- ErrPreempted
			n++
		default:
			return n
		}
	}
}

// Reset clears the emergency latch.
func (d *Dispatcher) Reset() {
	d.latched.Store(false)
}

// Latched reports whether the emergency latch is set.
func (d *Dispatcher) Latched() bool {
	return d.latched.Load()
}
