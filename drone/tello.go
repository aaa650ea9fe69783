package drone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"cropterd/telemetry"
)

const (
	// videoChunkSize is the UDP payload size the Tello fills for all
	// but the last chunk of an H.264 frame.
	videoChunkSize = 1460

	keepaliveInterval = 5 * time.Second
	handshakeTimeout  = 3 * time.Second
)

// TelloConfig locates and tunes a hardware Tello on its WiFi network.
type TelloConfig struct {
	Addr           string
	ControlPort    int
	StatePort      int
	VideoPort      int
	AckTimeout     time.Duration
	ConnectRetries int
	LogFunc        func(string, ...any)
}

func (c TelloConfig) withDefaults() TelloConfig {
	if c.Addr == "" {
		c.Addr = "192.168.10.1"
	}
	if c.ControlPort == 0 {
		c.ControlPort = 8889
	}
	if c.StatePort == 0 {
		c.StatePort = 8890
	}
	if c.VideoPort == 0 {
		c.VideoPort = 11111
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 3
	}
	if c.LogFunc == nil {
		c.LogFunc = log.Printf
	}
	return c
}

// TelloLink drives a real Tello over its text SDK: commands and acks
// on the control port, a state datagram feed on the state port, and
// raw H.264 on the video port. Command/ack exchanges are serialized;
// the caller sees one outstanding command at a time.
type TelloLink struct {
	cfg TelloConfig

	ctrlMu sync.Mutex
	ctrl   *net.UDPConn

	mu        sync.Mutex
	connected bool
	lastState telemetry.Snapshot
	haveState bool
	lastCmd   time.Time
	videoOn   bool
	seq       uint64

	stateConn *net.UDPConn
	videoConn *net.UDPConn

	frames   chan telemetry.Frame
	stopChan chan struct{}
	wg       sync.WaitGroup
	videoWg  sync.WaitGroup
}

func NewTelloLink(cfg TelloConfig) *TelloLink {
	return &TelloLink{
		cfg:    cfg.withDefaults(),
		frames: make(chan telemetry.Frame, 8),
	}
}

func (t *TelloLink) Mode() string { return ModeTello }

func (t *TelloLink) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return fmt.Errorf("tello link already connected")
	}
	t.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", t.cfg.Addr, t.cfg.ControlPort))
	if err != nil {
		return fmt.Errorf("resolve control addr: %w", err)
	}
	ctrl, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial control: %w", err)
	}
	stateConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: t.cfg.StatePort})
	if err != nil {
		ctrl.Close()
		return fmt.Errorf("listen state port: %w", err)
	}

	t.ctrl = ctrl
	t.stateConn = stateConn
	t.stopChan = make(chan struct{})
	t.wg.Add(2)
	go t.stateLoop()
	go t.keepaliveLoop()

	// Enter SDK mode. The first datagram after power-on is often
	// dropped, so retry a few times before giving up.
	hsTimeout := handshakeTimeout
	if t.cfg.AckTimeout < hsTimeout {
		hsTimeout = t.cfg.AckTimeout
	}
	var lastErr error
	for i := 0; i < t.cfg.ConnectRetries; i++ {
		if err := ctx.Err(); err != nil {
			t.teardown()
			return err
		}
		resp, err := t.exchange("command", hsTimeout)
		if err == nil && strings.EqualFold(resp, "ok") {
			t.mu.Lock()
			t.connected = true
			t.mu.Unlock()
			t.cfg.LogFunc("tello: SDK mode entered (%s)", t.cfg.Addr)
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("handshake response %q", resp)
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.teardown()
	return &LinkLostError{Op: "command", Err: lastErr}
}

func (t *TelloLink) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.StopVideo()
	t.teardown()
	return nil
}

func (t *TelloLink) teardown() {
	if t.stopChan != nil {
		select {
		case <-t.stopChan:
		default:
			close(t.stopChan)
		}
	}
	if t.ctrl != nil {
		t.ctrl.Close()
	}
	if t.stateConn != nil {
		t.stateConn.Close()
	}
	t.wg.Wait()
}

func (t *TelloLink) Send(ctx context.Context, cmd Command) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return &LinkLostError{Op: cmd.Op, Err: errors.New("not connected")}
	}

	// The emergency cutoff is not reliably acked; fire and return.
	if cmd.Op == OpEmergency {
		t.ctrlMu.Lock()
		_, err := t.ctrl.Write([]byte(cmd.text()))
		t.ctrlMu.Unlock()
		t.markCommand()
		return err
	}

	timeout := t.cfg.AckTimeout
	if dl, ok := ctx.Deadline(); ok {
		if r := time.Until(dl); r < timeout {
			timeout = r
		}
	}
	resp, err := t.exchange(cmd.text(), timeout)
	if err != nil {
		return &LinkLostError{Op: cmd.Op, Err: err}
	}
	if !strings.EqualFold(resp, "ok") {
		return fmt.Errorf("drone rejected %s: %s", cmd.Op, resp)
	}
	return nil
}

// exchange performs one serialized request/ack round trip. Stale acks
// from timed-out commands are drained before writing.
func (t *TelloLink) exchange(payload string, timeout time.Duration) (string, error) {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	drain := make([]byte, 256)
	t.ctrl.SetReadDeadline(time.Now())
	for {
		if _, err := t.ctrl.Read(drain); err != nil {
			break
		}
	}

	if _, err := t.ctrl.Write([]byte(payload)); err != nil {
		return "", err
	}
	t.markCommand()

	t.ctrl.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 1024)
	n, err := t.ctrl.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func (t *TelloLink) markCommand() {
	t.mu.Lock()
	t.lastCmd = time.Now()
	t.mu.Unlock()
}

func (t *TelloLink) Telemetry() (telemetry.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveState {
		return telemetry.Snapshot{}, fmt.Errorf("no state datagram received yet")
	}
	return t.lastState, nil
}

func (t *TelloLink) stateLoop() {
	defer t.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}
		t.stateConn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := t.stateConn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		snap, err := parseState(string(buf[:n]))
		if err != nil {
			continue
		}
		t.mu.Lock()
		t.lastState = snap
		t.haveState = true
		t.mu.Unlock()
	}
}

// keepaliveLoop pings the drone while the pilot is idle so it does not
// auto-land after 15 seconds without a command.
func (t *TelloLink) keepaliveLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.mu.Lock()
			idle := t.connected && time.Since(t.lastCmd) > keepaliveInterval
			t.mu.Unlock()
			if !idle {
				continue
			}
			if _, err := t.exchange("command", 2*time.Second); err != nil {
				t.cfg.LogFunc("tello: keepalive failed: %v", err)
			}
		}
	}
}

func (t *TelloLink) StartVideo() error {
	t.mu.Lock()
	if t.videoOn {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	resp, err := t.exchange("streamon", t.cfg.AckTimeout)
	if err != nil {
		return &LinkLostError{Op: OpStreamOn, Err: err}
	}
	if !strings.EqualFold(resp, "ok") {
		return fmt.Errorf("drone rejected streamon: %s", resp)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: t.cfg.VideoPort})
	if err != nil {
		return fmt.Errorf("listen video port: %w", err)
	}
	t.mu.Lock()
	t.videoConn = conn
	t.videoOn = true
	t.mu.Unlock()
	t.videoWg.Add(1)
	go t.videoLoop(conn)
	return nil
}

func (t *TelloLink) StopVideo() error {
	t.mu.Lock()
	if !t.videoOn {
		t.mu.Unlock()
		return nil
	}
	conn := t.videoConn
	t.videoOn = false
	t.mu.Unlock()

	t.exchange("streamoff", 2*time.Second)
	conn.Close()
	t.videoWg.Wait()
	return nil
}

func (t *TelloLink) Video() <-chan telemetry.Frame { return t.frames }

// videoLoop reassembles the H.264 stream: the drone fills every chunk
// to videoChunkSize except the last chunk of a frame.
func (t *TelloLink) videoLoop(conn *net.UDPConn) {
	defer t.videoWg.Done()
	buf := make([]byte, 2048)
	var frame []byte
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		frame = append(frame, buf[:n]...)
		if n == videoChunkSize {
			continue
		}
		t.mu.Lock()
		t.seq++
		seq := t.seq
		t.mu.Unlock()
		out := telemetry.Frame{
			Data:       append([]byte(nil), frame...),
			Format:     telemetry.FormatH264,
			Seq:        seq,
			CapturedAt: time.Now().UTC(),
		}
		frame = frame[:0]
		select {
		case t.frames <- out:
		default:
		}
	}
}
