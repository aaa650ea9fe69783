package drone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDrone answers the text SDK on a loopback UDP socket.
type fakeDrone struct {
	conn *net.UDPConn

	mu     sync.Mutex
	cmds   []string
	reply  map[string]string
	silent bool
}

func newFakeDrone(t *testing.T) *fakeDrone {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("fake drone listen: %v", err)
	}
	f := &fakeDrone{conn: conn, reply: map[string]string{}}
	go f.serve()
	t.Cleanup(func() { conn.Close() })
	return f
}

func (f *fakeDrone) serve() {
	buf := make([]byte, 1024)
	for {
		n, raddr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(string(buf[:n]))
		f.mu.Lock()
		f.cmds = append(f.cmds, cmd)
		resp, ok := f.reply[cmd]
		silent := f.silent
		f.mu.Unlock()
		if silent {
			continue
		}
		if !ok {
			resp = "ok"
		}
		f.conn.WriteToUDP([]byte(resp), raddr)
	}
}

func (f *fakeDrone) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

func (f *fakeDrone) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeDrone) setReply(cmd, resp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply[cmd] = resp
}

func (f *fakeDrone) setSilent(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = v
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	port := c.LocalAddr().(*net.UDPAddr).Port
	c.Close()
	return port
}

func newTestLink(t *testing.T, f *fakeDrone) *TelloLink {
	t.Helper()
	return NewTelloLink(TelloConfig{
		Addr:           "127.0.0.1",
		ControlPort:    f.port(),
		StatePort:      freeUDPPort(t),
		VideoPort:      freeUDPPort(t),
		AckTimeout:     300 * time.Millisecond,
		ConnectRetries: 2,
		LogFunc:        func(string, ...any) {},
	})
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

func TestTelloLink_ConnectHandshake(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)

	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	got := fake.received()
	if len(got) == 0 || got[0] != "command" {
		t.Errorf("handshake sent %v, want leading \"command\"", got)
	}
}

func TestTelloLink_ConnectRetryThenFail(t *testing.T) {
	fake := newFakeDrone(t)
	fake.setSilent(true)
	link := newTestLink(t, fake)

	err := link.Connect(context.Background())
	var lle *LinkLostError
	if !errors.As(err, &lle) {
		t.Fatalf("error = %v (%T), want *LinkLostError", err, err)
	}
	// Every retry reached the drone.
	if got := len(fake.received()); got != 2 {
		t.Errorf("handshake attempts = %d, want 2", got)
	}
}

func TestTelloLink_SendCommand(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	if err := link.Send(context.Background(), Command{Op: OpForward, DistanceCM: 50}); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		for _, c := range fake.received() {
			if c == "forward 50" {
				return true
			}
		}
		return false
	}, "drone never saw \"forward 50\"")
}

func TestTelloLink_RejectedCommand(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	fake.setReply("land", "error Not joystick")
	err := link.Send(context.Background(), Command{Op: OpLand})
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("error = %v, want rejection", err)
	}
}

func TestTelloLink_AckTimeout(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	fake.setSilent(true)
	err := link.Send(context.Background(), Command{Op: OpForward, DistanceCM: 100})
	var lle *LinkLostError
	if !errors.As(err, &lle) {
		t.Errorf("error = %v (%T), want *LinkLostError", err, err)
	}
}

func TestTelloLink_StateFeed(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	if _, err := link.Telemetry(); err == nil {
		t.Error("telemetry before any state datagram should fail")
	}

	stateAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: link.cfg.StatePort}
	sender, err := net.DialUDP("udp", nil, stateAddr)
	if err != nil {
		t.Fatalf("dial state port: %v", err)
	}
	defer sender.Close()
	fmt.Fprintf(sender, "pitch:0;bat:77;h:30;time:12;templ:45;temph:49;")

	waitFor(t, 2*time.Second, func() bool {
		snap, err := link.Telemetry()
		return err == nil && snap.Battery == 77
	}, "state datagram never surfaced in telemetry")

	snap, _ := link.Telemetry()
	if snap.HeightCM != 30 || snap.FlightTimeSec != 12 {
		t.Errorf("snapshot = %+v, want h=30 time=12", snap)
	}
}

func TestTelloLink_EmergencyFireAndForget(t *testing.T) {
	fake := newFakeDrone(t)
	link := newTestLink(t, fake)
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()

	fake.setSilent(true)
	// No ack needed: must return immediately without error.
	done := make(chan error, 1)
	go func() { done <- link.Send(context.Background(), Command{Op: OpEmergency}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("emergency send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("emergency send blocked waiting for an ack")
	}
}
