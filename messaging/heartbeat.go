package messaging

import (
	"log"
	"os"
	"sync"
	"time"
)

// Heartbeater sends a register message on startup and heartbeats every
// minute so the farm broker knows which drone nodes are alive.
type Heartbeater struct {
	client    *Client
	nodeID    string
	version   string
	topic     string
	interval  time.Duration
	startTime time.Time

	// modeFn and stateFn report the drone link mode and the live
	// session state. Either may be nil.
	modeFn  func() string
	stateFn func() string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHeartbeater creates a heartbeater for the given node identity.
func NewHeartbeater(client *Client, nodeID, version, topic string, modeFn, stateFn func() string) *Heartbeater {
	return &Heartbeater{
		client:   client,
		nodeID:   nodeID,
		version:  version,
		topic:    topic,
		interval: 60 * time.Second,
		modeFn:   modeFn,
		stateFn:  stateFn,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.send("register")
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) send(kind string) {
	hostname, _ := os.Hostname()
	msg := Heartbeat{
		NodeID:    h.nodeID,
		Kind:      kind,
		Hostname:  hostname,
		Version:   h.version,
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if h.modeFn != nil {
		msg.DroneMode = h.modeFn()
	}
	if h.stateFn != nil {
		msg.SessionState = h.stateFn()
	}
	if err := h.client.PublishJSON(h.topic, msg); err != nil {
		log.Printf("heartbeater: send %s: %v", kind, err)
	} else if kind == "register" {
		log.Printf("heartbeater: registered node %s", h.nodeID)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send("heartbeat")
		}
	}
}
