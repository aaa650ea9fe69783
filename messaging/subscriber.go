package messaging

import (
	"encoding/json"
	"log"

	"cropterd/config"
)

// SessionControl is the slice of the drone session a remote directive
// may touch.
type SessionControl interface {
	EmergencyStop(reason string) error
	Reset() error
}

// Subscriber listens for inbound directives and routes them to the
// drone session.
type Subscriber struct {
	client  *Client
	cfg     *config.MessagingConfig
	nodeID  string
	session SessionControl
}

// NewSubscriber creates a new inbound directive subscriber.
func NewSubscriber(client *Client, cfg *config.MessagingConfig, nodeID string, session SessionControl) *Subscriber {
	return &Subscriber{
		client:  client,
		cfg:     cfg,
		nodeID:  nodeID,
		session: session,
	}
}

// Start subscribes to the directives topic and begins processing.
func (s *Subscriber) Start() error {
	return s.client.Subscribe(s.cfg.DirectivesTopic, s.handleMessage)
}

func (s *Subscriber) handleMessage(payload []byte) {
	var d Directive
	if err := json.Unmarshal(payload, &d); err != nil {
		log.Printf("unmarshal directive: %v", err)
		return
	}

	// An empty node_id addresses every node on the farm, which lets a
	// single message ground the whole fleet.
	if d.NodeID != "" && d.NodeID != s.nodeID {
		return
	}

	switch d.Directive {
	case "emergency_stop":
		reason := d.Reason
		if reason == "" {
			reason = "remote directive"
		}
		log.Printf("remote emergency stop: %s", reason)
		if err := s.session.EmergencyStop(reason); err != nil {
			log.Printf("remote emergency stop: %v", err)
		}
	case "reset":
		log.Printf("remote reset")
		if err := s.session.Reset(); err != nil {
			log.Printf("remote reset: %v", err)
		}
	default:
		log.Printf("unknown directive %q ignored", d.Directive)
	}
}
