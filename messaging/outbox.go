package messaging

import (
	"log"
	"sync"
	"time"

	"cropterd/config"
	"cropterd/store"
)

// sentRetentionDays is how long delivered outbox rows are kept before
// the hourly purge removes them.
const sentRetentionDays = 7

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       *store.DB
	client   *Client
	cfg      *config.MessagingConfig
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewOutboxDrainer creates a new outbox drainer.
func NewOutboxDrainer(db *store.DB, client *Client, cfg *config.MessagingConfig) *OutboxDrainer {
	return &OutboxDrainer{
		db:       db,
		client:   client,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins the outbox drain loop.
func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.drainLoop()
}

// Stop stops the outbox drain loop.
func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drainLoop() {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.DrainIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	purge := time.NewTicker(time.Hour)
	defer purge.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		case <-purge.C:
			if n, err := d.db.PurgeSentOutbox(sentRetentionDays); err != nil {
				log.Printf("purge outbox: %v", err)
			} else if n > 0 {
				log.Printf("purged %d delivered outbox rows", n)
			}
		}
	}
}

func (d *OutboxDrainer) drain() {
	if !d.client.IsConnected() {
		return
	}

	msgs, err := d.db.ListPendingOutbox(50)
	if err != nil {
		log.Printf("list pending outbox: %v", err)
		return
	}

	for _, msg := range msgs {
		if err := d.client.Publish(d.topicFor(msg.Topic), msg.Payload); err != nil {
			log.Printf("publish outbox msg %d: %v", msg.ID, err)
			d.db.IncrementOutboxRetries(msg.ID)
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("ack outbox msg %d: %v", msg.ID, err)
		}
	}
}

// topicFor maps the logical queue name on an outbox row to the broker
// topic from config. Unknown names pass through as literal topics.
func (d *OutboxDrainer) topicFor(logical string) string {
	switch logical {
	case "missions":
		return d.cfg.MissionTopic
	case "telemetry":
		return d.cfg.TelemetryTopic
	case "heartbeat":
		return d.cfg.HeartbeatTopic
	}
	return logical
}
