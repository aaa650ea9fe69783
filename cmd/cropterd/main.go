package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cropterd/config"
	"cropterd/engine"
	"cropterd/messaging"
	"cropterd/store"
	"cropterd/www"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	configPath := flag.String("config", "cropterd.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	validateOnly := flag.Bool("validate-config", false, "validate the config file and exit")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *validateOnly {
		fmt.Printf("config ok: node=%s drone_mode=%s\n", cfg.NodeID(), cfg.Drone.Mode)
		return
	}

	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create and start engine
	eng, err := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		LogFunc:    log.Printf,
		Debug:      *debug,
	})
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	eng.Start()
	defer eng.Stop()

	nodeID := cfg.NodeID()

	// Set up the farm link
	if cfg.Messaging.Backend != "" && cfg.Messaging.Backend != "none" {
		msgClient := messaging.NewClient(&cfg.Messaging, nodeID)
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (queued messages drain on next start)", err)
		} else {
			// Outbox drainer ships queued mission and telemetry records
			drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging)
			drainer.Start()
			defer drainer.Stop()

			// Heartbeater (registration + periodic heartbeat)
			hb := messaging.NewHeartbeater(msgClient, nodeID, version,
				cfg.Messaging.HeartbeatTopic, eng.LinkMode, eng.Session().State)
			hb.Start()
			defer hb.Stop()

			// Telemetry reporter (rolls up snapshots, queues periodic reports)
			reporter := messaging.NewTelemetryReporter(db, nodeID,
				time.Duration(cfg.Messaging.ReportIntervalSec)*time.Second)
			eng.Events.SubscribeTypes(func(evt engine.Event) {
				if t, ok := evt.Payload.(engine.TelemetryEvent); ok {
					reporter.RecordSnapshot(t.Snapshot)
				}
			}, engine.EventTelemetryUpdated)
			reporter.Start()
			defer reporter.Stop()

			// Inbound directives (fleet-wide emergency stop and reset)
			sub := messaging.NewSubscriber(msgClient, &cfg.Messaging, nodeID, eng.Session())
			if err := sub.Start(); err != nil {
				log.Printf("directives subscribe: %v", err)
			} else {
				log.Printf("directives listening on %s (node=%s)", cfg.Messaging.DirectivesTopic, nodeID)
			}
		}
	}

	// Optional telemetry history sink
	if cfg.History.Enabled {
		hw, err := messaging.NewHistoryWriter(cfg.History.Endpoint, cfg.History.Database, nodeID)
		if err != nil {
			log.Printf("history sink: %v (continuing without)", err)
		} else {
			eng.Events.SubscribeTypes(func(evt engine.Event) {
				if t, ok := evt.Payload.(engine.TelemetryEvent); ok {
					hw.RecordSnapshot(t.Snapshot)
				}
			}, engine.EventTelemetryUpdated)
			hw.Start()
			defer hw.Stop()
		}
	}

	// Set up HTTP server
	router, stopWeb := www.NewRouter(eng, version)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	// Start HTTP server
	go func() {
		log.Printf("cropterd %s listening on %s", version, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop the event hub and control sockets first so long-lived
	// connections close
	stopWeb()

	// Graceful HTTP shutdown with 10s deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
