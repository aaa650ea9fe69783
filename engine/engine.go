package engine

import (
	"fmt"
	"time"

	"cropterd/config"
	"cropterd/dispatch"
	"cropterd/drone"
	"cropterd/mission"
	"cropterd/store"
	"cropterd/telemetry"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine is the composition root: it owns the drone link, the command
// dispatcher, the telemetry relay, the session and the mission records
// manager, and wires them together over the event bus.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc
	debugFn    LogFunc

	link       drone.Link
	dispatcher *dispatch.Dispatcher
	sampler    *dispatch.Sampler
	relay      *telemetry.Relay
	recorder   *telemetry.Recorder
	session    *mission.Session
	missionMgr *mission.Manager

	Events   *EventBus
	stopChan chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	LogFunc    LogFunc
	Debug      bool
}

// New assembles the engine. The drone link variant is fixed here for
// the lifetime of the process.
func New(c Config) (*Engine, error) {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}

	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		debugFn:    debugFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
	cfg := e.cfg

	switch cfg.Drone.Mode {
	case "sim", "":
		e.link = drone.NewSimLink(drone.SimConfig{
			VideoFPS: cfg.Telemetry.VideoFPS,
		})
	case "tello":
		e.link = drone.NewTelloLink(drone.TelloConfig{
			Addr:           cfg.Drone.Addr,
			ControlPort:    cfg.Drone.ControlPort,
			StatePort:      cfg.Drone.StatePort,
			VideoPort:      cfg.Drone.VideoPort,
			AckTimeout:     time.Duration(cfg.Drone.AckTimeoutSec) * time.Second,
			ConnectRetries: cfg.Drone.ConnectRetries,
			LogFunc:        logFn,
		})
	default:
		return nil, fmt.Errorf("unknown drone mode %q", cfg.Drone.Mode)
	}

	e.dispatcher = dispatch.New(e.link, dispatch.Config{
		AckTimeout: time.Duration(cfg.Drone.AckTimeoutSec) * time.Second,
		LogFunc:    logFn,
	})
	e.sampler = dispatch.NewSampler(e.dispatcher, dispatch.SamplerConfig{
		Interval:  time.Duration(cfg.Manual.SampleIntervalMS) * time.Millisecond,
		StepCM:    cfg.Manual.StepCM,
		RotateDeg: cfg.Manual.RotateDeg,
	})

	e.recorder = telemetry.NewRecorder(e.db, telemetry.RecorderConfig{
		Dir:     cfg.RecordingsDir,
		LogFunc: logFn,
	})
	e.relay = telemetry.NewRelay(e.link, &relayEmitter{bus: e.Events}, e.recorder, telemetry.RelayConfig{
		PollInterval: time.Duration(cfg.Telemetry.PollIntervalMS) * time.Millisecond,
		LogFunc:      logFn,
	})

	e.session = mission.NewSession(mission.Config{
		Link:       e.link,
		Dispatcher: e.dispatcher,
		Sampler:    e.sampler,
		Emitter:    &sessionEmitter{bus: e.Events},
		Telemetry:  e.relay.Latest,
		LogFunc:    logFn,
	})
	e.missionMgr = mission.NewManager(e.db, &recordEmitter{bus: e.Events},
		cfg.FarmID, cfg.DroneID, e.batteryLevel)

	return e, nil
}

// batteryLevel reads the battery from the last telemetry snapshot for
// stamping mission records.
func (e *Engine) batteryLevel() *int {
	snap, ok := e.relay.Latest()
	if !ok {
		return nil
	}
	b := snap.Battery
	return &b
}

// Start wires the event chains. Subsystems that follow the session
// lifecycle (relay, recorder) start when the session connects.
func (e *Engine) Start() {
	e.wireEventHandlers()
	e.logFn("engine started: node=%s drone_mode=%s db=%s",
		e.cfg.NodeID(), e.link.Mode(), e.cfg.DatabasePath)
}

// Stop shuts down all subsystems. Safe to call more than once.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
		return
	default:
		close(e.stopChan)
	}

	e.relay.Stop()
	if rec, err := e.recorder.StopRecording(); err != nil {
		e.logFn("stop recording on shutdown: %v", err)
	} else if rec != nil {
		e.logFn("recording closed on shutdown: %s (%d frames)", rec.Path, rec.Frames)
	}
	e.sampler.Stop()
	e.dispatcher.Stop()
	if err := e.link.Close(); err != nil {
		e.debugFn("closing drone link: %v", err)
	}

	e.logFn("engine stopped")
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }

// Session returns the drone session.
func (e *Engine) Session() *mission.Session { return e.session }

// MissionManager returns the mission records manager.
func (e *Engine) MissionManager() *mission.Manager { return e.missionMgr }

// Relay returns the telemetry relay.
func (e *Engine) Relay() *telemetry.Relay { return e.relay }

// LinkMode reports which drone link variant is in use.
func (e *Engine) LinkMode() string { return e.link.Mode() }

// Recording reports whether a video take is in progress.
func (e *Engine) Recording() bool { return e.recorder.Active() }
