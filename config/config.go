package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration. The json tags
// shape the admin config endpoint; secrets are excluded there.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	FarmID        string `yaml:"farm_id" json:"farm_id"`
	DroneID       string `yaml:"drone_id" json:"drone_id"`
	DatabasePath  string `yaml:"database_path" json:"database_path"`
	RecordingsDir string `yaml:"recordings_dir" json:"recordings_dir"`

	Drone     DroneConfig     `yaml:"drone" json:"drone"`
	Planner   PlannerConfig   `yaml:"planner" json:"planner"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Manual    ManualConfig    `yaml:"manual" json:"manual"`
	Web       WebConfig       `yaml:"web" json:"web"`
	Messaging MessagingConfig `yaml:"messaging" json:"messaging"`
	History   HistoryConfig   `yaml:"history" json:"history"`
}

// DroneConfig selects and addresses the drone link.
type DroneConfig struct {
	Mode           string `yaml:"mode" json:"mode"` // "sim" or "tello"
	Addr           string `yaml:"addr" json:"addr"`
	ControlPort    int    `yaml:"control_port" json:"control_port"`
	StatePort      int    `yaml:"state_port" json:"state_port"`
	VideoPort      int    `yaml:"video_port" json:"video_port"`
	AckTimeoutSec  int    `yaml:"ack_timeout_sec" json:"ack_timeout_sec"`
	ConnectRetries int    `yaml:"connect_retries" json:"connect_retries"`
}

// PlannerConfig tunes flight path generation.
type PlannerConfig struct {
	SafetyMarginM      float64 `yaml:"safety_margin_m" json:"safety_margin_m"`
	OptimizeForBattery bool    `yaml:"optimize_for_battery" json:"optimize_for_battery"`
}

// TelemetryConfig tunes the telemetry relay.
type TelemetryConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	VideoFPS       int `yaml:"video_fps" json:"video_fps"`
}

// ManualConfig tunes the manual control sampler.
type ManualConfig struct {
	SampleIntervalMS int `yaml:"sample_interval_ms" json:"sample_interval_ms"`
	StepCM           int `yaml:"step_cm" json:"step_cm"`
	RotateDeg        int `yaml:"rotate_deg" json:"rotate_deg"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host              string `yaml:"host" json:"host"`
	Port              int    `yaml:"port" json:"port"`
	SessionSecret     string `yaml:"session_secret" json:"-"`
	BootstrapUser     string `yaml:"bootstrap_user" json:"bootstrap_user"`
	BootstrapPassword string `yaml:"bootstrap_password" json:"-"`
}

// MessagingConfig defines the farm broker connection.
type MessagingConfig struct {
	Backend           string   `yaml:"backend" json:"backend"` // "mqtt", "kafka" or "none"
	Broker            string   `yaml:"broker" json:"broker"`
	KafkaBrokers      []string `yaml:"kafka_brokers" json:"kafka_brokers"`
	KafkaGroupID      string   `yaml:"kafka_group_id" json:"kafka_group_id"`
	TelemetryTopic    string   `yaml:"telemetry_topic" json:"telemetry_topic"`
	MissionTopic      string   `yaml:"mission_topic" json:"mission_topic"`
	DirectivesTopic   string   `yaml:"directives_topic" json:"directives_topic"`
	HeartbeatTopic    string   `yaml:"heartbeat_topic" json:"heartbeat_topic"`
	ReportIntervalSec int      `yaml:"report_interval_sec" json:"report_interval_sec"`
	DrainIntervalSec  int      `yaml:"drain_interval_sec" json:"drain_interval_sec"`
	NodeID            string   `yaml:"node_id" json:"node_id"`
}

// HistoryConfig defines the optional telemetry history sink.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Database string `yaml:"database" json:"database"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		FarmID:        "farm-01",
		DroneID:       "tello-01",
		DatabasePath:  "cropterd.db",
		RecordingsDir: "recordings",
		Drone: DroneConfig{
			Mode:           "sim",
			Addr:           "192.168.10.1",
			ControlPort:    8889,
			StatePort:      8890,
			VideoPort:      11111,
			AckTimeoutSec:  10,
			ConnectRetries: 3,
		},
		Planner: PlannerConfig{
			SafetyMarginM:      2.0,
			OptimizeForBattery: true,
		},
		Telemetry: TelemetryConfig{
			PollIntervalMS: 1000,
			VideoFPS:       30,
		},
		Manual: ManualConfig{
			SampleIntervalMS: 200,
			StepCM:           30,
			RotateDeg:        30,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			BootstrapUser: "admin",
		},
		Messaging: MessagingConfig{
			Backend:           "mqtt",
			Broker:            "tcp://localhost:1883",
			KafkaBrokers:      []string{"localhost:9092"},
			KafkaGroupID:      "cropterd",
			TelemetryTopic:    "cropter/telemetry",
			MissionTopic:      "cropter/missions",
			DirectivesTopic:   "cropter/directives",
			HeartbeatTopic:    "cropter/heartbeat",
			ReportIntervalSec: 30,
			DrainIntervalSec:  5,
		},
		History: HistoryConfig{
			Enabled:  false,
			Endpoint: "127.0.0.1:4001",
			Database: "public",
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults
// are used. A file that is present but violates the schema fails the
// load.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := validateYAML(data); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// NodeID returns the configured node ID, or derives one from
// farm_id.drone_id.
func (c *Config) NodeID() string {
	if c.Messaging.NodeID != "" {
		return c.Messaging.NodeID
	}
	return c.FarmID + "." + c.DroneID
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
