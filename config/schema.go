package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

// schemaCUE is the contract a config file must satisfy. Every field is
// optional since partial files are overlaid on Defaults, but a field
// that is present must have the right shape.
const schemaCUE = `
farm_id?:        string & !=""
drone_id?:       string & !=""
database_path?:  string
recordings_dir?: string

drone?: {
	mode?:            "sim" | "tello"
	addr?:            string
	control_port?:    int & >0 & <65536
	state_port?:      int & >0 & <65536
	video_port?:      int & >0 & <65536
	ack_timeout_sec?: int & >0
	connect_retries?: int & >=0
}

planner?: {
	safety_margin_m?:      number & >=0
	optimize_for_battery?: bool
}

telemetry?: {
	poll_interval_ms?: int & >0
	video_fps?:        int & >0 & <=60
}

manual?: {
	sample_interval_ms?: int & >0
	step_cm?:            int & >=20 & <=500
	rotate_deg?:         int & >=1 & <=360
}

web?: {
	host?:               string
	port?:               int & >0 & <65536
	session_secret?:     string
	bootstrap_user?:     string
	bootstrap_password?: string
}

messaging?: {
	backend?:             "mqtt" | "kafka" | "none"
	broker?:              string
	kafka_brokers?:       [...string]
	kafka_group_id?:      string
	telemetry_topic?:     string
	mission_topic?:       string
	directives_topic?:    string
	heartbeat_topic?:     string
	report_interval_sec?: int & >0
	drain_interval_sec?:  int & >0
	node_id?:             string
}

history?: {
	enabled?:  bool
	endpoint?: string
	database?: string
}
`

// validateYAML checks raw config YAML against the CUE schema.
func validateYAML(data []byte) error {
	ctx := cuecontext.New()

	file, err := yaml.Extract("config.yaml", data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return fmt.Errorf("build config: %w", configVal.Err())
	}

	schemaVal := ctx.CompileString(schemaCUE)
	if schemaVal.Err() != nil {
		return fmt.Errorf("compile schema: %w", schemaVal.Err())
	}

	if err := schemaVal.Subsume(configVal, cue.Final()); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
