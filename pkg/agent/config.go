package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config defaults.
const (
	DefaultTelemetryIntervalS = 60
	DefaultDataDir            = "/var/lib/agroedge"
)

// BrokerConfig is the broker section of the config file.
type BrokerConfig struct {
	// URL is the broker address, e.g. "tls://broker.example.com:8883".
	URL string `yaml:"url"`

	// ClientID defaults to the device id when empty.
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// QoS applies to every publish and subscription.
	QoS byte `yaml:"qos"`
}

// TopicsConfig is the topics section of the config file. Empty fields
// default to the conventional agrosmart/<device_id>/... layout.
type TopicsConfig struct {
	Telemetry string `yaml:"telemetry"`
	Command   string `yaml:"command"`
	Ack       string `yaml:"ack"`
}

// Config is the device configuration file.
type Config struct {
	// DeviceID identifies this device in every message it emits.
	DeviceID string `yaml:"device_id"`

	// FwVersion is reported in the telemetry sys block.
	FwVersion string `yaml:"fw_version"`

	// DataDir holds the pending queue, the KV store, the history log,
	// and the event log.
	DataDir string `yaml:"data_dir"`

	// TelemetryIntervalS is the default acquisition interval. The
	// durable store's value, when set, takes precedence so the
	// interval survives as a runtime-tunable.
	TelemetryIntervalS uint32 `yaml:"telemetry_interval_s"`

	// MetricsAddr enables the metrics listener when non-empty,
	// e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	Broker BrokerConfig `yaml:"broker"`
	Topics TopicsConfig `yaml:"topics"`
}

// LoadConfig reads and validates a config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("config: device_id is required")
	}
	if c.Broker.URL == "" {
		return fmt.Errorf("config: broker.url is required")
	}
	return nil
}

// ApplyDefaults fills the optional fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.TelemetryIntervalS == 0 {
		c.TelemetryIntervalS = DefaultTelemetryIntervalS
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = c.DeviceID
	}
	if c.Topics.Telemetry == "" {
		c.Topics.Telemetry = "agrosmart/" + c.DeviceID + "/telemetry"
	}
	if c.Topics.Command == "" {
		c.Topics.Command = "agrosmart/" + c.DeviceID + "/command"
	}
	if c.Topics.Ack == "" {
		c.Topics.Ack = "agrosmart/" + c.DeviceID + "/ack"
	}
}

// Data file locations inside DataDir.
func (c *Config) PendingPath() string { return filepath.Join(c.DataDir, "pending.jsonl") }
func (c *Config) StorePath() string   { return filepath.Join(c.DataDir, "store.json") }
func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, "history.csv") }
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "events.cbor")
}
