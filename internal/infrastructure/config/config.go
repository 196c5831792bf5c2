package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by all device daemons.
// All configuration is loaded from YAML and can be overridden by environment
// variables. There is deliberately no package-level state: every component
// receives the section it needs at construction time.
type Config struct {
	Thing      ThingConfig      `yaml:"thing"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Topics     []string         `yaml:"topics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Journal    JournalConfig    `yaml:"journal"`
	Storage    StorageConfig    `yaml:"storage"`
	Vision     VisionConfig     `yaml:"vision"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Camera     CameraConfig     `yaml:"camera"`
	Button     ButtonConfig     `yaml:"button"`
}

// ThingConfig identifies this device to the cloud.
type ThingConfig struct {
	// Name is the registered thing name. Defaults to the host's short name
	// (hostname up to the first dot) when left empty.
	Name string `yaml:"name"`
}

// MQTTConfig contains message-bus connection settings.
//
// The endpoint is expected to speak MQTT over mutual TLS; the three
// credential paths are all required.
type MQTTConfig struct {
	// Endpoint is the broker hostname (no scheme, no port).
	Endpoint string `yaml:"endpoint"`

	// Port is the TLS MQTT port. Default: 8883.
	Port int `yaml:"port"`

	// ClientID identifies this client to the broker. Defaults to the
	// thing name when empty.
	ClientID string `yaml:"client_id"`

	// RootCA, Cert and Key are filesystem paths to the PEM credentials.
	RootCA string `yaml:"root_ca"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`

	// QoS is the default delivery guarantee (0, 1 or 2). Default: 1.
	QoS int `yaml:"qos"`

	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains transport-level reconnection settings.
// Reconnection after a dropped link is owned by the transport library,
// not by the session (see internal/infrastructure/mqtt).
type MQTTReconnectConfig struct {
	// InitialDelay is the first retry delay in seconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff, in seconds.
	MaxDelay int `yaml:"max_delay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JournalConfig contains settings for the local command journal.
type JournalConfig struct {
	// Enabled turns journalling of dispatched commands on or off.
	Enabled bool `yaml:"enabled"`

	// Path is the filesystem path to the SQLite journal file.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for concurrent reads.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// StorageConfig contains object-store settings for captured media.
type StorageConfig struct {
	// Region is the cloud region hosting the buckets.
	Region string `yaml:"region"`

	// Bucket receives archived captures (workspace, recognize, record).
	Bucket string `yaml:"bucket"`

	// WebBucket receives the fixed-name snapshot served to the web UI.
	WebBucket string `yaml:"web_bucket"`
}

// VisionConfig contains image-analysis settings.
type VisionConfig struct {
	// MinConfidence is the label-detection confidence floor (percent).
	// Default: 75.
	MinConfidence float32 `yaml:"min_confidence"`

	// Collection is the face collection searched by identify.
	Collection string `yaml:"collection"`

	// FacesTable is the lookup table mapping face ids to identities.
	// Default: "faces".
	FacesTable string `yaml:"faces_table"`
}

// SupervisorConfig contains process-supervisor RPC settings.
type SupervisorConfig struct {
	// SocketPath is the supervisord unix socket.
	// Default: /var/run/supervisor.sock.
	SocketPath string `yaml:"socket_path"`

	// Timeout is the per-call RPC timeout in seconds. Default: 10.
	Timeout int `yaml:"timeout"`
}

// CameraConfig contains capture settings.
type CameraConfig struct {
	// StillBinary is the still-capture executable. Default: libcamera-still.
	StillBinary string `yaml:"still_binary"`

	// VideoBinary is the video-capture executable. Default: libcamera-vid.
	VideoBinary string `yaml:"video_binary"`

	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	Rotation int `yaml:"rotation"`

	// Source names the camera in filenames and tags. Defaults to the
	// thing name when empty.
	Source string `yaml:"source"`

	// CaptureTimeout is the maximum time for one capture, in seconds.
	// Default: 30.
	CaptureTimeout int `yaml:"capture_timeout"`
}

// ButtonConfig contains GPIO button settings.
type ButtonConfig struct {
	// Chip is the gpio character device name. Default: gpiochip0.
	Chip string `yaml:"chip"`

	// Pin is the line offset on the chip (BCM numbering on a Pi).
	Pin int `yaml:"pin"`

	// PullUp selects the line bias. When true (the default) the line is
	// pulled high and the button connects it to ground; when false the
	// line is pulled low and the button connects it to 3V3.
	PullUp *bool `yaml:"pull_up"`

	// Source is the JSON field name published on press/release.
	// Default: "Sensor".
	Source string `yaml:"source"`

	// HighValue and LowValue are the published values for press and
	// release respectively.
	HighValue string `yaml:"high_value"`
	LowValue  string `yaml:"low_value"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IOT_SECTION_KEY
// For example: IOT_MQTT_ENDPOINT, IOT_THING_NAME, IOT_STORAGE_BUCKET.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDerivedDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port: 8883,
			QoS:  1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Journal: JournalConfig{
			Enabled:     true,
			Path:        "./data/commands.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Vision: VisionConfig{
			MinConfidence: 75,
			FacesTable:    "faces",
		},
		Supervisor: SupervisorConfig{
			SocketPath: "/var/run/supervisor.sock",
			Timeout:    10,
		},
		Camera: CameraConfig{
			StillBinary:    "libcamera-still",
			VideoBinary:    "libcamera-vid",
			Width:          1920,
			Height:         1080,
			CaptureTimeout: 30,
		},
		Button: ButtonConfig{
			Chip:      "gpiochip0",
			Source:    "Sensor",
			HighValue: "high",
			LowValue:  "low",
		},
	}
}

// applyEnvOverrides overrides file values from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IOT_THING_NAME"); v != "" {
		cfg.Thing.Name = v
	}
	if v := os.Getenv("IOT_MQTT_ENDPOINT"); v != "" {
		cfg.MQTT.Endpoint = v
	}
	if v := os.Getenv("IOT_MQTT_ROOT_CA"); v != "" {
		cfg.MQTT.RootCA = v
	}
	if v := os.Getenv("IOT_MQTT_CERT"); v != "" {
		cfg.MQTT.Cert = v
	}
	if v := os.Getenv("IOT_MQTT_KEY"); v != "" {
		cfg.MQTT.Key = v
	}
	if v := os.Getenv("IOT_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("IOT_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("IOT_STORAGE_WEB_BUCKET"); v != "" {
		cfg.Storage.WebBucket = v
	}
	if v := os.Getenv("IOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDerivedDefaults fills values that depend on other values or on the
// host, after file and environment have been applied.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Thing.Name == "" {
		cfg.Thing.Name = shortHostname()
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.Thing.Name
	}
	if cfg.Camera.Source == "" {
		cfg.Camera.Source = cfg.Thing.Name
	}
}

// shortHostname returns the hostname up to the first dot.
func shortHostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "iot-device"
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	return host
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Endpoint == "" {
		errs = append(errs, "mqtt.endpoint is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Mutual TLS credentials are mandatory: the broker rejects
	// certificate-less clients at the handshake.
	if c.MQTT.RootCA == "" {
		errs = append(errs, "mqtt.root_ca is required")
	}
	if c.MQTT.Cert == "" {
		errs = append(errs, "mqtt.cert is required")
	}
	if c.MQTT.Key == "" {
		errs = append(errs, "mqtt.key is required")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal.enabled")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 100 {
		errs = append(errs, "vision.min_confidence must be between 0 and 100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PullUpEnabled returns the button bias setting, defaulting to true.
func (b ButtonConfig) PullUpEnabled() bool {
	if b.PullUp == nil {
		return true
	}
	return *b.PullUp
}

// ConnectRetryInterval returns the initial reconnect delay as a Duration.
func (m MQTTConfig) ConnectRetryInterval() time.Duration {
	return time.Duration(m.Reconnect.InitialDelay) * time.Second
}

// MaxReconnectInterval returns the backoff cap as a Duration.
func (m MQTTConfig) MaxReconnectInterval() time.Duration {
	return time.Duration(m.Reconnect.MaxDelay) * time.Second
}

// RPCTimeout returns the supervisor call timeout as a Duration.
func (s SupervisorConfig) RPCTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// CaptureWindow returns the camera capture timeout as a Duration.
func (c CameraConfig) CaptureWindow() time.Duration {
	return time.Duration(c.CaptureTimeout) * time.Second
}
