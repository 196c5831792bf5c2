package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const validConfig = `
thing:
  name: "test-thing"
mqtt:
  endpoint: "example.iot.us-east-1.amazonaws.com"
  root_ca: "/etc/iot/root.pem"
  cert: "/etc/iot/cert.pem"
  key: "/etc/iot/key.pem"
topics:
  - "home/livingroom"
storage:
  region: "us-east-1"
  bucket: "captures"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Thing.Name != "test-thing" {
		t.Errorf("Thing.Name = %q, want %q", cfg.Thing.Name, "test-thing")
	}
	if cfg.MQTT.Endpoint != "example.iot.us-east-1.amazonaws.com" {
		t.Errorf("MQTT.Endpoint = %q", cfg.MQTT.Endpoint)
	}
	if len(cfg.Topics) != 1 || cfg.Topics[0] != "home/livingroom" {
		t.Errorf("Topics = %v, want [home/livingroom]", cfg.Topics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT.Port = %d, want 8883", cfg.MQTT.Port)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.Vision.MinConfidence != 75 {
		t.Errorf("Vision.MinConfidence = %v, want 75", cfg.Vision.MinConfidence)
	}
	if cfg.Vision.FacesTable != "faces" {
		t.Errorf("Vision.FacesTable = %q, want %q", cfg.Vision.FacesTable, "faces")
	}
	if cfg.Supervisor.SocketPath != "/var/run/supervisor.sock" {
		t.Errorf("Supervisor.SocketPath = %q", cfg.Supervisor.SocketPath)
	}
	if cfg.Camera.StillBinary != "libcamera-still" {
		t.Errorf("Camera.StillBinary = %q", cfg.Camera.StillBinary)
	}
	if !cfg.Button.PullUpEnabled() {
		t.Error("Button.PullUpEnabled() = false, want true by default")
	}
}

func TestLoad_DerivedDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// ClientID and camera source fall back to the thing name.
	if cfg.MQTT.ClientID != "test-thing" {
		t.Errorf("MQTT.ClientID = %q, want %q", cfg.MQTT.ClientID, "test-thing")
	}
	if cfg.Camera.Source != "test-thing" {
		t.Errorf("Camera.Source = %q, want %q", cfg.Camera.Source, "test-thing")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "mqtt: [not a mapping"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("IOT_MQTT_ENDPOINT", "override.example.com")
	t.Setenv("IOT_STORAGE_BUCKET", "override-bucket")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Endpoint != "override.example.com" {
		t.Errorf("MQTT.Endpoint = %q, want env override", cfg.MQTT.Endpoint)
	}
	if cfg.Storage.Bucket != "override-bucket" {
		t.Errorf("Storage.Bucket = %q, want env override", cfg.Storage.Bucket)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.MQTT.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "missing root ca",
			mutate:  func(c *Config) { c.MQTT.RootCA = "" },
			wantErr: true,
		},
		{
			name:    "missing cert",
			mutate:  func(c *Config) { c.MQTT.Cert = "" },
			wantErr: true,
		},
		{
			name:    "missing key",
			mutate:  func(c *Config) { c.MQTT.Key = "" },
			wantErr: true,
		},
		{
			name:    "qos out of range",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.MQTT.Port = 0 },
			wantErr: true,
		},
		{
			name:    "journal enabled without path",
			mutate:  func(c *Config) { c.Journal.Path = "" },
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Vision.MinConfidence = 101 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Thing.Name = "t"
			cfg.MQTT.Endpoint = "example.com"
			cfg.MQTT.RootCA = "/r.pem"
			cfg.MQTT.Cert = "/c.pem"
			cfg.MQTT.Key = "/k.pem"

			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShortHostname(t *testing.T) {
	// Whatever the host is called, the result must not contain a dot.
	name := shortHostname()
	if name == "" {
		t.Fatal("shortHostname() returned empty string")
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			t.Errorf("shortHostname() = %q contains a dot", name)
		}
	}
}
