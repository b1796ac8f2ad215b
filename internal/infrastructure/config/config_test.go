package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := Default()
	cfg.Gateways = []string{"16B8"}
	cfg.applyDerived()
	return cfg
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  broker:
    host: "broker.example.com"
    port: 8883
    tls: true
    client_id: "bridge-1"
  auth:
    username: "testweb1"
    password: "secret"
  qos: 1
  reconnect:
    initial_delay: "500ms"
    max_delay: "30s"
    multiplier: 1.5
    jitter: 0.1
  queue:
    capacity: 50
    overflow: block
    shutdown: discard
    drain_timeout: "2s"
gateways:
  - "16B8"
subscriptions:
  - topic: "UWB/GW17F5_Health"
    schema: status
publisher:
  enabled: true
  interval: "2s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}
	if !cfg.MQTT.Broker.TLS || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v, want TLS on 8883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Reconnect.InitialDelay != 500*time.Millisecond {
		t.Errorf("Reconnect.InitialDelay = %v, want 500ms", cfg.MQTT.Reconnect.InitialDelay)
	}
	if cfg.MQTT.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("Reconnect.MaxDelay = %v, want 30s", cfg.MQTT.Reconnect.MaxDelay)
	}
	if cfg.MQTT.Queue.Capacity != 50 || cfg.MQTT.Queue.Overflow != "block" {
		t.Errorf("Queue = %+v", cfg.MQTT.Queue)
	}
	if cfg.MQTT.StatusTopic != "uwb-bridge/bridge-1/status" {
		t.Errorf("StatusTopic = %q", cfg.MQTT.StatusTopic)
	}
	if len(cfg.Subscriptions) != 1 || cfg.Subscriptions[0].Schema != "status" {
		t.Errorf("Subscriptions = %+v", cfg.Subscriptions)
	}

	// Unset publisher fields keep their defaults.
	if cfg.Publisher.StartSequence != 1240 {
		t.Errorf("Publisher.StartSequence = %d, want 1240", cfg.Publisher.StartSequence)
	}
	if cfg.Publisher.Interval != 2*time.Second {
		t.Errorf("Publisher.Interval = %v, want 2s", cfg.Publisher.Interval)
	}
}

func TestLoad_GeneratesClientID(t *testing.T) {
	configPath := writeConfig(t, "gateways: [\"16B8\"]\n")

	first, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !strings.HasPrefix(first.MQTT.Broker.ClientID, "uwb-bridge-") {
		t.Errorf("ClientID = %q, want uwb-bridge- prefix", first.MQTT.Broker.ClientID)
	}
	if first.MQTT.Broker.ClientID == second.MQTT.Broker.ClientID {
		t.Error("generated client ids should differ between loads")
	}
	if first.MQTT.StatusTopic != "uwb-bridge/"+first.MQTT.Broker.ClientID+"/status" {
		t.Errorf("StatusTopic = %q", first.MQTT.StatusTopic)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
gateways: ["16B8"]
mqtt:
  reconnect:
    initial_delay: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for unparsable duration, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  qos: 1
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error without gateways or subscriptions, got nil")
	}
	if !strings.Contains(err.Error(), "at least one gateway or subscription") {
		t.Errorf("error = %v", err)
	}
}

// =============================================================================
// Validate
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "CA file without TLS",
			mutate:  func(c *Config) { c.MQTT.Broker.CAFile = "/etc/ca.pem" },
			wantErr: "ca_file",
		},
		{
			name:    "password without username",
			mutate:  func(c *Config) { c.MQTT.Auth.Password = "secret" },
			wantErr: "mqtt.auth.password",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "max delay below initial delay",
			mutate: func(c *Config) {
				c.MQTT.Reconnect.InitialDelay = 10 * time.Second
				c.MQTT.Reconnect.MaxDelay = time.Second
			},
			wantErr: "max_delay",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.MQTT.Reconnect.Multiplier = 0.5 },
			wantErr: "multiplier",
		},
		{
			name:    "jitter above one",
			mutate:  func(c *Config) { c.MQTT.Reconnect.Jitter = 1.5 },
			wantErr: "jitter",
		},
		{
			name:    "unknown overflow policy",
			mutate:  func(c *Config) { c.MQTT.Queue.Overflow = "drop_oldest" },
			wantErr: "mqtt.queue.overflow",
		},
		{
			name:    "unknown shutdown policy",
			mutate:  func(c *Config) { c.MQTT.Queue.Shutdown = "flush" },
			wantErr: "mqtt.queue.shutdown",
		},
		{
			name:    "wildcard gateway name",
			mutate:  func(c *Config) { c.Gateways = []string{"16+8"} },
			wantErr: "gateways[0]",
		},
		{
			name: "subscription without topic",
			mutate: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Schema: "status"}}
			},
			wantErr: "subscriptions[0].topic",
		},
		{
			name: "unknown schema",
			mutate: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Topic: "UWB/x", Schema: "gps"}}
			},
			wantErr: "subscriptions[0].schema",
		},
		{
			name: "publisher wildcard topic",
			mutate: func(c *Config) {
				c.Publisher.Enabled = true
				c.Publisher.Topic = "UWB/#"
			},
			wantErr: "publisher.topic",
		},
		{
			name: "publisher zero interval",
			mutate: func(c *Config) {
				c.Publisher.Enabled = true
				c.Publisher.Interval = 0
			},
			wantErr: "publisher.interval",
		},
		{
			name: "publisher burst without rate",
			mutate: func(c *Config) {
				c.Publisher.Enabled = true
				c.Publisher.Mode = "burst"
				c.Publisher.Burst.Rate = 0
			},
			wantErr: "publisher.burst.rate",
		},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: "api.port",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.API.Auth.JWTSecret = "too-short" },
			wantErr: "api.auth.jwt_secret",
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Logging.Output = "syslog" },
			wantErr: "logging.output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Broker.Host = ""
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"mqtt.broker.host", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

// =============================================================================
// Helpers and overrides
// =============================================================================

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("UWBBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("UWBBRIDGE_MQTT_PORT", "8883")
	t.Setenv("UWBBRIDGE_MQTT_TLS", "true")
	t.Setenv("UWBBRIDGE_MQTT_CLIENT_ID", "bridge-env")
	t.Setenv("UWBBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("UWBBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("UWBBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("UWBBRIDGE_API_JWT_SECRET", "jwt-secret-from-env-at-least-32-bytes")
	t.Setenv("UWBBRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("UWBBRIDGE_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 || !cfg.MQTT.Broker.TLS {
		t.Errorf("MQTT.Broker = %+v, want TLS on 8883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Broker.ClientID != "bridge-env" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "bridge-env")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Auth.JWTSecret != "jwt-secret-from-env-at-least-32-bytes" {
		t.Errorf("API.Auth.JWTSecret = %q", cfg.API.Auth.JWTSecret)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	t.Setenv("UWBBRIDGE_MQTT_PORT", "not-a-port")

	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("applyEnvOverrides() expected error for invalid port, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "" {
		t.Errorf("Default MQTT.Broker.ClientID = %q, want empty", cfg.MQTT.Broker.ClientID)
	}
	if cfg.Publisher.Topic != "UWB/GW16B8_Dwlink" {
		t.Errorf("Default Publisher.Topic = %q", cfg.Publisher.Topic)
	}
	if cfg.Publisher.Anchor.GatewayID != 4192540344 || cfg.Publisher.Anchor.ID != 36503 {
		t.Errorf("Default Publisher.Anchor = %+v", cfg.Publisher.Anchor)
	}
	if cfg.MQTT.Queue.Overflow != "drop_newest" || cfg.MQTT.Queue.Shutdown != "drain" {
		t.Errorf("Default Queue = %+v", cfg.MQTT.Queue)
	}
}
