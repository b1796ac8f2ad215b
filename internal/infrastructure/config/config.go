package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the UWB bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT          MQTTConfig           `yaml:"mqtt"`
	Gateways      []string             `yaml:"gateways"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Publisher     PublisherConfig      `yaml:"publisher"`
	Monitor       MonitorConfig        `yaml:"monitor"`
	InfluxDB      InfluxDBConfig       `yaml:"influxdb"`
	API           APIConfig            `yaml:"api"`
	Logging       LoggingConfig        `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker           MQTTBrokerConfig    `yaml:"broker"`
	Auth             MQTTAuthConfig      `yaml:"auth"`
	QoS              int                 `yaml:"qos"`
	KeepAlive        time.Duration       `yaml:"keep_alive"`
	ConnectTimeout   time.Duration       `yaml:"connect_timeout"`
	OperationTimeout time.Duration       `yaml:"operation_timeout"`
	Reconnect        MQTTReconnectConfig `yaml:"reconnect"`
	Queue            MQTTQueueConfig     `yaml:"queue"`

	// InboundBuffer is the number of deliveries held between the broker
	// client and the router.
	InboundBuffer int `yaml:"inbound_buffer"`

	// StatusTopic receives retained online/offline payloads and the Last
	// Will. Defaults to uwb-bridge/<client id>/status.
	StatusTopic string `yaml:"status_topic"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	CAFile   string `yaml:"ca_file"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnect backoff settings.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

// MQTTQueueConfig controls publishes issued while disconnected.
type MQTTQueueConfig struct {
	// Capacity of the pending queue. 0 disables queueing.
	Capacity int `yaml:"capacity"`

	// Overflow is "drop_newest" or "block".
	Overflow string `yaml:"overflow"`

	// Shutdown is "drain" or "discard".
	Shutdown string `yaml:"shutdown"`

	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// SubscriptionConfig binds one topic to a payload schema.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`

	// Schema is "anchor_config", "tag_config" or "status". Empty means the
	// record kind is inferred from each payload.
	Schema string `yaml:"schema"`
}

// PublisherConfig contains outbound anchor-configuration settings.
type PublisherConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Topic         string        `yaml:"topic"`
	QoS           int           `yaml:"qos"`
	Retained      bool          `yaml:"retained"`
	Interval      time.Duration `yaml:"interval"`
	StartSequence uint64        `yaml:"start_sequence"`

	// Mode is "interval" or "burst".
	Mode  string      `yaml:"mode"`
	Burst BurstConfig `yaml:"burst"`

	Anchor AnchorTemplateConfig `yaml:"anchor"`
}

// BurstConfig paces a burst of publishes.
type BurstConfig struct {
	// Rate is publishes per second.
	Rate float64 `yaml:"rate"`
	Size int     `yaml:"size"`

	// Count is the number of messages per burst. 0 means unbounded.
	Count int `yaml:"count"`
}

// AnchorTemplateConfig identifies the anchor the generated records describe.
type AnchorTemplateConfig struct {
	GatewayID uint64 `yaml:"gateway_id"`
	Name      string `yaml:"name"`
	ID        uint64 `yaml:"id"`
}

// MonitorConfig contains recent-message buffer settings.
type MonitorConfig struct {
	BufferSize int `yaml:"buffer_size"`
	SerialSize int `yaml:"serial_cache_size"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig guards the publish trigger. An empty secret leaves it open.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	Org          string        `yaml:"org"`
	Bucket       string        `yaml:"bucket"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// QueueSize bounds records waiting for the writer.
	QueueSize int `yaml:"queue_size"`

	// FailureThreshold consecutive write failures open the breaker for
	// ResetTimeout.
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (generated client id, status topic)
//
// Environment variables follow the pattern: UWBBRIDGE_SECTION_KEY
// For example: UWBBRIDGE_MQTT_HOST, UWBBRIDGE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The broker client id is
// left empty so Load can generate a unique one.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:              1,
			KeepAlive:        60 * time.Second,
			ConnectTimeout:   10 * time.Second,
			OperationTimeout: 5 * time.Second,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     60 * time.Second,
				Multiplier:   2,
				Jitter:       0.2,
			},
			Queue: MQTTQueueConfig{
				Capacity:     1000,
				Overflow:     "drop_newest",
				Shutdown:     "drain",
				DrainTimeout: 5 * time.Second,
			},
			InboundBuffer: 256,
		},
		Publisher: PublisherConfig{
			Topic:         "UWB/GW16B8_Dwlink",
			QoS:           1,
			Interval:      time.Second,
			StartSequence: 1240,
			Mode:          "interval",
			Burst: BurstConfig{
				Rate: 10,
				Size: 1,
			},
			Anchor: AnchorTemplateConfig{
				GatewayID: 4192540344,
				Name:      "0x8E97",
				ID:        36503,
			},
		},
		Monitor: MonitorConfig{
			BufferSize: 500,
			SerialSize: 1024,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			WriteTimeout:     5 * time.Second,
			QueueSize:        1024,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/uwb-bridge.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UWBBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("UWBBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UWBBRIDGE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UWBBRIDGE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("UWBBRIDGE_MQTT_TLS"); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UWBBRIDGE_MQTT_TLS: %w", err)
		}
		cfg.MQTT.Broker.TLS = tls
	}
	if v := os.Getenv("UWBBRIDGE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("UWBBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UWBBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("UWBBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("UWBBRIDGE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UWBBRIDGE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("UWBBRIDGE_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("UWBBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("UWBBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// applyDerived fills values computed from others.
func (c *Config) applyDerived() {
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = "uwb-bridge-" + uuid.NewString()
	}
	if c.MQTT.StatusTopic == "" {
		c.MQTT.StatusTopic = "uwb-bridge/" + c.MQTT.Broker.ClientID + "/status"
	}
}

// minJWTSecretLength matches the shortest HMAC secret auth will sign with.
const minJWTSecretLength = 32

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.CAFile != "" && !c.MQTT.Broker.TLS {
		errs = append(errs, "mqtt.broker.ca_file requires mqtt.broker.tls")
	}
	if c.MQTT.Auth.Password != "" && c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.password requires mqtt.auth.username")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 {
		errs = append(errs, "mqtt.reconnect delays must not be negative")
	}
	if c.MQTT.Reconnect.MaxDelay > 0 && c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must be at least initial_delay")
	}
	if c.MQTT.Reconnect.Multiplier != 0 && c.MQTT.Reconnect.Multiplier < 1 {
		errs = append(errs, "mqtt.reconnect.multiplier must be at least 1")
	}
	if c.MQTT.Reconnect.Jitter < 0 || c.MQTT.Reconnect.Jitter > 1 {
		errs = append(errs, "mqtt.reconnect.jitter must be between 0 and 1")
	}
	if c.MQTT.Queue.Capacity < 0 {
		errs = append(errs, "mqtt.queue.capacity must not be negative")
	}
	switch strings.ToLower(c.MQTT.Queue.Overflow) {
	case "", "drop_newest", "drop-newest", "block":
	default:
		errs = append(errs, "mqtt.queue.overflow must be drop_newest or block")
	}
	switch strings.ToLower(c.MQTT.Queue.Shutdown) {
	case "", "drain", "discard":
	default:
		errs = append(errs, "mqtt.queue.shutdown must be drain or discard")
	}

	// Subscription validation
	if len(c.Gateways) == 0 && len(c.Subscriptions) == 0 {
		errs = append(errs, "at least one gateway or subscription is required")
	}
	for i, gw := range c.Gateways {
		if gw == "" || strings.ContainsAny(gw, "/+#") {
			errs = append(errs, fmt.Sprintf("gateways[%d]: invalid gateway name %q", i, gw))
		}
	}
	for i, sub := range c.Subscriptions {
		if sub.Topic == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].topic is required", i))
		}
		switch strings.ToLower(sub.Schema) {
		case "", "anchor_config", "anchor", "tag_config", "tag", "status", "health":
		default:
			errs = append(errs, fmt.Sprintf("subscriptions[%d].schema %q is not anchor_config, tag_config or status", i, sub.Schema))
		}
	}

	// Publisher validation
	if c.Publisher.Enabled {
		if c.Publisher.Topic == "" || strings.ContainsAny(c.Publisher.Topic, "+#") {
			errs = append(errs, "publisher.topic must be a concrete topic")
		}
		if c.Publisher.QoS < 0 || c.Publisher.QoS > 2 {
			errs = append(errs, "publisher.qos must be 0, 1, or 2")
		}
		switch strings.ToLower(c.Publisher.Mode) {
		case "", "interval":
			if c.Publisher.Interval <= 0 {
				errs = append(errs, "publisher.interval must be positive")
			}
		case "burst":
			if c.Publisher.Burst.Rate <= 0 {
				errs = append(errs, "publisher.burst.rate must be positive")
			}
			if c.Publisher.Burst.Size < 1 {
				errs = append(errs, "publisher.burst.size must be at least 1")
			}
		default:
			errs = append(errs, "publisher.mode must be interval or burst")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Auth.JWTSecret != "" && len(c.API.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Logging validation
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required for file output")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
