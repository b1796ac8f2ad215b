package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// handshakeGrace is added to the dial and CONNACK timeouts when
	// waiting for a paho connect token.
	handshakeGrace = time.Second

	// defaultOperationTimeout is the maximum time to wait for a broker
	// acknowledgement of a publish, subscribe or unsubscribe.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1 * time.Second

	// defaultDrainTimeout bounds how long shutdown waits for queued publishes.
	defaultDrainTimeout = 5 * time.Second

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultInboundBuffer is the inbound delivery channel length.
	defaultInboundBuffer = 256

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxPayloadSize caps outbound payloads (1MB), matching typical broker limits.
	maxPayloadSize = 1 << 20

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// OverflowPolicy decides what happens to a publish when the queue is full.
type OverflowPolicy int

const (
	// DropNewest rejects the incoming request with ErrNotConnected.
	DropNewest OverflowPolicy = iota
	// Block makes the caller wait for room, until its context or shutdown.
	Block
)

// ParseOverflowPolicy converts a config value ("drop_newest" or "block").
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_newest", "drop-newest":
		return DropNewest, nil
	case "block":
		return Block, nil
	default:
		return DropNewest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

func (p OverflowPolicy) String() string {
	if p == Block {
		return "block"
	}
	return "drop_newest"
}

// ShutdownPolicy decides what happens to queued publishes on shutdown.
type ShutdownPolicy int

const (
	// Drain sends queued publishes if connected and waits for their
	// confirmation, bounded by the drain timeout.
	Drain ShutdownPolicy = iota
	// Discard fails every queued publish with ErrShutdown.
	Discard
)

// ParseShutdownPolicy converts a config value ("drain" or "discard").
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return Drain, nil
	case "discard":
		return Discard, nil
	default:
		return Drain, fmt.Errorf("unknown shutdown policy %q", s)
	}
}

func (p ShutdownPolicy) String() string {
	if p == Discard {
		return "discard"
	}
	return "drain"
}

// Options configures a Supervisor. Zero values select defaults, except
// QueueCapacity where zero disables queueing.
type Options struct {
	// ClientID is reported in status payloads.
	ClientID string

	// StatusTopic receives retained online/offline payloads. Empty disables them.
	StatusTopic string

	// QoS is used for status payloads.
	QoS byte

	Backoff BackoffConfig

	// OperationTimeout bounds the wait for a broker acknowledgement.
	OperationTimeout time.Duration

	// QueueCapacity is how many publishes may wait for a connection.
	QueueCapacity int
	Overflow      OverflowPolicy
	Shutdown      ShutdownPolicy
	DrainTimeout  time.Duration

	// InboundBuffer is the length of the delivery channel between the
	// transport and the dispatcher.
	InboundBuffer int

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = defaultOperationTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = defaultDrainTimeout
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = defaultInboundBuffer
	}
	if o.QueueCapacity < 0 {
		o.QueueCapacity = 0
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	return o
}

// OptionsFromConfig maps the mqtt config section onto supervisor options.
// cfg is expected to have passed config.Validate.
func OptionsFromConfig(cfg config.MQTTConfig) Options {
	overflow, _ := ParseOverflowPolicy(cfg.Queue.Overflow)
	shutdown, _ := ParseShutdownPolicy(cfg.Queue.Shutdown)

	return Options{
		ClientID:    cfg.Broker.ClientID,
		StatusTopic: cfg.StatusTopic,
		QoS:         byte(cfg.QoS),
		Backoff: BackoffConfig{
			Initial:    cfg.Reconnect.InitialDelay,
			Max:        cfg.Reconnect.MaxDelay,
			Multiplier: cfg.Reconnect.Multiplier,
			Jitter:     cfg.Reconnect.Jitter,
		},
		OperationTimeout: cfg.OperationTimeout,
		QueueCapacity:    cfg.Queue.Capacity,
		Overflow:         overflow,
		Shutdown:         shutdown,
		DrainTimeout:     cfg.Queue.DrainTimeout,
		InboundBuffer:    cfg.InboundBuffer,
	}
}

// buildTLSConfig returns the TLS settings for ssl:// brokers. Without a CA
// file the system trust store is used.
func buildTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}
	if caFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %s contains no certificates", caFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// statusPayload is the body published to the status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) []byte {
	b, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) []byte {
	return buildStatusPayload("online", clientID, "")
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) []byte {
	return buildStatusPayload("offline", clientID, "graceful_shutdown")
}

// buildWillPayload is registered as the Last Will and Testament.
func buildWillPayload(clientID string) []byte {
	return buildStatusPayload("offline", clientID, "unexpected_disconnect")
}
