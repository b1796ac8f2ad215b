package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
)

// pahoTransport adapts paho.mqtt.golang to Transport.
//
// paho's own reconnect logic is disabled; every Connect call is a single
// attempt and connection loss is reported through TransportHandlers.
type pahoTransport struct {
	client         pahomqtt.Client
	connectTimeout time.Duration

	handlers   TransportHandlers
	handlersMu sync.RWMutex
}

// NewPahoTransport builds a Transport for the configured broker.
//
// It configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials
//   - TLS with an optional CA bundle
//   - Last Will and Testament on the status topic
//   - In-order delivery through a single default handler
func NewPahoTransport(cfg config.MQTTConfig) (Transport, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	t := &pahoTransport{connectTimeout: cfg.ConnectTimeout}
	if t.connectTimeout <= 0 {
		t.connectTimeout = defaultConnectTimeout
	}

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if h := t.currentHandlers().OnMessage; h != nil {
			h(msg.Topic(), msg.Payload())
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if h := t.currentHandlers().OnConnectionLost; h != nil {
			h(err)
		}
	})

	t.client = pahomqtt.NewClient(opts)
	return t, nil
}

// buildClientOptions creates paho MQTT options from the mqtt config section.
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	// Broker URL
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	// Client identification
	opts.SetClientID(cfg.Broker.ClientID)

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	// The supervisor owns reconnection and backoff.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Deliveries reach the default handler one at a time, in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		tlsConfig, err := buildTLSConfig(cfg.Broker.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	configureLWT(opts, cfg)
	return opts, nil
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes it, retained, if the bridge disconnects without a
// clean shutdown.
func configureLWT(opts *pahomqtt.ClientOptions, cfg config.MQTTConfig) {
	if cfg.StatusTopic == "" {
		return
	}
	opts.SetBinaryWill(cfg.StatusTopic, buildWillPayload(cfg.Broker.ClientID), 1, true)
}

func (t *pahoTransport) currentHandlers() TransportHandlers {
	t.handlersMu.RLock()
	defer t.handlersMu.RUnlock()
	return t.handlers
}

// handshakeTimeout bounds one paho connection attempt. paho applies the
// connect timeout to the dial and to the CONNACK wait separately.
func (t *pahoTransport) handshakeTimeout() time.Duration {
	return 2*t.connectTimeout + handshakeGrace
}

func (t *pahoTransport) Connect(ctx context.Context, h TransportHandlers) error {
	t.handlersMu.Lock()
	t.handlers = h
	t.handlersMu.Unlock()

	token := t.client.Connect()
	if err := waitToken(ctx, token, t.handshakeTimeout()); err != nil {
		// The attempt may still complete inside paho. Disconnect waits
		// for it to settle and then aborts it, so no session outlives
		// this call and the next Connect does not find paho mid-handshake.
		t.client.Disconnect(0)
		return err
	}
	return nil
}

func (t *pahoTransport) Subscribe(topic string, qos byte) Token {
	// A nil callback routes deliveries to the default handler.
	return t.client.Subscribe(topic, qos, nil)
}

func (t *pahoTransport) Unsubscribe(topic string) Token {
	return t.client.Unsubscribe(topic)
}

func (t *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) Token {
	return t.client.Publish(topic, qos, retained, payload)
}

// Disconnect always reaches paho: a client that is still connecting must
// be told to abort, and paho ignores the call when already disconnected.
func (t *pahoTransport) Disconnect(quiesce time.Duration) {
	t.client.Disconnect(uint(quiesce.Milliseconds()))
}
