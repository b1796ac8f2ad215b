package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
)

// Default timeouts and breaker settings for InfluxDB operations.
const (
	defaultConnectTimeout   = 10 * time.Second
	defaultPingTimeout      = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

// Logger interface for optional logging support.
type Logger interface {
	Warn(msg string, args ...any)
}

// pointWriter is the blocking write surface of the InfluxDB client.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// pinger checks server health.
type pinger interface {
	Ping(ctx context.Context) (bool, error)
}

// Client writes decoded UWB records to InfluxDB.
//
// Writes are blocking and go through a circuit breaker: after
// FailureThreshold consecutive failures, writes fail fast with
// ErrBreakerOpen until ResetTimeout has passed. Callers keep writes off
// the inbound delivery path (see router.Offload).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  influxdb2.Client
	writer  pointWriter
	pinger  pinger
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the blocking write API behind a circuit breaker
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//   - logger: Receives breaker state changes; may be nil
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If InfluxDB is disabled or connection fails
func Connect(cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := newClient(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client, cfg, logger)
	c.client = client
	return c, nil
}

// newClient wires a Client around writer. Tests substitute the writer.
func newClient(writer pointWriter, p pinger, cfg config.InfluxDBConfig, logger Logger) *Client {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = defaultResetTimeout
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "influxdb",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) //nolint:gosec // threshold is positive
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("influxdb circuit breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			}
		},
	})

	return &Client{
		writer:    writer,
		pinger:    p,
		breaker:   breaker,
		timeout:   timeout,
		connected: true,
	}
}

// WritePoints writes points through the breaker.
func (c *Client) WritePoints(ctx context.Context, points ...*write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		writeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return nil, c.writer.WritePoint(writeCtx, points...)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// BreakerState returns the breaker state ("closed", "half-open" or "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Close shuts down the InfluxDB connection.
//
// Returns:
//   - error: nil (InfluxDB client Close doesn't return errors)
func (c *Client) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.pinger.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which performs an active ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
