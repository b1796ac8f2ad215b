package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/logging"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
	"github.com/fnk59456/uwb-bridge/internal/monitor"
	"github.com/fnk59456/uwb-bridge/internal/outbound"
	"github.com/fnk59456/uwb-bridge/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the broker session as seen by the API. *mqtt.Supervisor
// satisfies it.
type Bridge interface {
	Session() session.Reader
	HealthCheck(ctx context.Context) error
	QueueLength() int
}

// Trigger sends generated records on demand. *outbound.Publisher
// satisfies it.
type Trigger interface {
	SendN(ctx context.Context, n int, limiter *rate.Limiter) ([]*mqtt.Ticket, error)
	Stats() outbound.Stats
}

// Sink is the optional telemetry writer. *influxdb.Client satisfies it.
type Sink interface {
	HealthCheck(ctx context.Context) error
	BreakerState() string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   Bridge
	Recorder *monitor.Recorder
	Trigger  Trigger // optional: POST /publish answers 503 without it
	Sink     Sink    // optional

	// BurstRate paces records sent by POST /publish, in records per
	// second. Zero sends without pacing.
	BurstRate float64
	Version   string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	recorder  *monitor.Recorder
	trigger   Trigger
	sink      Sink
	burstRate float64
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
	unlisten  func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge, recorder)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("message recorder is required")
	}
	if deps.BurstRate < 0 {
		return nil, fmt.Errorf("burst rate must not be negative")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		recorder:  deps.Recorder,
		trigger:   deps.Trigger,
		sink:      deps.Sink,
		burstRate: deps.BurstRate,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches it to the message recorder, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.unlisten = s.recorder.Listen(s.hub.Broadcast)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unlisten != nil {
		s.unlisten()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// limiter returns a fresh pacing limiter for one publish request, or nil
// when pacing is disabled.
func (s *Server) limiter() *rate.Limiter {
	if s.burstRate == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.burstRate), 1)
}
