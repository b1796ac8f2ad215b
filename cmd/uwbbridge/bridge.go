package main

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fnk59456/uwb-bridge/internal/api"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/influxdb"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/logging"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
	"github.com/fnk59456/uwb-bridge/internal/monitor"
	"github.com/fnk59456/uwb-bridge/internal/outbound"
	"github.com/fnk59456/uwb-bridge/internal/session"
)

// bridge holds the running components. Inbound deliveries flow
// supervisor → recorder → router → telemetry sink; outbound records flow
// publisher → supervisor.
type bridge struct {
	cfg        *config.Config
	log        *logging.Logger
	subs       []subscription
	influx     *influxdb.Client // nil when disabled
	pipeline   *pipeline
	recorder   *monitor.Recorder
	supervisor *mqtt.Supervisor
	publisher  *outbound.Publisher // nil when disabled
	api        *api.Server         // nil when disabled
}

// newBridge wires every component over transport. Nothing talks to the
// broker until run is called.
//
// Parameters:
//   - cfg: Validated configuration
//   - transport: Broker transport (paho in production)
//   - log: Logger instance
//
// Returns:
//   - *bridge: Ready to run; close releases it
//   - error: If a component cannot be created
func newBridge(cfg *config.Config, transport mqtt.Transport, log *logging.Logger) (*bridge, error) {
	b := &bridge{cfg: cfg, log: log}

	subs, err := buildSubscriptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("building subscriptions: %w", err)
	}
	b.subs = subs

	serials, err := session.NewSerialTracker(cfg.Monitor.SerialSize)
	if err != nil {
		return nil, err
	}

	var writer recordWriter
	if cfg.InfluxDB.Enabled {
		b.influx, err = influxdb.Connect(cfg.InfluxDB, log.With("component", "influxdb"))
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		writer = b.influx
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	b.pipeline, err = newPipeline(subs, serials, writer, cfg.InfluxDB.QueueSize, log)
	if err != nil {
		b.close()
		return nil, err
	}
	b.recorder = monitor.NewRecorder(b.pipeline.router, cfg.Monitor.BufferSize)

	opts := mqtt.OptionsFromConfig(cfg.MQTT)
	opts.Logger = log.With("component", "mqtt")
	b.supervisor, err = mqtt.NewSupervisor(transport, b.recorder, opts)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("creating MQTT supervisor: %w", err)
	}

	if cfg.Publisher.Enabled {
		b.publisher, err = outbound.New(b.supervisor, outbound.Options{
			Topic:         cfg.Publisher.Topic,
			QoS:           byte(cfg.Publisher.QoS),
			Retained:      cfg.Publisher.Retained,
			StartSequence: cfg.Publisher.StartSequence,
			Generator: outbound.AnchorGenerator{
				GatewayID: cfg.Publisher.Anchor.GatewayID,
				Name:      cfg.Publisher.Anchor.Name,
				ID:        cfg.Publisher.Anchor.ID,
			},
			Logger: log.With("component", "publisher"),
		})
		if err != nil {
			b.close()
			return nil, fmt.Errorf("creating publisher: %w", err)
		}
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log.With("component", "api"),
			Bridge:    b.supervisor,
			Recorder:  b.recorder,
			BurstRate: cfg.Publisher.Burst.Rate,
			Version:   version,
		}
		if b.publisher != nil {
			deps.Trigger = b.publisher
		}
		if b.influx != nil {
			deps.Sink = b.influx
		}
		b.api, err = api.New(deps)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("creating API server: %w", err)
		}
	}

	return b, nil
}

// run subscribes, starts the supervisor, the publisher and the API, and
// blocks until ctx is cancelled or the supervisor stops.
//
// The supervisor runs on its own context and is stopped with Close after
// the publisher, so records already queued are drained per the shutdown
// policy.
func (b *bridge) run(ctx context.Context) error {
	// Subscriptions made before the first connection are recorded and
	// applied once the session is up.
	for _, s := range b.subs {
		if err := b.supervisor.Subscribe(ctx, s.Topic, byte(b.cfg.MQTT.QoS)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.Topic, err)
		}
	}
	b.log.Info("subscriptions registered", "count", len(b.subs))

	supErr := make(chan error, 1)
	go func() {
		supErr <- b.supervisor.Run(context.WithoutCancel(ctx))
	}()

	pubCtx, stopPublisher := context.WithCancel(ctx)
	defer stopPublisher()

	var wg sync.WaitGroup
	if b.publisher != nil {
		schedule := buildSchedule(b.cfg.Publisher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.publisher.Run(pubCtx, schedule); err != nil {
				b.log.Error("publisher stopped", "error", err)
			}
		}()
		b.log.Info("publisher started",
			"topic", b.cfg.Publisher.Topic,
			"mode", b.cfg.Publisher.Mode,
			"start_sequence", b.cfg.Publisher.StartSequence,
		)
	}

	if b.api != nil {
		if err := b.api.Start(ctx); err != nil {
			stopPublisher()
			wg.Wait()
			b.closeSupervisor(supErr, false)
			return fmt.Errorf("starting API server: %w", err)
		}
	}

	var err error
	supervisorDone := false
	select {
	case <-ctx.Done():
		b.log.Info("shutdown signal received, cleaning up")
	case err = <-supErr:
		supervisorDone = true
		if err != nil {
			err = fmt.Errorf("mqtt supervisor: %w", err)
		}
	}

	if b.api != nil {
		if closeErr := b.api.Close(); closeErr != nil {
			b.log.Error("error closing API server", "error", closeErr)
		}
	}
	stopPublisher()
	wg.Wait()
	b.closeSupervisor(supErr, supervisorDone)
	return err
}

// closeSupervisor shuts the session down and waits for Run to return.
func (b *bridge) closeSupervisor(supErr <-chan error, done bool) {
	if closeErr := b.supervisor.Close(); closeErr != nil {
		b.log.Error("error closing MQTT supervisor", "error", closeErr)
	}
	if done {
		return
	}
	if runErr := <-supErr; runErr != nil {
		b.log.Error("mqtt supervisor stopped with error", "error", runErr)
	}
}

// close releases the inbound pipeline and the telemetry sink.
func (b *bridge) close() {
	if b.pipeline != nil {
		b.pipeline.Close()
	}
	if b.influx != nil {
		b.log.Info("closing InfluxDB connection")
		if err := b.influx.Close(); err != nil {
			b.log.Error("error closing InfluxDB", "error", err)
		}
	}
}

// buildSchedule returns the publisher schedule for the configured mode.
func buildSchedule(cfg config.PublisherConfig) outbound.Schedule {
	if cfg.Mode == "burst" {
		return outbound.FixedBurst(rate.Limit(cfg.Burst.Rate), cfg.Burst.Size, cfg.Burst.Count)
	}
	return outbound.Interval(cfg.Interval)
}
