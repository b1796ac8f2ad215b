package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/codec"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/logging"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
	"github.com/fnk59456/uwb-bridge/internal/router"
	"github.com/fnk59456/uwb-bridge/internal/session"
)

// subscription is one topic filter the bridge holds, with the record kind
// its payloads decode as. KindUnknown means the kind is inferred.
type subscription struct {
	Topic string
	Kind  codec.Kind
}

// recordWriter stores decoded records. *influxdb.Client satisfies it.
type recordWriter interface {
	WriteRecord(ctx context.Context, topic string, msg codec.Message, at time.Time) error
}

// buildSubscriptions expands gateway names into their inbound topics and
// appends the explicit subscriptions. An explicit entry for a topic that a
// gateway already covers overrides its kind.
func buildSubscriptions(cfg *config.Config) ([]subscription, error) {
	topics := mqtt.Topics{}
	var subs []subscription
	index := make(map[string]int)

	add := func(s subscription) {
		if i, ok := index[s.Topic]; ok {
			subs[i] = s
			return
		}
		index[s.Topic] = len(subs)
		subs = append(subs, s)
	}

	for _, gw := range cfg.Gateways {
		for _, topic := range topics.GatewayInbound(gw) {
			add(subscription{Topic: topic, Kind: gatewayKind(topics, gw, topic)})
		}
	}

	for _, sc := range cfg.Subscriptions {
		kind := codec.KindUnknown
		if sc.Schema != "" {
			k, err := codec.ParseKind(sc.Schema)
			if err != nil {
				return nil, fmt.Errorf("subscription %s: %w", sc.Topic, err)
			}
			kind = k
		}
		add(subscription{Topic: sc.Topic, Kind: kind})
	}

	return subs, nil
}

// gatewayKind returns the record kind published on one gateway channel.
func gatewayKind(topics mqtt.Topics, gateway, topic string) codec.Kind {
	switch topic {
	case topics.GatewayAnchorConfig(gateway):
		return codec.KindAnchorConfig
	case topics.GatewayTagConfig(gateway):
		return codec.KindTagConfig
	default:
		return codec.KindStatus
	}
}

func isFilter(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}

// pipeline is the inbound path: the router decodes each delivery, tracks
// serial numbers and hands the record to the telemetry sink off the
// delivery goroutine.
type pipeline struct {
	codec   *codec.Codec
	router  *router.Router
	serials *session.SerialTracker
	sink    *router.Offload // nil when no writer is configured
	logger  *logging.Logger
}

// newPipeline binds every subscription to the codec and registers its
// handler. Wildcard filters route through the default handler.
//
// Parameters:
//   - subs: Subscriptions from buildSubscriptions
//   - serials: Tracker for per-device serial numbers
//   - writer: Telemetry sink (may be nil)
//   - sinkSize: Records that may wait for the sink
//   - log: Logger instance
//
// Returns:
//   - *pipeline: Ready to dispatch
//   - error: If a binding or route is invalid
func newPipeline(subs []subscription, serials *session.SerialTracker, writer recordWriter, sinkSize int, log *logging.Logger) (*pipeline, error) {
	p := &pipeline{
		codec:   codec.New(),
		router:  router.New(log.With("component", "router")),
		serials: serials,
		logger:  log,
	}

	if writer != nil {
		p.sink = router.NewOffload(router.Decoded(p.codec, func(msg router.InboundMessage, decoded codec.Message) error {
			return writer.WriteRecord(context.Background(), msg.Topic, decoded, msg.ReceivedAt)
		}), sinkSize, log.With("component", "telemetry"))
	}

	handler := router.Decoded(p.codec, p.onRecord)
	for _, s := range subs {
		if isFilter(s.Topic) {
			p.router.SetDefault(handler)
			continue
		}
		if s.Kind != codec.KindUnknown {
			if err := p.codec.Bind(s.Topic, s.Kind); err != nil {
				p.Close()
				return nil, fmt.Errorf("binding %s: %w", s.Topic, err)
			}
		}
		if err := p.router.Register(s.Topic, handler); err != nil {
			p.Close()
			return nil, fmt.Errorf("routing %s: %w", s.Topic, err)
		}
	}

	return p, nil
}

// onRecord handles one decoded record.
func (p *pipeline) onRecord(msg router.InboundMessage, decoded codec.Message) error {
	f := decoded.Common()
	p.logger.Debug("record received",
		"topic", msg.Topic,
		"kind", decoded.Kind().String(),
		"content", f.Content.OrElse(""),
	)

	p.observeSerial(msg.Topic, f)

	if p.sink != nil {
		if err := p.sink.Handle(msg); err != nil {
			return fmt.Errorf("queueing telemetry: %w", err)
		}
	}
	return nil
}

// observeSerial logs serial numbers that go backwards or skip values.
func (p *pipeline) observeSerial(topic string, f *codec.Fields) {
	serial, ok := f.SerialNo.Get()
	if !ok {
		return
	}
	id, ok := f.ID.Get()
	if !ok {
		return
	}

	key := session.DeviceKey{Gateway: f.GatewayID.OrElse(0), Device: id.String()}
	obs := p.serials.Observe(key, serial)
	switch {
	case obs.Regressed:
		p.logger.Debug("serial number regressed",
			"topic", topic, "device", key.Device, "previous", obs.Previous, "serial", serial)
	case obs.Duplicate:
		p.logger.Debug("serial number repeated",
			"topic", topic, "device", key.Device, "serial", serial)
	case obs.Gap > 0:
		p.logger.Debug("serial numbers skipped",
			"topic", topic, "device", key.Device, "previous", obs.Previous, "serial", serial, "missing", obs.Gap)
	}
}

// Close stops the telemetry worker after it drains.
func (p *pipeline) Close() {
	if p.sink != nil {
		p.sink.Close()
	}
}
