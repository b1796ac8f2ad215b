// Package mqtt provides the bridge's broker connectivity.
//
// This package manages:
//   - One broker session driven by a Supervisor state machine
//     (disconnected, connecting, connected, reconnecting)
//   - Reconnection with capped exponential backoff and jitter
//   - Re-subscription of every recorded topic after each reconnect
//   - A bounded outbound queue for publishes issued while disconnected
//   - Publish tickets resolved by broker acknowledgement
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The Supervisor is the only component that touches the Transport. The
// paho.mqtt.golang client sits behind Transport with its own reconnect
// logic switched off.
//
//	UWB gateways ↔ MQTT Broker ↔ Transport ↔ Supervisor → Dispatcher (router)
//	                                           ↑
//	                                 Publish (outbound publisher, API)
//
// Inbound deliveries are queued on a bounded channel and dispatched by a
// single goroutine, so handlers see them in arrival order and a slow
// handler applies backpressure instead of reordering.
//
// # Security Considerations
//
//   - TLS is enabled with cfg.Broker.TLS; cfg.Broker.CAFile adds a CA
//     bundle, otherwise the system trust store is used
//   - Credentials come from configuration or UWBBRIDGE_MQTT_* variables
//
// # Usage
//
//	transport, err := mqtt.NewPahoTransport(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	sup, err := mqtt.NewSupervisor(transport, r, mqtt.OptionsFromConfig(cfg.MQTT))
//	if err != nil {
//	    return err
//	}
//	go sup.Run(ctx)
//	defer sup.Close()
//
//	_ = sup.Subscribe(ctx, mqtt.Topics{}.GatewayHealth("17F5"), 1)
//	ticket, err := sup.Publish(ctx, mqtt.PublishRequest{
//	    Topic:   mqtt.Topics{}.GatewayDownlink("16B8"),
//	    Payload: payload,
//	    QoS:     1,
//	})
package mqtt
