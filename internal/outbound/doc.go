// Package outbound generates and publishes downlink records.
//
// A Publisher owns the outbound sequence counter. Every generated message
// takes the next number, whether or not its publish later succeeds, so
// gaps seen downstream mark failed sends. Sequences start at a configured
// value on every process start and are never reused while it runs.
//
// The Publisher is schedule-agnostic: Run pulls ticks from a Schedule
// (Interval, Trigger or Burst) and sends one message per tick. Callers
// may also drive it directly with NextMessage and Publish.
//
//	pub, err := outbound.New(supervisor, outbound.Options{
//	    Topic:         "UWB/GW16B8_Dwlink",
//	    StartSequence: 1240,
//	    Generator:     outbound.AnchorGenerator{GatewayID: 4192540344, Name: "0x8E97", ID: 36503},
//	})
//	go pub.Run(ctx, outbound.Interval(time.Second))
package outbound
