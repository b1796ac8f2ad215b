// Package influxdb stores decoded UWB records in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: the blocking write
// API sits behind a sony/gobreaker circuit breaker, so a failing server
// costs one fast error per record instead of a write timeout.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.WriteRecord(ctx, msg.Topic, decoded, msg.ReceivedAt)
//
// Each record becomes one point in measurement uwb_<kind> (uwb_status,
// uwb_anchor_config, uwb_tag_config). Fields missing from the payload are
// left out of the point.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes block for up to write_timeout; run them off the inbound path.
package influxdb
