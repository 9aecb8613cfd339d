// Package influxdb provides optional telemetry history for the Zigbee mesh core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management and batched, non-blocking writes of per-entity telemetry.
//
// # Purpose
//
// The in-memory entity cache only holds the last-known payload per topic.
// When enabled, this package additionally streams numeric telemetry fields
// (battery, link quality, temperature, ...) to InfluxDB so history survives
// outside the core. The core itself remains stateless across restarts.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // errors.Is(err, influxdb.ErrDisabled) means history is off
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("kitchen-lamp", payload)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are surfaced via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
