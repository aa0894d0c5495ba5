// Package influxdb provides time-series telemetry storage for the node.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// This package handles time-series data for:
//   - Bluetooth signal strength (RSSI) per connected device
//   - Device lifecycle events (connect, disconnect, failures)
//   - Audio link lifecycle events (create, destroy, volume)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "house-audio",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSignalStrength("AA:BB:CC:DD:EE:FF", -62)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly. Telemetry is strictly best-effort: a dead InfluxDB never blocks
// or fails a node operation.
package influxdb
