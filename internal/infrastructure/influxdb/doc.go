// Package influxdb mirrors telemetry results into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library and implements
// telemetry.Sink: after a telemetry item publishes its rows, the same rows
// are written as points so they can be charted over time.
//
// # Usage
//
//	sink, err := influxdb.Open(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	svc.AddSink(sink)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered to OnWriteError.
// Open and HealthCheck return their errors directly.
package influxdb
