// Package telemetry runs the interval-driven publish loops for telemetry
// query items.
//
// Each item gets its own goroutine. A tick checks the broker connection,
// executes the item's template verbatim, encodes the rows as
// {"rows":[...]} and publishes the bytes to the item's topic. Nothing a tick
// does can stop the loop: query, encode and publish failures (and panics) are
// logged and counted, and the next tick is scheduled one interval after the
// previous one finished.
//
// Usage:
//
//	svc := telemetry.NewService(telemetry.Config{
//	    Publisher:   mqttClient,
//	    Executor:    db,
//	    TopicPrefix: "sclab/",
//	})
//	svc.SetLogger(log)
//	if err := svc.Start(ctx, registry.TelemetryItems()); err != nil {
//	    return err
//	}
//	defer svc.Stop()
package telemetry
