// Package natsclient provides the NATS publish transport for the connector.
//
// It is the alternative to the MQTT transport, selected with
// broker.type: nats (BROKER_TYPE=nats). The client satisfies
// telemetry.Publisher: the telemetry loop asks IsConnected before every
// tick and hands encoded rows to Publish.
//
// # Subjects
//
// Telemetry topics are written MQTT-style with '/' separators. Publish maps
// them onto NATS subjects by replacing '/' with '.' and dropping empty
// tokens, so "sclab/plant/line1" is published on "sclab.plant.line1".
//
// # Reconnection
//
// The first Connect must succeed. After that nats.go reconnects on its
// own (MaxReconnects -1 means forever) and IsConnected reports false while
// it does, which makes the telemetry loop skip ticks until the link is back.
//
// # Usage
//
//	client, err := natsclient.NewClient(cfg.NATS.URL,
//	    natsclient.WithName("sclab-sqlserver-connector"),
//	    natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
package natsclient
