// Package mqtt provides the MQTT publish transport for the connector.
//
// This package manages:
//   - Connection to the broker with connect retry and auto-reconnect
//   - Connection-state tracking used by the telemetry loop to skip ticks
//   - Publishing with the configured QoS and retain flag
//   - Last Will and Testament (LWT) plus a retained online/offline status
//
// # Architecture
//
// Telemetry items poll the database and hand their encoded rows to this
// client, which publishes them to <topic_prefix><topic>:
//
//	telemetry.Service → mqtt.Client → Broker → subscribers
//
// The client satisfies telemetry.Publisher.
//
// # Status Topic
//
// On every (re)connect the client publishes a retained
// {"status":"online",...} message to <topic_prefix>status. The broker
// publishes the LWT {"status":"offline","reason":"unexpected_disconnect"}
// if the process dies, and Close publishes a graceful offline status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Broker.TopicPrefix)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish("sclab/plant/line1", payload)
package mqtt
