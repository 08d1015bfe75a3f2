package mqtt

import (
	"fmt"
)

// Publish sends payload to topic using the configured QoS and retain flag.
//
// Parameters:
//   - topic: full topic, prefix included (e.g., "sclab/plant/line1")
//   - payload: the message payload (UTF-8 JSON, at most mqtt.max_payload bytes)
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidTopic, or wrapped ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, byte(c.cfg.QoS), c.cfg.Retain) //nolint:gosec // QoS validated in config
}

// publish sends a message with explicit QoS and retain settings.
func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return fmt.Errorf("%w: %q", err, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	// Oversized telemetry results are rejected rather than truncated.
	if limit := c.cfg.MaxPayload; limit > 0 && len(payload) > limit {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), limit)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
