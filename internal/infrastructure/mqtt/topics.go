package mqtt

import "strings"

// statusSuffix is appended to the topic prefix to form the status topic.
const statusSuffix = "status"

// StatusTopic returns the retained connector status topic for prefix.
//
// Example:
//
//	StatusTopic("sclab/plant/") // "sclab/plant/status"
func StatusTopic(prefix string) string {
	return prefix + statusSuffix
}

// ValidatePublishTopic reports whether topic may be published to.
// Publish topics must be non-empty and must not contain the wildcards
// '+' or '#' or a NUL character.
func ValidatePublishTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#\x00") {
		return ErrInvalidTopic
	}
	return nil
}
