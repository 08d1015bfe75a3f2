package query

import "time"

// Mode selects how a query item delivers its results.
type Mode string

const (
	// ModeAPI serves the query on demand from an HTTP endpoint.
	ModeAPI Mode = "api"

	// ModeTelemetry polls the query on an interval and publishes to a topic.
	ModeTelemetry Mode = "mqtt"
)

// modeAliases maps accepted mode tokens (lower-cased) to modes.
var modeAliases = map[string]Mode{
	"api":       ModeAPI,
	"mqtt":      ModeTelemetry,
	"telemetry": ModeTelemetry,
}

// Definition is a raw, unparsed query definition.
type Definition struct {
	// Source names where the definition came from (environment key or YAML key).
	Source string

	// Raw is the semicolon-delimited definition string.
	Raw string
}

// APISpec holds the fields of an API-mode item.
type APISpec struct {
	// Endpoint is the route path, always starting with "/".
	Endpoint string
}

// TelemetrySpec holds the fields of a telemetry-mode item.
type TelemetrySpec struct {
	// Topic is appended to the configured topic prefix when publishing.
	Topic string

	// Interval is the delay between ticks. Always positive.
	Interval time.Duration
}

// Item is a validated query item.
//
// Exactly one of API or Telemetry is set, matching Mode. Items are
// immutable once parsed; callers must not modify the mode payloads.
type Item struct {
	Source    string
	Mode      Mode
	Template  string
	API       *APISpec
	Telemetry *TelemetrySpec
}

// String returns a short description for logs.
func (i Item) String() string {
	switch i.Mode {
	case ModeAPI:
		return "api " + i.API.Endpoint
	case ModeTelemetry:
		return "mqtt " + i.Telemetry.Topic + " every " + i.Telemetry.Interval.String()
	default:
		return "unknown"
	}
}
