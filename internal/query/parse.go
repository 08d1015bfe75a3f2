package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fieldSeparator splits a definition into fields.
const fieldSeparator = ";"

// Field counts per mode, including the mode field itself.
const (
	apiFieldCount       = 3
	telemetryFieldCount = 4
)

// Parse validates a single definition and returns the resulting item.
//
// Field layout:
//
//	api;<template>;<endpoint>
//	mqtt;<template>;<topic>;<interval-ms>
//
// Surrounding whitespace on every field is ignored, the mode token is
// case-insensitive, and trailing empty fields (a trailing ";") are dropped.
//
// Returns:
//   - Item: the validated item
//   - error: a *ConfigError when the definition is malformed
func Parse(def Definition) (Item, error) {
	fields := splitFields(def.Raw)
	if len(fields) == 0 || fields[0] == "" {
		return Item{}, configErr(def.Source, FieldMode, "missing mode")
	}

	modeToken := strings.ToLower(fields[0])
	mode, ok := modeAliases[modeToken]
	if !ok {
		return Item{}, configErr(def.Source, FieldMode, fmt.Sprintf("unrecognised mode %q", fields[0]))
	}

	switch mode {
	case ModeAPI:
		return parseAPI(def.Source, fields)
	case ModeTelemetry:
		return parseTelemetry(def.Source, fields)
	default:
		return Item{}, configErr(def.Source, FieldMode, fmt.Sprintf("unrecognised mode %q", fields[0]))
	}
}

func parseAPI(source string, fields []string) (Item, error) {
	if err := checkFieldCount(source, fields, apiFieldCount); err != nil {
		return Item{}, err
	}
	if fields[1] == "" {
		return Item{}, configErr(source, FieldTemplate, "template is required")
	}
	endpoint := fields[2]
	if endpoint == "" {
		return Item{}, configErr(source, FieldEndpoint, "endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	return Item{
		Source:   source,
		Mode:     ModeAPI,
		Template: fields[1],
		API:      &APISpec{Endpoint: endpoint},
	}, nil
}

func parseTelemetry(source string, fields []string) (Item, error) {
	if err := checkFieldCount(source, fields, telemetryFieldCount); err != nil {
		return Item{}, err
	}
	if fields[1] == "" {
		return Item{}, configErr(source, FieldTemplate, "template is required")
	}
	if fields[2] == "" {
		return Item{}, configErr(source, FieldTopic, "topic is required")
	}

	ms, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Item{}, &ConfigError{
			Source: source,
			Field:  FieldInterval,
			Reason: fmt.Sprintf("interval %q is not an integer", fields[3]),
			Err:    err,
		}
	}
	if ms <= 0 {
		return Item{}, configErr(source, FieldInterval, fmt.Sprintf("interval must be positive, got %d", ms))
	}
	if ms > maxIntervalMS {
		return Item{}, configErr(source, FieldInterval, fmt.Sprintf("interval %d ms exceeds the maximum of %d ms", ms, maxIntervalMS))
	}

	return Item{
		Source:   source,
		Mode:     ModeTelemetry,
		Template: fields[1],
		Telemetry: &TelemetrySpec{
			Topic:    fields[2],
			Interval: time.Duration(ms) * time.Millisecond,
		},
	}, nil
}

// maxIntervalMS is the largest interval that fits a time.Duration.
const maxIntervalMS = math.MaxInt64 / int64(time.Millisecond)

// checkFieldCount reports missing or surplus fields for a mode.
func checkFieldCount(source string, fields []string, want int) error {
	switch {
	case len(fields) < want:
		return configErr(source, FieldFields, fmt.Sprintf("expected %d fields, got %d", want, len(fields)))
	case len(fields) > want:
		// Usually a template containing ";", which the format cannot express.
		return configErr(source, FieldFields, fmt.Sprintf("expected %d fields, got %d (templates cannot contain %q)", want, len(fields), fieldSeparator))
	}
	return nil
}

// splitFields splits and trims a definition, dropping trailing empty fields.
func splitFields(raw string) []string {
	parts := strings.Split(raw, fieldSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
