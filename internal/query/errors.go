package query

import (
	"errors"
	"fmt"
)

// Domain errors for the query package.
//
// Check with errors.Is():
//
//	if errors.Is(err, query.ErrInvalidDefinition) {
//	    // skip this definition
//	}
var (
	// ErrInvalidDefinition is wrapped by every ConfigError.
	ErrInvalidDefinition = errors.New("query: invalid definition")

	// ErrDuplicateEndpoint is returned when two API items claim the same endpoint.
	ErrDuplicateEndpoint = errors.New("query: duplicate endpoint")
)

// Field names reported in ConfigError.Field.
const (
	FieldMode     = "mode"
	FieldTemplate = "template"
	FieldEndpoint = "endpoint"
	FieldTopic    = "topic"
	FieldInterval = "interval"
	FieldFields   = "fields"
)

// ConfigError describes why a single definition was rejected.
type ConfigError struct {
	// Source is the name the definition was read from (e.g. "QUERY_SENSORS").
	Source string

	// Field is the offending field (one of the Field* constants).
	Field string

	// Reason is a human-readable description of the problem.
	Reason string

	// Err is an optional underlying cause.
	Err error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("query definition %q: %s: %s", e.Source, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both ErrInvalidDefinition and the cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidDefinition, e.Err}
	}
	return []error{ErrInvalidDefinition}
}

func configErr(source, field, reason string) *ConfigError {
	return &ConfigError{Source: source, Field: field, Reason: reason}
}
