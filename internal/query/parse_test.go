package query

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParse_API(t *testing.T) {
	item, err := Parse(Definition{Source: "QUERY_1", Raw: "api;SELECT * FROM T WHERE id = :id;/t"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if item.Mode != ModeAPI {
		t.Errorf("Mode = %q, want %q", item.Mode, ModeAPI)
	}
	if item.Template != "SELECT * FROM T WHERE id = :id" {
		t.Errorf("Template = %q", item.Template)
	}
	if item.API == nil || item.API.Endpoint != "/t" {
		t.Fatalf("API = %+v, want endpoint /t", item.API)
	}
	if item.Telemetry != nil {
		t.Error("Telemetry should be nil for API item")
	}
	if item.Source != "QUERY_1" {
		t.Errorf("Source = %q, want QUERY_1", item.Source)
	}
}

func TestParse_Telemetry(t *testing.T) {
	item, err := Parse(Definition{Source: "QUERY_2", Raw: "MQTT; SELECT 1 ;sensors/latest; 5000 "})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if item.Mode != ModeTelemetry {
		t.Errorf("Mode = %q, want %q", item.Mode, ModeTelemetry)
	}
	if item.Template != "SELECT 1" {
		t.Errorf("Template = %q, want trimmed template", item.Template)
	}
	if item.Telemetry == nil {
		t.Fatal("Telemetry is nil")
	}
	if item.Telemetry.Topic != "sensors/latest" {
		t.Errorf("Topic = %q", item.Telemetry.Topic)
	}
	if item.Telemetry.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", item.Telemetry.Interval)
	}
	if item.API != nil {
		t.Error("API should be nil for telemetry item")
	}
}

func TestParse_TelemetryAlias(t *testing.T) {
	item, err := Parse(Definition{Source: "Q", Raw: "telemetry;SELECT 1;t;100"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if item.Mode != ModeTelemetry {
		t.Errorf("Mode = %q, want %q", item.Mode, ModeTelemetry)
	}
}

func TestParse_EndpointGetsLeadingSlash(t *testing.T) {
	item, err := Parse(Definition{Source: "Q", Raw: "api;SELECT 1;users"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if item.API.Endpoint != "/users" {
		t.Errorf("Endpoint = %q, want /users", item.API.Endpoint)
	}
}

func TestParse_TrailingSeparator(t *testing.T) {
	if _, err := Parse(Definition{Source: "Q", Raw: "api;SELECT 1;/x;"}); err != nil {
		t.Errorf("Parse() with trailing separator error = %v", err)
	}
}

func TestParse_MaxInterval(t *testing.T) {
	item, err := Parse(Definition{Source: "Q", Raw: "mqtt;SELECT 1;t;9223372036854"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if want := 9223372036854 * time.Millisecond; item.Telemetry.Interval != want {
		t.Errorf("Interval = %v, want %v", item.Telemetry.Interval, want)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{name: "empty", raw: "", field: FieldMode},
		{name: "unknown mode", raw: "grpc;SELECT 1;/x", field: FieldMode},
		{name: "api missing endpoint field", raw: "api;SELECT 1", field: FieldFields},
		{name: "api empty template", raw: "api; ;/x", field: FieldTemplate},
		{name: "api empty endpoint", raw: "api;SELECT 1; ;x", field: FieldFields},
		{name: "api too many fields", raw: "api;SELECT 1; SELECT 2;/x", field: FieldFields},
		{name: "mqtt missing interval", raw: "mqtt;SELECT 1;topic", field: FieldFields},
		{name: "mqtt empty topic", raw: "mqtt;SELECT 1; ;100", field: FieldTopic},
		{name: "mqtt non-numeric interval", raw: "mqtt;SELECT 1;topic;soon", field: FieldInterval},
		{name: "mqtt zero interval", raw: "mqtt;SELECT 1;topic;0", field: FieldInterval},
		{name: "mqtt negative interval", raw: "mqtt;SELECT 1;topic;-5", field: FieldInterval},
		{name: "mqtt interval overflows duration", raw: "mqtt;SELECT 1;topic;9223372036854776", field: FieldInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(Definition{Source: "QUERY_BAD", Raw: tt.raw})
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("error = %v, want ErrInvalidDefinition", err)
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type = %T, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
			if cfgErr.Source != "QUERY_BAD" {
				t.Errorf("Source = %q, want QUERY_BAD", cfgErr.Source)
			}
			if !strings.Contains(err.Error(), "QUERY_BAD") {
				t.Errorf("Error() = %q, should name the definition", err.Error())
			}
		})
	}
}
