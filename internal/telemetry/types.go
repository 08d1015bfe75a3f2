package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("telemetry: service already started")

// Tick results, as reported to the Recorder.
const (
	ResultPublished    = "published"
	ResultSkipped      = "skipped"
	ResultQueryError   = "query_error"
	ResultEncodeError  = "encode_error"
	ResultPublishError = "publish_error"
	ResultPanic        = "panic"
)

// Publisher sends payloads to the broker.
// Implemented by the MQTT and NATS clients.
type Publisher interface {
	// IsConnected reports whether the broker connection is currently up.
	IsConnected() bool

	// Publish sends payload to topic.
	Publish(topic string, payload []byte) error
}

// Executor runs SQL against the database.
type Executor interface {
	Query(ctx context.Context, sqlText string) (recordset.Rows, error)
}

// Message is a published telemetry result handed to sinks.
type Message struct {
	// Source is the name of the query definition.
	Source string

	// Topic is the full topic the payload was published to.
	Topic string

	// Rows is the decoded result set.
	Rows recordset.Rows

	// Payload is the published JSON.
	Payload []byte

	// Time is when the query completed.
	Time time.Time
}

// Sink receives every successfully published message.
// Sink errors are logged and never affect the publish loop.
type Sink interface {
	Name() string
	Write(ctx context.Context, msg Message) error
}

// Recorder observes tick outcomes. Implemented by the metrics package.
type Recorder interface {
	ObserveTick(source, result string, duration time.Duration)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) ObserveTick(string, string, time.Duration) {}
