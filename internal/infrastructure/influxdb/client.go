package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
)

var (
	// ErrDisabled is returned by Open when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: sink disabled")

	// ErrUnreachable is returned by Open when the server does not answer a ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by Write and HealthCheck after Close.
	ErrClosed = errors.New("influxdb: sink closed")
)

const (
	openTimeout = 10 * time.Second
	pingTimeout = 5 * time.Second

	fallbackMeasurement  = "telemetry"
	fallbackBatchSize    = 100
	fallbackFlushSeconds = 10
)

// Sink mirrors telemetry results into one InfluxDB bucket.
//
// Points go through the library's batching write API, so Write never blocks
// on the network. Delivery failures surface through OnWriteError.
type Sink struct {
	client      influxdb2.Client
	writer      api.WriteAPI
	measurement string

	mu           sync.RWMutex
	closed       bool
	onWriteError func(err error)
}

// Open pings the server and returns a sink writing to cfg.Org/cfg.Bucket.
//
// Returns:
//   - *Sink: ready for telemetry.Service.AddSink
//   - error: ErrDisabled, or ErrUnreachable wrapping the ping failure
func Open(cfg config.InfluxDBConfig) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrUnreachable, cfg.URL)
	}

	s := &Sink{
		client:      client,
		writer:      client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: measurementFor(cfg),
	}
	go s.drainErrors(s.writer.Errors())

	return s, nil
}

// writeOptions maps batch_size and flush_interval (seconds) onto the client
// options, falling back to 100 points and 10 s.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = fallbackFlushSeconds
	}

	// #nosec G115 -- both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * uint(time.Second/time.Millisecond))
}

func measurementFor(cfg config.InfluxDBConfig) string {
	if cfg.Measurement == "" {
		return fallbackMeasurement
	}
	return cfg.Measurement
}

// drainErrors forwards asynchronous batch failures until the writer closes.
func (s *Sink) drainErrors(ch <-chan error) {
	for err := range ch {
		s.mu.RLock()
		fn := s.onWriteError
		s.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// OnWriteError registers fn for batch write failures.
func (s *Sink) OnWriteError(fn func(err error)) {
	s.mu.Lock()
	s.onWriteError = fn
	s.mu.Unlock()
}

func (s *Sink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// HealthCheck pings the server.
func (s *Sink) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb: ping: %w", err)
	}
	if !ok {
		return errors.New("influxdb: server reports unhealthy")
	}
	return nil
}

// Close flushes buffered points and releases the client. Calling it again
// is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed || s.client == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writer.Flush()
	s.client.Close()
	return nil
}
