package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
)

// Config holds the dependencies of a Service.
type Config struct {
	// Publisher delivers payloads. Required.
	Publisher Publisher

	// Executor runs templates. Required.
	Executor Executor

	// TopicPrefix is prepended to every item topic.
	TopicPrefix string

	// QueryTimeout bounds each query. Zero means no timeout beyond
	// service shutdown.
	QueryTimeout time.Duration
}

// Service owns one publish loop per telemetry item.
//
// All public methods are safe for concurrent use.
type Service struct {
	publisher    Publisher
	executor     Executor
	topicPrefix  string
	queryTimeout time.Duration

	mu       sync.RWMutex
	sinks    []Sink
	logger   Logger
	recorder Recorder

	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewService creates a telemetry service. Call Start to begin publishing.
func NewService(cfg Config) *Service {
	return &Service{
		publisher:    cfg.Publisher,
		executor:     cfg.Executor,
		topicPrefix:  cfg.TopicPrefix,
		queryTimeout: cfg.QueryTimeout,
		logger:       noopLogger{},
		recorder:     noopRecorder{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// SetRecorder sets the tick outcome recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

// AddSink registers a sink that receives every published message.
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Topic returns the full topic for an item.
func (s *Service) Topic(item query.Item) string {
	return s.topicPrefix + item.Telemetry.Topic
}

// Start launches one loop per telemetry item and returns immediately.
// Items of other modes are ignored. The first tick of every loop runs
// straight away.
//
// Parameters:
//   - ctx: parent context; cancelling it stops every loop
//   - items: the items to run
//
// Returns:
//   - error: ErrAlreadyStarted if Start was already called
func (s *Service) Start(ctx context.Context, items []query.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	count := 0
	for _, item := range items {
		if item.Mode != query.ModeTelemetry || item.Telemetry == nil {
			continue
		}
		count++
		s.wg.Add(1)
		go s.run(loopCtx, item)
	}

	s.logger.Info("telemetry loops started", "count", count)
	return nil
}

// Stop cancels every loop and waits for them to return.
// A tick in flight sees a cancelled context. Safe to call multiple times and
// before Start.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.started = true
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
		s.log().Info("telemetry loops stopped")
	})
}

// run is the per-item loop. The wait starts after the previous tick
// finished, so ticks of one item never overlap.
func (s *Service) run(ctx context.Context, item query.Item) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.tick(ctx, item)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(item.Telemetry.Interval)
	}
}

// tick performs one check-query-publish cycle and reports its result.
func (s *Service) tick(ctx context.Context, item query.Item) (result string) {
	start := time.Now()
	logger := s.log()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("telemetry tick panicked",
				"source", item.Source,
				"panic", fmt.Sprint(r),
			)
			result = ResultPanic
		}
		s.rec().ObserveTick(item.Source, result, time.Since(start))
	}()

	if !s.publisher.IsConnected() {
		logger.Debug("broker not connected, skipping tick", "source", item.Source)
		return ResultSkipped
	}

	queryCtx := ctx
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.executor.Query(queryCtx, item.Template)
	if err != nil {
		logger.Error("telemetry query failed", "source", item.Source, "error", err)
		return ResultQueryError
	}
	done := time.Now()

	payload, err := recordset.Encode(rows)
	if err != nil {
		logger.Error("encoding telemetry rows failed", "source", item.Source, "error", err)
		return ResultEncodeError
	}

	topic := s.Topic(item)
	if err := s.publisher.Publish(topic, payload); err != nil {
		logger.Error("telemetry publish failed", "source", item.Source, "topic", topic, "error", err)
		return ResultPublishError
	}

	logger.Debug("telemetry published",
		"source", item.Source,
		"topic", topic,
		"rows", len(rows),
		"bytes", len(payload),
	)

	s.writeSinks(ctx, Message{
		Source:  item.Source,
		Topic:   topic,
		Rows:    rows,
		Payload: payload,
		Time:    done,
	})

	return ResultPublished
}

func (s *Service) writeSinks(ctx context.Context, msg Message) {
	s.mu.RLock()
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Write(ctx, msg); err != nil {
			s.log().Warn("telemetry sink failed",
				"sink", sink.Name(),
				"source", msg.Source,
				"error", err,
			)
		}
	}
}

func (s *Service) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func (s *Service) rec() Recorder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder
}
