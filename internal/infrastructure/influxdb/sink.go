package influxdb

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/telemetry"
)

// Point tags added to every telemetry point.
const (
	tagSource = "source"
	tagTopic  = "topic"
)

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string {
	return "influxdb"
}

// Write mirrors a published telemetry result as one point per row.
//
// The write is non-blocking; points are batched and sent asynchronously,
// and delivery errors arrive through OnWriteError.
//
// Parameters:
//   - ctx: unused; the batch writer does its own flushing
//   - msg: the published telemetry result
//
// Returns:
//   - error: ErrClosed after Close
func (s *Sink) Write(_ context.Context, msg telemetry.Message) error {
	if s.isClosed() {
		return ErrClosed
	}

	for _, p := range Points(s.measurement, msg) {
		s.writer.WritePoint(p)
	}
	return nil
}

// Points converts every row of msg into a point of measurement.
//
// Column mapping:
//   - numbers and booleans become fields
//   - decimal values (json.Number) become float fields
//   - strings become tags
//   - time values become the point time; the first one wins
//   - NULL and binary values are dropped
//
// Rows with no fields are skipped since InfluxDB rejects them. Points
// carry "source" and "topic" tags and default to msg.Time.
func Points(measurement string, msg telemetry.Message) []*write.Point {
	points := make([]*write.Point, 0, len(msg.Rows))

	for _, row := range msg.Rows {
		tags := map[string]string{
			tagSource: msg.Source,
			tagTopic:  msg.Topic,
		}
		fields := make(map[string]any, row.Len())
		ts := msg.Time
		timeSet := false

		for _, col := range row.Columns() {
			v, _ := row.Get(col)
			switch val := v.(type) {
			case int64, int32, int, uint64, bool:
				fields[col] = val
			case float64:
				if !math.IsNaN(val) && !math.IsInf(val, 0) {
					fields[col] = val
				}
			case json.Number:
				if f, err := strconv.ParseFloat(string(val), 64); err == nil {
					fields[col] = f
				}
			case string:
				tags[col] = val
			case time.Time:
				if !timeSet {
					ts = val
					timeSet = true
				}
			}
		}

		if len(fields) == 0 {
			continue
		}
		points = append(points, write.NewPoint(measurement, tags, fields, ts))
	}

	return points
}
