// Package influx reads and writes force/torque sensor series in InfluxDB.
//
// Samples live in one measurement tagged by robot, with one field per axis
// (Fx, Fy, Fz, Tx, Ty, Tz).
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

// Options configures a Source.
type Options struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Logger      *zap.Logger
	Now         func() time.Time
}

// Source fetches sensor series for the detectors.
type Source struct {
	client      influxdb2.Client
	query       api.QueryAPI
	write       api.WriteAPIBlocking
	bucket      string
	measurement string
	logger      *zap.Logger
	now         func() time.Time
}

// NewSource creates a client. No request is made until the first call.
func NewSource(opts Options) (*Source, error) {
	if opts.URL == "" || opts.Org == "" || opts.Bucket == "" || opts.Measurement == "" {
		return nil, fmt.Errorf("%w: influx url, org, bucket and measurement are required", internalerr.ErrInvalidConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &Source{
		client:      client,
		query:       client.QueryAPI(opts.Org),
		write:       client.WriteAPIBlocking(opts.Org, opts.Bucket),
		bucket:      opts.Bucket,
		measurement: opts.Measurement,
		logger:      logger,
		now:         now,
	}, nil
}

func (s *Source) Close() {
	s.client.Close()
}

// Ping checks that the server is up.
func (s *Source) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w: %w", internalerr.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("influx ping: %w", internalerr.ErrStoreUnavailable)
	}
	return nil
}

// Series returns the samples of one axis of robot over the last window,
// oldest first.
func (s *Source) Series(ctx context.Context, robot, axis string, window time.Duration) (signals.Series, error) {
	end := s.now().UTC()
	query := buildQuery(s.bucket, s.measurement, robot, axis, end.Add(-window), end)

	result, err := s.query.Query(ctx, query)
	if err != nil {
		return signals.Series{}, fmt.Errorf("InfluxDB query failed: %w", err)
	}
	defer result.Close()

	series := signals.Series{Axis: axis}
	for result.Next() {
		record := result.Record()
		v, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		series.Values = append(series.Values, v)
		series.TimestampsMS = append(series.TimestampsMS, record.Time().UnixMilli())
	}
	if result.Err() != nil {
		return signals.Series{}, fmt.Errorf("error reading InfluxDB results: %w", result.Err())
	}

	s.logger.Debug("sensor series fetched",
		zap.String("robot", robot),
		zap.String("axis", axis),
		zap.Duration("window", window),
		zap.Int("samples", series.Len()))
	return series, nil
}

// SeriesAll fetches every axis in turn. Axes without samples are dropped.
func (s *Source) SeriesAll(ctx context.Context, robot string, axes []string, window time.Duration) ([]signals.Series, error) {
	out := make([]signals.Series, 0, len(axes))
	for _, axis := range axes {
		series, err := s.Series(ctx, robot, axis, window)
		if err != nil {
			return nil, fmt.Errorf("series %s/%s: %w", robot, axis, err)
		}
		if series.Len() > 0 {
			out = append(out, series)
		}
	}
	return out, nil
}

// Write stores series samples for robot.
func (s *Source) Write(ctx context.Context, robot string, series ...signals.Series) error {
	points := toPoints(s.measurement, robot, series)
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("InfluxDB write failed: %w", err)
	}
	s.logger.Debug("sensor samples written", zap.String("robot", robot), zap.Int("points", len(points)))
	return nil
}

func buildQuery(bucket, measurement, robot, axis string, start, stop time.Time) string {
	return fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r._measurement == %q)
			|> filter(fn: (r) => r.robot == %q)
			|> filter(fn: (r) => r._field == %q)
			|> sort(columns: ["_time"])
	`, bucket, start.Format(time.RFC3339Nano), stop.Format(time.RFC3339Nano), measurement, robot, axis)
}

// toPoints writes one point per sample; samples sharing a timestamp across
// axes are merged by the server on write.
func toPoints(measurement, robot string, series []signals.Series) []*write.Point {
	var points []*write.Point
	for _, s := range series {
		n := s.Len()
		for i := 0; i < n; i++ {
			points = append(points, influxdb2.NewPoint(
				measurement,
				map[string]string{"robot": robot},
				map[string]interface{}{s.Axis: s.Values[i]},
				time.UnixMilli(s.TimestampsMS[i]).UTC(),
			))
		}
	}
	return points
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
