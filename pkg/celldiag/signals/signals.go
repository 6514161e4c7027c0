// Package signals holds the time-series pattern detectors. Every detector is
// a pure function over a value series and its millisecond timestamps; none
// keeps state between calls.
package signals

import "math"

// PatternType names a class of anomalous time-series behaviour.
type PatternType string

const (
	Collision PatternType = "collision"
	Overload  PatternType = "overload"
	Drift     PatternType = "drift"
	Vibration PatternType = "vibration"
)

// AllPatternTypes lists the detectors in the order FullInference runs them.
var AllPatternTypes = []PatternType{Collision, Overload, Drift, Vibration}

// Series is one sensor axis sampled over time. Timestamps are Unix
// milliseconds in ascending order and pair index-wise with Values.
type Series struct {
	Axis         string    `json:"axis"`
	Values       []float64 `json:"values"`
	TimestampsMS []int64   `json:"timestamps_ms"`
}

// Len is the number of usable samples: the shorter of the two slices.
func (s Series) Len() int {
	return pairedLen(s.Values, s.TimestampsMS)
}

// Latest returns the most recent sample.
func (s Series) Latest() (value float64, ts int64, ok bool) {
	n := s.Len()
	if n == 0 {
		return 0, 0, false
	}
	return s.Values[n-1], s.TimestampsMS[n-1], true
}

// Detection is one occurrence found by a detector.
type Detection struct {
	Type       PatternType
	StartMS    int64
	EndMS      int64
	Confidence float64
	Metrics    map[string]float64
}

// DurationMS is the time the detection spans.
func (d Detection) DurationMS() int64 { return d.EndMS - d.StartMS }

func pairedLen(values []float64, ts []int64) int {
	if len(values) < len(ts) {
		return len(values)
	}
	return len(ts)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
