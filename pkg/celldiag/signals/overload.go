package signals

import "math"

// OverloadConfig controls sustained-load detection.
type OverloadConfig struct {
	// Threshold is the absolute value a sample must exceed to count as loaded.
	Threshold float64 `yaml:"threshold"`

	// MinDurationS is how long a run must last before it is reported.
	MinDurationS float64 `yaml:"min_duration_s"`
}

// DefaultOverloadConfig returns the payload-overload defaults.
func DefaultOverloadConfig() OverloadConfig {
	return OverloadConfig{
		Threshold:    300,
		MinDurationS: 5,
	}
}

// DetectOverload finds contiguous runs where |value| exceeds the threshold
// and reports each run whose duration reaches MinDurationS, with its peak
// magnitude and actual duration.
func DetectOverload(values []float64, ts []int64, cfg OverloadConfig) []Detection {
	n := pairedLen(values, ts)
	minMS := int64(cfg.MinDurationS * 1000)

	var out []Detection
	runStart := -1
	var peak, sum float64
	var count int

	flush := func(end int) {
		dur := ts[end] - ts[runStart]
		if dur >= minMS {
			excess := (peak - cfg.Threshold) / math.Max(cfg.Threshold, 1e-9)
			out = append(out, Detection{
				Type:       Overload,
				StartMS:    ts[runStart],
				EndMS:      ts[end],
				Confidence: clamp01(0.6 + 0.4*excess),
				Metrics: map[string]float64{
					"peak":       peak,
					"mean":       sum / float64(count),
					"duration_s": float64(dur) / 1000,
					"threshold":  cfg.Threshold,
				},
			})
		}
		runStart = -1
	}

	for i := 0; i < n; i++ {
		mag := math.Abs(values[i])
		if mag > cfg.Threshold {
			if runStart < 0 {
				runStart, peak, sum, count = i, 0, 0, 0
			}
			peak = math.Max(peak, mag)
			sum += mag
			count++
			continue
		}
		if runStart >= 0 {
			flush(i - 1)
		}
	}
	if runStart >= 0 {
		flush(n - 1)
	}
	return out
}
