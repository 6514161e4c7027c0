package signals

import "math"

// VibrationConfig controls oscillation detection.
type VibrationConfig struct {
	// WindowSize is the rolling window length in samples. Default: 10
	WindowSize int `yaml:"window_size"`

	// StdMultiplier scales the global standard deviation into the rolling
	// threshold. Default: 2
	StdMultiplier float64 `yaml:"std_multiplier"`
}

// DefaultVibrationConfig returns sensible defaults.
func DefaultVibrationConfig() VibrationConfig {
	return VibrationConfig{
		WindowSize:    10,
		StdMultiplier: 2,
	}
}

// DetectVibration flags every index whose trailing rolling standard
// deviation exceeds StdMultiplier times the global standard deviation.
// Flagged indices no more than one window apart merge into a single
// detection.
func DetectVibration(values []float64, ts []int64, cfg VibrationConfig) []Detection {
	n := pairedLen(values, ts)
	w := cfg.WindowSize
	if w < 2 || n < w {
		return nil
	}

	globalStd := stddev(values[:n])
	threshold := globalStd * cfg.StdMultiplier
	if threshold <= 0 {
		return nil
	}

	type hit struct {
		idx int
		std float64
	}
	var hits []hit
	for i := w - 1; i < n; i++ {
		s := stddev(values[i-w+1 : i+1])
		if s > threshold {
			hits = append(hits, hit{idx: i, std: s})
		}
	}

	var out []Detection
	emit := func(run []hit) {
		if len(run) == 0 {
			return
		}
		var sum, peak float64
		for _, h := range run {
			sum += h.std
			peak = math.Max(peak, h.std)
		}
		avg := sum / float64(len(run))
		first, last := run[0].idx, run[len(run)-1].idx
		out = append(out, Detection{
			Type:       Vibration,
			StartMS:    ts[first],
			EndMS:      ts[last],
			Confidence: clamp01(avg / threshold),
			Metrics: map[string]float64{
				"global_std":       globalStd,
				"threshold":        threshold,
				"mean_rolling_std": avg,
				"max_rolling_std":  peak,
				"flagged_samples":  float64(len(run)),
			},
		})
	}

	var run []hit
	for _, h := range hits {
		if len(run) > 0 && h.idx-run[len(run)-1].idx > w {
			emit(run)
			run = nil
		}
		run = append(run, h)
	}
	emit(run)
	return out
}
