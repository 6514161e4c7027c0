package signals

import "math"

// DriftConfig controls slow baseline-drift detection.
type DriftConfig struct {
	// PercentThreshold is the deviation, in percent of the baseline, that
	// flags a window. Default: 10
	PercentThreshold float64 `yaml:"percent_threshold"`

	// AbsoluteThreshold is used instead when the baseline is near zero.
	// Default: 5
	AbsoluteThreshold float64 `yaml:"absolute_threshold"`

	// BaselineEpsilon is the |baseline| below which percentages are
	// meaningless. Default: 1
	BaselineEpsilon float64 `yaml:"baseline_epsilon"`

	// WindowS is the resampling window width in seconds. Default: 60
	WindowS float64 `yaml:"window_s"`

	// MinDurationS is the shortest merged run that is reported. Default: 300
	MinDurationS float64 `yaml:"min_duration_s"`
}

// DefaultDriftConfig returns sensible defaults for force/torque channels.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		PercentThreshold:  10,
		AbsoluteThreshold: 5,
		BaselineEpsilon:   1,
		WindowS:           60,
		MinDurationS:      300,
	}
}

type driftWindow struct {
	index   int64
	startMS int64
	endMS   int64
	dev     float64
}

// DetectDrift compares the mean of fixed time windows against the global
// mean of the series. A baseline with |mean| < BaselineEpsilon switches the
// comparison to absolute deviation; otherwise deviation is a percentage of
// the baseline. Flagged windows at most two window widths apart are merged
// and each merged run lasting MinDurationS is reported.
func DetectDrift(values []float64, ts []int64, cfg DriftConfig) []Detection {
	n := pairedLen(values, ts)
	winMS := int64(cfg.WindowS * 1000)
	if n == 0 || winMS <= 0 {
		return nil
	}

	baseline := mean(values[:n])
	absolute := math.Abs(baseline) < cfg.BaselineEpsilon
	threshold := cfg.PercentThreshold
	if absolute {
		threshold = cfg.AbsoluteThreshold
	}
	if threshold <= 0 {
		return nil
	}

	deviation := func(m float64) float64 {
		if absolute {
			return math.Abs(m - baseline)
		}
		return math.Abs(m-baseline) / math.Abs(baseline) * 100
	}

	// resample: timestamps are ascending so windows arrive in order
	var flagged []driftWindow
	t0 := ts[0]
	for i := 0; i < n; {
		w := (ts[i] - t0) / winMS
		j := i
		var sum float64
		for j < n && (ts[j]-t0)/winMS == w {
			sum += values[j]
			j++
		}
		dev := deviation(sum / float64(j-i))
		if dev > threshold {
			flagged = append(flagged, driftWindow{
				index:   w,
				startMS: t0 + w*winMS,
				endMS:   t0 + (w+1)*winMS,
				dev:     dev,
			})
		}
		i = j
	}

	var out []Detection
	emit := func(run []driftWindow) {
		if len(run) == 0 {
			return
		}
		start, end := run[0].startMS, run[len(run)-1].endMS
		if float64(end-start) < cfg.MinDurationS*1000 {
			return
		}
		var maxDev, sumDev float64
		for _, w := range run {
			maxDev = math.Max(maxDev, w.dev)
			sumDev += w.dev
		}
		mode := 0.0
		if absolute {
			mode = 1
		}
		out = append(out, Detection{
			Type:       Drift,
			StartMS:    start,
			EndMS:      end,
			Confidence: clamp01(0.5 + (maxDev-threshold)/threshold),
			Metrics: map[string]float64{
				"baseline":       baseline,
				"max_deviation":  maxDev,
				"mean_deviation": sumDev / float64(len(run)),
				"threshold":      threshold,
				"absolute_mode":  mode,
				"windows":        float64(len(run)),
				"duration_s":     float64(end-start) / 1000,
			},
		})
	}

	var run []driftWindow
	for _, w := range flagged {
		if len(run) > 0 && w.index-run[len(run)-1].index > 2 {
			emit(run)
			run = nil
		}
		run = append(run, w)
	}
	emit(run)
	return out
}
