package signals

import (
	"math"
	"testing"
)

func seconds(n int, stepMS int64) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(i) * stepMS
	}
	return ts
}

func TestDetectCollision_Spike(t *testing.T) {
	cfg := CollisionConfig{ForceThreshold: 500, RiseTimeMS: 100}
	got := DetectCollision([]float64{0, -50, -600}, []int64{0, 50, 100}, cfg)

	if len(got) != 1 {
		t.Fatalf("expected 1 collision, got %d", len(got))
	}
	if got[0].Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", got[0].Confidence)
	}
	if got[0].Metrics["delta"] != 550 {
		t.Errorf("delta = %v, want 550", got[0].Metrics["delta"])
	}
	if got[0].StartMS != 50 || got[0].EndMS != 100 {
		t.Errorf("span = %d..%d", got[0].StartMS, got[0].EndMS)
	}
}

func TestDetectCollision_Boundaries(t *testing.T) {
	cfg := CollisionConfig{ForceThreshold: 500, RiseTimeMS: 100}
	tests := []struct {
		name   string
		values []float64
		ts     []int64
		want   int
	}{
		{"delta equal to threshold", []float64{0, 500}, []int64{0, 10}, 0},
		{"delta above, elapsed at bound", []float64{0, 501}, []int64{0, 100}, 1},
		{"delta above, elapsed past bound", []float64{0, 600}, []int64{0, 101}, 0},
		{"falling edge counts", []float64{600, 0}, []int64{0, 10}, 1},
		{"single sample", []float64{900}, []int64{0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectCollision(tt.values, tt.ts, cfg); len(got) != tt.want {
				t.Errorf("got %d detections, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetectCollision_StopsAtFirstHit(t *testing.T) {
	cfg := DefaultCollisionConfig()
	got := DetectCollision([]float64{0, 600, 0, 600}, []int64{0, 10, 20, 30}, cfg)
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	if got[0].StartMS != 0 {
		t.Errorf("expected first pair, got start %d", got[0].StartMS)
	}
}

func TestDetectOverload_SustainedLoad(t *testing.T) {
	ts := seconds(61, 100) // 0..6000ms
	values := make([]float64, len(ts))
	for i := range values {
		if i%2 == 0 {
			values[i] = -350
		} else {
			values[i] = -360
		}
	}

	got := DetectOverload(values, ts, OverloadConfig{Threshold: 300, MinDurationS: 5})
	if len(got) != 1 {
		t.Fatalf("expected 1 overload, got %d", len(got))
	}
	d := got[0]
	if d.DurationMS() < 5000 {
		t.Errorf("duration = %dms, want >= 5000", d.DurationMS())
	}
	if math.Abs(d.Metrics["peak"]-360) > 1e-9 {
		t.Errorf("peak = %v, want 360", d.Metrics["peak"])
	}
	if math.Abs(d.Confidence-0.68) > 1e-9 {
		t.Errorf("confidence = %v, want 0.68", d.Confidence)
	}
}

func TestDetectOverload_RunsAndShortBursts(t *testing.T) {
	ts := seconds(200, 100)
	values := make([]float64, len(ts))
	// run A: 0..6s, run B: 8..9s (too short), run C: 12..19.9s
	for i := range values {
		switch {
		case i <= 60:
			values[i] = 400
		case i >= 80 && i <= 90:
			values[i] = 400
		case i >= 120:
			values[i] = -310
		}
	}

	got := DetectOverload(values, ts, DefaultOverloadConfig())
	if len(got) != 2 {
		t.Fatalf("expected 2 overloads, got %d", len(got))
	}
	if got[0].StartMS != 0 || got[0].EndMS != 6000 {
		t.Errorf("first run = %d..%d", got[0].StartMS, got[0].EndMS)
	}
	if got[1].StartMS != 12000 || got[1].EndMS != 19900 {
		t.Errorf("trailing run = %d..%d", got[1].StartMS, got[1].EndMS)
	}
	if got[1].Metrics["peak"] != 310 {
		t.Errorf("peak should be reported as magnitude, got %v", got[1].Metrics["peak"])
	}
}

func TestDetectDrift_PercentMode(t *testing.T) {
	ts := seconds(1800, 1000)
	values := make([]float64, len(ts))
	for i := range values {
		if i < 1500 {
			values[i] = 100
		} else {
			values[i] = 150
		}
	}

	got := DetectDrift(values, ts, DefaultDriftConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 drift, got %d", len(got))
	}
	d := got[0]
	if d.Metrics["absolute_mode"] != 0 {
		t.Error("baseline ~108 should use percent mode")
	}
	if d.StartMS != 1_500_000 || d.EndMS != 1_800_000 {
		t.Errorf("span = %d..%d", d.StartMS, d.EndMS)
	}
	if d.Confidence != 1 {
		t.Errorf("confidence = %v, want capped 1", d.Confidence)
	}
}

func TestDetectDrift_AbsoluteModeNearZeroBaseline(t *testing.T) {
	ts := seconds(1800, 1000)
	values := make([]float64, len(ts))
	for i := range values {
		if i < 1500 {
			values[i] = -1.6
		} else {
			values[i] = 7
		}
	}

	got := DetectDrift(values, ts, DefaultDriftConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 drift, got %d", len(got))
	}
	d := got[0]
	if d.Metrics["absolute_mode"] != 1 {
		t.Fatal("near-zero baseline must switch to absolute mode")
	}
	if d.Confidence <= 0.5 || d.Confidence >= 1 {
		t.Errorf("confidence = %v, want in (0.5, 1)", d.Confidence)
	}
}

func TestDetectDrift_NeverUsesPercentOnNearZeroBaseline(t *testing.T) {
	// baseline 0.5: a 2.5 shift is 500% but well under the absolute threshold
	ts := seconds(1800, 1000)
	values := make([]float64, len(ts))
	for i := 1500; i < len(values); i++ {
		values[i] = 3
	}

	if got := DetectDrift(values, ts, DefaultDriftConfig()); len(got) != 0 {
		t.Fatalf("expected no drift in absolute mode, got %d (%v)", len(got), got[0].Metrics)
	}
}

func TestDetectDrift_MergesNearbyWindows(t *testing.T) {
	cfg := DriftConfig{
		PercentThreshold:  30,
		AbsoluteThreshold: 5,
		BaselineEpsilon:   1,
		WindowS:           60,
		MinDurationS:      120,
	}
	ts := seconds(1200, 1000) // 20 windows
	values := make([]float64, len(ts))
	high := map[int64]bool{5: true, 6: true, 8: true, 15: true, 16: true}
	for i := range values {
		if high[int64(i)/60] {
			values[i] = 200
		} else {
			values[i] = 100
		}
	}

	got := DetectDrift(values, ts, cfg)
	if len(got) != 2 {
		t.Fatalf("expected 2 drift runs, got %d", len(got))
	}
	if got[0].StartMS != 300_000 || got[0].EndMS != 540_000 {
		t.Errorf("merged run = %d..%d, want 300000..540000", got[0].StartMS, got[0].EndMS)
	}
	if got[0].Metrics["windows"] != 3 {
		t.Errorf("merged run flagged windows = %v", got[0].Metrics["windows"])
	}
}

func TestDetectVibration(t *testing.T) {
	ts := seconds(300, 10)
	values := make([]float64, len(ts))
	for i := range values {
		amp := 0.1
		if i >= 200 && i < 220 {
			amp = 10
		}
		if i%2 == 0 {
			values[i] = amp
		} else {
			values[i] = -amp
		}
	}

	got := DetectVibration(values, ts, DefaultVibrationConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 vibration, got %d", len(got))
	}
	d := got[0]
	if d.StartMS < 2000 || d.EndMS > 2300 {
		t.Errorf("span = %d..%d, want within burst neighbourhood", d.StartMS, d.EndMS)
	}
	if d.Confidence <= 0 || d.Confidence > 1 {
		t.Errorf("confidence out of range: %v", d.Confidence)
	}
}

func TestDetectVibration_SeparateBursts(t *testing.T) {
	ts := seconds(300, 10)
	values := make([]float64, len(ts))
	for i := range values {
		amp := 0.1
		if (i >= 50 && i < 60) || (i >= 200 && i < 210) {
			amp = 10
		}
		if i%2 == 0 {
			values[i] = amp
		} else {
			values[i] = -amp
		}
	}
	if got := DetectVibration(values, ts, DefaultVibrationConfig()); len(got) != 2 {
		t.Fatalf("expected 2 vibrations, got %d", len(got))
	}
}

func TestDetectVibration_QuietSeries(t *testing.T) {
	cfg := DefaultVibrationConfig()
	ts := seconds(100, 10)

	constant := make([]float64, len(ts))
	if got := DetectVibration(constant, ts, cfg); got != nil {
		t.Errorf("constant series flagged: %d", len(got))
	}

	calm := make([]float64, len(ts))
	for i := range calm {
		calm[i] = 0.1 * float64(1-2*(i%2))
	}
	if got := DetectVibration(calm, ts, cfg); len(got) != 0 {
		t.Errorf("steady oscillation flagged: %d", len(got))
	}

	if got := DetectVibration([]float64{1, 2}, []int64{0, 1}, cfg); got != nil {
		t.Error("series shorter than window must yield nothing")
	}
}

func TestCountInWindow(t *testing.T) {
	events := []Event{{AtMS: 100}, {AtMS: 500}, {AtMS: 900}, {AtMS: 1000}, {AtMS: 1500}}
	if got := CountInWindow(events, 1000, 500); got != 2 {
		t.Errorf("count = %d, want 2 (900, 1000)", got)
	}
	if got := CountInWindow(events, 1000, 10_000); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}
}

func TestCompareHalves(t *testing.T) {
	counts := []Event{{AtMS: 0}, {AtMS: 600}, {AtMS: 700}, {AtMS: 800}, {AtMS: 1000}}
	res, ok := CompareHalves(counts, false)
	if !ok {
		t.Fatal("expected a trend")
	}
	if res.FirstCount != 1 || res.SecondCount != 4 || res.Direction != Increasing {
		t.Errorf("count trend = %+v", res)
	}

	intense := []Event{
		{AtMS: 0, Intensity: 900, HasIntensity: true},
		{AtMS: 100, Intensity: 800, HasIntensity: true},
		{AtMS: 900, Intensity: 500, HasIntensity: true},
		{AtMS: 1000, Intensity: 400, HasIntensity: true},
		{AtMS: 950, Intensity: 450, HasIntensity: true},
	}
	res, _ = CompareHalves(intense, true)
	if !res.ByIntensity || res.Direction != Decreasing {
		t.Errorf("intensity trend = %+v", res)
	}

	// missing intensity falls back to counts
	intense[0].HasIntensity = false
	res, _ = CompareHalves(intense, true)
	if res.ByIntensity || res.Direction != Increasing {
		t.Errorf("fallback trend = %+v", res)
	}

	if _, ok := CompareHalves([]Event{{AtMS: 5}}, false); ok {
		t.Error("single event has no trend")
	}
}
