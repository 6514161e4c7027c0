package signals

import "math"

// CollisionConfidence is the fixed confidence of a collision detection. A
// force step this sharp inside the rise-time bound has no plausible
// alternative explanation worth grading.
const CollisionConfidence = 0.95

// CollisionConfig controls collision detection thresholds.
type CollisionConfig struct {
	// ForceThreshold is the absolute change between consecutive samples
	// that counts as an impact. The comparison is strict.
	ForceThreshold float64 `yaml:"force_threshold"`

	// RiseTimeMS is the longest time the change may take. The bound is
	// inclusive.
	RiseTimeMS int64 `yaml:"rise_time_ms"`
}

// DefaultCollisionConfig returns thresholds for a 6-axis wrist F/T sensor.
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		ForceThreshold: 500,
		RiseTimeMS:     100,
	}
}

// DetectCollision scans consecutive sample pairs and reports the first pair
// whose |Δvalue| exceeds the force threshold within the rise time. The scan
// stops at the first hit, so the result holds at most one detection.
func DetectCollision(values []float64, ts []int64, cfg CollisionConfig) []Detection {
	n := pairedLen(values, ts)
	for i := 1; i < n; i++ {
		delta := math.Abs(values[i] - values[i-1])
		elapsed := ts[i] - ts[i-1]
		if delta > cfg.ForceThreshold && elapsed <= cfg.RiseTimeMS {
			return []Detection{{
				Type:       Collision,
				StartMS:    ts[i-1],
				EndMS:      ts[i],
				Confidence: CollisionConfidence,
				Metrics: map[string]float64{
					"delta":        delta,
					"rise_time_ms": float64(elapsed),
					"peak":         values[i],
					"threshold":    cfg.ForceThreshold,
				},
			}}
		}
	}
	return nil
}
