package store

import (
	"context"
	"sort"
	"time"

	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

// Store persists the append-only history of detected patterns.
type Store interface {
	Close() error

	// AppendPatterns adds records to the log. Event ids must be unique.
	AppendPatterns(ctx context.Context, patterns ...DetectedPattern) error

	// ListPatterns returns matching records ordered by timestamp.
	ListPatterns(ctx context.Context, f Filter) ([]DetectedPattern, error)
}

// DetectedPattern is one detector hit, enriched with the errors it is known
// to trigger and the context it was observed in.
type DetectedPattern struct {
	EventID       string              `json:"event_id"`
	PatternID     string              `json:"pattern_id"`
	Type          signals.PatternType `json:"type"`
	Axis          string              `json:"axis,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	Duration      time.Duration       `json:"duration"`
	Confidence    float64             `json:"confidence"`
	Metrics       map[string]float64  `json:"metrics,omitempty"`
	RelatedErrors []string            `json:"related_errors,omitempty"`
	Context       map[string]any      `json:"context,omitempty"`
}

// Filter selects history records. Zero fields match everything.
type Filter struct {
	PatternID string
	Type      signals.PatternType
	Since     time.Time // inclusive
	Until     time.Time // exclusive
	Limit     int       // most recent N when > 0
}

// Match reports whether p passes the filter, ignoring Limit.
func (f Filter) Match(p DetectedPattern) bool {
	if f.PatternID != "" && p.PatternID != f.PatternID {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && p.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !p.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Apply filters, sorts by timestamp and trims to Limit.
func (f Filter) Apply(in []DetectedPattern) []DetectedPattern {
	out := make([]DetectedPattern, 0, len(in))
	for _, p := range in {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Clone returns a deep copy so callers can never mutate a stored record.
func (p DetectedPattern) Clone() DetectedPattern {
	c := p
	if p.Metrics != nil {
		c.Metrics = make(map[string]float64, len(p.Metrics))
		for k, v := range p.Metrics {
			c.Metrics[k] = v
		}
	}
	if p.RelatedErrors != nil {
		c.RelatedErrors = append([]string(nil), p.RelatedErrors...)
	}
	if p.Context != nil {
		c.Context = make(map[string]any, len(p.Context))
		for k, v := range p.Context {
			c.Context[k] = v
		}
	}
	return c
}

// Events converts records to a signals timeline. When intensityField is
// set, the matching metric becomes the event intensity.
func Events(ps []DetectedPattern, intensityField string) []signals.Event {
	out := make([]signals.Event, 0, len(ps))
	for _, p := range ps {
		e := signals.Event{AtMS: p.Timestamp.UnixMilli()}
		if intensityField != "" {
			if v, ok := p.Metrics[intensityField]; ok {
				e.Intensity = v
				e.HasIntensity = true
			}
		}
		out = append(out, e)
	}
	return out
}
