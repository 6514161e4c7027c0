package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/rules/condition"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

// Severity grades a state bracket.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the three known grades.
func (s Severity) Valid() bool {
	return s == SeverityNormal || s == SeverityWarning || s == SeverityCritical
}

// Elevated is true for warning and critical.
func (s Severity) Elevated() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Bracket maps an inclusive value range on one axis to a state.
type Bracket struct {
	Range    []float64 `yaml:"range"`
	State    string    `yaml:"state"`
	Label    string    `yaml:"label"`
	Severity Severity  `yaml:"severity"`
}

// Contains reports whether v lies in [min, max].
func (b Bracket) Contains(v float64) bool {
	return v >= b.Range[0] && v <= b.Range[1]
}

// StateRules lists brackets per axis in the order they are tried. Axis
// names are matched case-insensitively, so two names differing only by case
// are rejected.
type StateRules struct {
	Axes map[string][]Bracket `yaml:"axes"`
}

// AxisNames returns the configured axes sorted by name.
func (s StateRules) AxisNames() []string {
	names := make([]string, 0, len(s.Axes))
	for name := range s.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PatternThresholds configures the four detectors. Sections are pointers so
// a missing section is distinguishable from a zero one.
type PatternThresholds struct {
	Collision *signals.CollisionConfig `yaml:"collision"`
	Overload  *signals.OverloadConfig  `yaml:"overload"`
	Drift     *signals.DriftConfig     `yaml:"drift"`
	Vibration *signals.VibrationConfig `yaml:"vibration"`
}

// Boost raises a cause's confidence when its condition holds.
type Boost struct {
	condition.Condition `yaml:",inline"`
	Boost               float64 `yaml:"boost"`
}

// CauseRule is one candidate cause for a pattern.
type CauseRule struct {
	Cause          string  `yaml:"cause"`
	BaseConfidence float64 `yaml:"base_confidence"`
	Boosts         []Boost `yaml:"boosts"`
}

// Prediction rule kinds.
const (
	KindFrequency = "frequency"
	KindTrend     = "trend"
)

// PredictionRule forecasts an error from the pattern history.
type PredictionRule struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`

	// frequency
	WindowHours float64 `yaml:"window_hours"`
	MinCount    int     `yaml:"min_count"`

	// trend
	Direction      string `yaml:"direction"`
	IntensityField string `yaml:"intensity_field"`

	Predicts   string  `yaml:"predicts"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// InferenceRules holds the optional cause and prediction rules.
type InferenceRules struct {
	Causes      map[string][]CauseRule `yaml:"causes"`
	Predictions []PredictionRule       `yaml:"predictions"`
}

// Config bundles every rule document the engine needs.
type Config struct {
	States     StateRules
	Thresholds PatternThresholds
	Inference  InferenceRules
}

// Paths names the rule documents on disk. InferenceRules may be empty.
type Paths struct {
	StateRules        string
	PatternThresholds string
	InferenceRules    string
}

// LoadConfig reads and validates the rule documents. Any missing, empty or
// malformed required document is an error wrapping
// internalerr.ErrInvalidConfig.
func LoadConfig(p Paths) (Config, error) {
	var cfg Config

	if err := loadRequired(p.StateRules, "state rules", &cfg.States); err != nil {
		return Config{}, err
	}
	if err := loadRequired(p.PatternThresholds, "pattern thresholds", &cfg.Thresholds); err != nil {
		return Config{}, err
	}
	if p.InferenceRules != "" {
		data, err := os.ReadFile(p.InferenceRules)
		if err != nil {
			return Config{}, fmt.Errorf("load inference rules %s: %w: %w", p.InferenceRules, internalerr.ErrInvalidConfig, err)
		}
		if err := decodeStrict(data, &cfg.Inference); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse inference rules %s: %w: %w", p.InferenceRules, internalerr.ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig builds a Config from in-memory documents. inference may be nil.
func ParseConfig(states, thresholds, inference []byte) (Config, error) {
	var cfg Config
	if err := decodeRequired(states, "state rules", &cfg.States); err != nil {
		return Config{}, err
	}
	if err := decodeRequired(thresholds, "pattern thresholds", &cfg.Thresholds); err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(inference)) > 0 {
		if err := decodeStrict(inference, &cfg.Inference); err != nil {
			return Config{}, fmt.Errorf("parse inference rules: %w: %w", internalerr.ErrInvalidConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadRequired(path, what string, dst any) error {
	if path == "" {
		return fmt.Errorf("load %s: no path configured: %w", what, internalerr.ErrInvalidConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load %s %s: %w: %w", what, path, internalerr.ErrInvalidConfig, err)
	}
	if err := decodeRequired(data, what, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decodeRequired(data []byte, what string, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("parse %s: empty document: %w", what, internalerr.ErrInvalidConfig)
	}
	if err := decodeStrict(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w: %w", what, internalerr.ErrInvalidConfig, err)
	}
	return nil
}

// decodeStrict rejects unknown keys so a misspelt threshold fails loudly.
func decodeStrict(data []byte, dst any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(dst)
}

// Validate checks every document. It is called by LoadConfig and New.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.States.Axes) == 0 {
		add("state rules: no axes configured")
	}
	folded := make(map[string]string, len(c.States.Axes))
	for _, axis := range c.States.AxisNames() {
		key := strings.ToLower(axis)
		if prev, ok := folded[key]; ok {
			add("state rules: axes %s and %s differ only by case", prev, axis)
		}
		folded[key] = axis

		brackets := c.States.Axes[axis]
		if len(brackets) == 0 {
			add("state rules: axis %s has no brackets", axis)
		}
		for i, b := range brackets {
			switch {
			case len(b.Range) != 2:
				add("state rules: %s[%d]: range needs [min, max]", axis, i)
			case b.Range[0] > b.Range[1]:
				add("state rules: %s[%d]: min %v > max %v", axis, i, b.Range[0], b.Range[1])
			}
			if b.State == "" {
				add("state rules: %s[%d]: missing state", axis, i)
			}
			if !b.Severity.Valid() {
				add("state rules: %s[%d]: unknown severity %q", axis, i, b.Severity)
			}
		}
	}

	t := c.Thresholds
	if t.Collision == nil {
		add("pattern thresholds: missing collision")
	} else if t.Collision.ForceThreshold <= 0 || t.Collision.RiseTimeMS <= 0 {
		add("pattern thresholds: collision needs positive force_threshold and rise_time_ms")
	}
	if t.Overload == nil {
		add("pattern thresholds: missing overload")
	} else if t.Overload.Threshold <= 0 || t.Overload.MinDurationS < 0 {
		add("pattern thresholds: overload needs positive threshold and non-negative min_duration_s")
	}
	if t.Drift == nil {
		add("pattern thresholds: missing drift")
	} else if t.Drift.PercentThreshold <= 0 || t.Drift.AbsoluteThreshold <= 0 || t.Drift.BaselineEpsilon < 0 || t.Drift.WindowS <= 0 || t.Drift.MinDurationS < 0 {
		add("pattern thresholds: drift thresholds and window_s must be positive")
	}
	if t.Vibration == nil {
		add("pattern thresholds: missing vibration")
	} else if t.Vibration.WindowSize < 2 || t.Vibration.StdMultiplier <= 0 {
		add("pattern thresholds: vibration needs window_size >= 2 and positive std_multiplier")
	}

	ev := condition.NewEvaluator()
	for pattern, causes := range c.Inference.Causes {
		for i, cr := range causes {
			if cr.Cause == "" {
				add("inference rules: %s[%d]: missing cause", pattern, i)
			}
			if cr.BaseConfidence < 0 || cr.BaseConfidence > 1 {
				add("inference rules: %s[%d]: base_confidence %v outside [0,1]", pattern, i, cr.BaseConfidence)
			}
			for _, b := range cr.Boosts {
				if err := ev.Validate(b.Condition); err != nil {
					add("inference rules: %s/%s: %v", pattern, cr.Cause, err)
				}
			}
		}
	}
	for i, pr := range c.Inference.Predictions {
		name := pr.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if pr.Pattern == "" || pr.Predicts == "" {
			add("prediction %s: pattern and predicts are required", name)
		}
		if pr.Confidence < 0 || pr.Confidence > 1 {
			add("prediction %s: confidence %v outside [0,1]", name, pr.Confidence)
		}
		switch pr.Kind {
		case KindFrequency:
			if pr.WindowHours <= 0 || pr.MinCount <= 0 {
				add("prediction %s: frequency needs positive window_hours and min_count", name)
			}
		case KindTrend:
			if pr.Direction != signals.Increasing && pr.Direction != signals.Decreasing {
				add("prediction %s: trend direction must be increasing or decreasing", name)
			}
		default:
			add("prediction %s: unknown kind %q", name, pr.Kind)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
