package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

// defaultEntityConfidence is used for --entity specs without @confidence.
const defaultEntityConfidence = 0.9

// parseEntity reads "ID:Type[=value][@confidence]", e.g. "Fz:MeasurementAxis=-700@0.8".
func parseEntity(arg string) (reasoning.Entity, error) {
	e := reasoning.Entity{Confidence: defaultEntityConfidence}

	if i := strings.LastIndex(arg, "@"); i >= 0 {
		c, err := strconv.ParseFloat(arg[i+1:], 64)
		if err != nil || c < 0 || c > 1 {
			return e, fmt.Errorf("entity %q: confidence must be a number in [0,1]", arg)
		}
		e.Confidence = c
		arg = arg[:i]
	}

	var value string
	hasValue := false
	if i := strings.Index(arg, "="); i >= 0 {
		value, hasValue = arg[i+1:], true
		arg = arg[:i]
	}

	id, typ, ok := strings.Cut(arg, ":")
	if !ok || id == "" || typ == "" {
		return e, fmt.Errorf("entity %q: want ID:Type[=value][@confidence]", arg)
	}
	e.ID = id
	e.Text = id
	e.Type = ontology.EntityType(typ)

	if hasValue {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return e, fmt.Errorf("entity %q: value %q is not a number", id, value)
		}
		e.Properties = map[string]any{"value": v}
	}
	return e, nil
}

// parseFacts turns key=value flags into typed facts: numbers and booleans
// are converted, everything else stays a string.
func parseFacts(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	facts := make(map[string]any, len(raw))
	for k, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			facts[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			facts[k] = b
		} else {
			facts[k] = v
		}
	}
	return facts
}

// readJSON decodes path, or stdin when path is "-".
func readJSON(path string, dst any) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readSeries(path string) ([]signals.Series, error) {
	var series []signals.Series
	if err := readJSON(path, &series); err != nil {
		return nil, err
	}
	for i, s := range series {
		if s.Axis == "" {
			return nil, fmt.Errorf("series %d has no axis", i)
		}
		if len(s.Values) != len(s.TimestampsMS) {
			return nil, fmt.Errorf("series %s: %d values but %d timestamps", s.Axis, len(s.Values), len(s.TimestampsMS))
		}
	}
	return series, nil
}
