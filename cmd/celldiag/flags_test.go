package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

func TestParseEntity(t *testing.T) {
	tests := []struct {
		arg       string
		id        string
		typ       ontology.EntityType
		value     float64
		hasValue  bool
		confident float64
	}{
		{"Fz:MeasurementAxis=-700", "Fz", ontology.TypeMeasurementAxis, -700, true, defaultEntityConfidence},
		{"C153:ErrorCode@0.7", "C153", ontology.TypeErrorCode, 0, false, 0.7},
		{"Tz:MeasurementAxis=12.5@1", "Tz", ontology.TypeMeasurementAxis, 12.5, true, 1},
		{"PAT_DRIFT:Pattern", "PAT_DRIFT", ontology.TypePattern, 0, false, defaultEntityConfidence},
	}
	for _, tt := range tests {
		e, err := parseEntity(tt.arg)
		if err != nil {
			t.Fatalf("parseEntity(%q): %v", tt.arg, err)
		}
		if e.ID != tt.id || e.Type != tt.typ || e.Confidence != tt.confident {
			t.Errorf("parseEntity(%q) = %+v", tt.arg, e)
		}
		v, ok := e.Value()
		if ok != tt.hasValue || v != tt.value {
			t.Errorf("parseEntity(%q) value = %v,%v", tt.arg, v, ok)
		}
	}
}

func TestParseEntityErrors(t *testing.T) {
	for _, arg := range []string{"Fz", ":Pattern", "Fz:MeasurementAxis=high", "Fz:MeasurementAxis@2", "Fz:Pattern@x"} {
		if _, err := parseEntity(arg); err == nil {
			t.Errorf("parseEntity(%q) should fail", arg)
		}
	}
}

func TestParseFacts(t *testing.T) {
	facts := parseFacts(map[string]string{"payload_kg": "12", "recent_tool_change": "true", "robot": "R1"})
	if facts["payload_kg"] != 12.0 {
		t.Errorf("payload_kg = %v", facts["payload_kg"])
	}
	if facts["recent_tool_change"] != true {
		t.Errorf("recent_tool_change = %v", facts["recent_tool_change"])
	}
	if facts["robot"] != "R1" {
		t.Errorf("robot = %v", facts["robot"])
	}
	if parseFacts(nil) != nil {
		t.Error("expected nil facts for no flags")
	}
}

func TestReadSeries(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(`[{"axis":"Fz","values":[0,-50,-600],"timestamps_ms":[0,50,100]}]`), 0o644)
	series, err := readSeries(good)
	if err != nil {
		t.Fatalf("readSeries: %v", err)
	}
	if len(series) != 1 || series[0].Len() != 3 {
		t.Errorf("series = %+v", series)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`[{"axis":"Fz","values":[0,1],"timestamps_ms":[0]}]`), 0o644)
	if _, err := readSeries(bad); err == nil {
		t.Error("expected error for mismatched lengths")
	}

	if _, err := readSeries(filepath.Join(dir, "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
