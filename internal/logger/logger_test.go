package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "celldiag.log")
	log, err := New("info", "json", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("dropped")
	log.Info("gate verdict", zap.String("reason", "no_entities"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug, got %d: %s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["level"] != "info" || rec["message"] != "gate verdict" || rec["reason"] != "no_entities" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json", "stdout"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml", "stdout"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := New("info", "json", filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("expected error for unopenable file")
	}
}
