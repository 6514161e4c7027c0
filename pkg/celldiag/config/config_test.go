package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/celldiag/pkg/celldiag/gate"
	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schema.Source != SourceFile || cfg.Schema.Path != "./config/schema.yaml" {
		t.Errorf("schema = %+v", cfg.Schema)
	}
	if cfg.Gate.Final != 0.5 || len(cfg.Gate.HighValueTypes) != 3 {
		t.Errorf("gate = %+v", cfg.Gate)
	}
	if cfg.Reasoning != reasoning.DefaultConfig() {
		t.Errorf("reasoning = %+v, want defaults", cfg.Reasoning)
	}
	if cfg.Logging.Level != "info" || cfg.Metrics.Addr != ":9464" {
		t.Errorf("logging = %+v metrics = %+v", cfg.Logging, cfg.Metrics)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "celldiag.yaml", `
schema:
  source: neo4j
neo4j:
  uri: bolt://graph:7687
  database: cell
history:
  sqlite_path: /var/lib/celldiag/history.db
gate:
  final: 0.65
  high_value_types: [ErrorCode]
reasoning:
  maintenance_window: 72h
  attention_count: 3
logging:
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schema.Source != SourceNeo4j || cfg.Neo4j.URI != "bolt://graph:7687" || cfg.Neo4j.Database != "cell" {
		t.Errorf("neo4j = %+v", cfg.Neo4j)
	}
	if cfg.Neo4j.Username != "neo4j" {
		t.Errorf("username default lost: %q", cfg.Neo4j.Username)
	}
	if cfg.History.SQLitePath != "/var/lib/celldiag/history.db" {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Gate.Final != 0.65 || cfg.Gate.Entity != 0.5 {
		t.Errorf("gate = %+v", cfg.Gate)
	}
	if len(cfg.Gate.HighValueTypes) != 1 || cfg.Gate.HighValueTypes[0] != ontology.TypeErrorCode {
		t.Errorf("high value types = %v", cfg.Gate.HighValueTypes)
	}
	if cfg.Reasoning.MaintenanceWindow != 72*time.Hour || cfg.Reasoning.AttentionCount != 3 {
		t.Errorf("reasoning = %+v", cfg.Reasoning)
	}
	if cfg.Reasoning.MagnitudeBound != 300 {
		t.Errorf("magnitude bound default lost: %v", cfg.Reasoning.MagnitudeBound)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v", cfg.Logging)
	}

	g := gate.New(cfg.Gate)
	if g.Thresholds().Final != 0.65 {
		t.Errorf("gate did not take configured floor")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "celldiag.yaml", "neo4j:\n  password: from-file\n")
	t.Setenv("CELLDIAG_NEO4J_PASSWORD", "from-env")
	t.Setenv("CELLDIAG_GATE_FINAL", "0.7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Neo4j.Password != "from-env" {
		t.Errorf("password = %q", cfg.Neo4j.Password)
	}
	if cfg.Gate.Final != 0.7 {
		t.Errorf("final = %v", cfg.Gate.Final)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing file")
	}

	tests := []struct {
		name    string
		content string
	}{
		{"unknown source", "schema:\n  source: redis\n"},
		{"file source without path", "schema:\n  path: \"\"\n"},
		{"no state rules", "rules:\n  state_rules: \"\"\n"},
		{"zero path depth", "reasoning:\n  path_depth: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.yaml", tt.content)
			_, err := Load(path)
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
