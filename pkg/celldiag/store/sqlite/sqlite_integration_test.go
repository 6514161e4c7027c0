package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

func openTemp(t *testing.T) (store.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	st, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return st, dbPath
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, _ := openTemp(t)
	defer st.Close()

	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	in := store.DetectedPattern{
		EventID:       "01HQ0000000000000000000001",
		PatternID:     "PAT_COLLISION",
		Type:          signals.Collision,
		Axis:          "Fz",
		Timestamp:     at,
		Duration:      50 * time.Millisecond,
		Confidence:    0.95,
		Metrics:       map[string]float64{"delta": 550, "peak": -600},
		RelatedErrors: []string{"C153"},
		Context:       map[string]any{"robot": "R1", "payload_kg": 4.5},
	}
	if err := st.AppendPatterns(ctx, in); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}

	got, err := st.ListPatterns(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	p := got[0]
	if !p.Timestamp.Equal(at) || p.Duration != 50*time.Millisecond {
		t.Errorf("time fields = %v / %v", p.Timestamp, p.Duration)
	}
	if p.Type != signals.Collision || p.Axis != "Fz" || p.Confidence != 0.95 {
		t.Errorf("scalar fields = %+v", p)
	}
	if p.Metrics["delta"] != 550 || len(p.RelatedErrors) != 1 || p.RelatedErrors[0] != "C153" {
		t.Errorf("json fields = %v / %v", p.Metrics, p.RelatedErrors)
	}
	if p.Context["robot"] != "R1" || p.Context["payload_kg"] != 4.5 {
		t.Errorf("context = %v", p.Context)
	}
}

func TestSQLiteFiltersAndLimit(t *testing.T) {
	ctx := context.Background()
	st, _ := openTemp(t)
	defer st.Close()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var batch []store.DetectedPattern
	for i, typ := range []signals.PatternType{signals.Collision, signals.Overload, signals.Collision, signals.Drift, signals.Collision} {
		batch = append(batch, store.DetectedPattern{
			EventID:    string(rune('a' + i)),
			PatternID:  "PAT_" + string(typ),
			Type:       typ,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Confidence: 0.8,
		})
	}
	if err := st.AppendPatterns(ctx, batch...); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}

	tests := []struct {
		name string
		f    store.Filter
		want []string
	}{
		{"all", store.Filter{}, []string{"a", "b", "c", "d", "e"}},
		{"by type", store.Filter{Type: signals.Collision}, []string{"a", "c", "e"}},
		{"by pattern id", store.Filter{PatternID: "PAT_drift"}, []string{"d"}},
		{"time range", store.Filter{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)}, []string{"b", "c"}},
		{"limit keeps most recent", store.Filter{Type: signals.Collision, Limit: 2}, []string{"c", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.ListPatterns(ctx, tt.f)
			if err != nil {
				t.Fatalf("ListPatterns: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].EventID != id {
					t.Errorf("record %d = %s, want %s", i, got[i].EventID, id)
				}
			}
		})
	}
}

func TestSQLiteDuplicateEventRollsBack(t *testing.T) {
	ctx := context.Background()
	st, _ := openTemp(t)
	defer st.Close()

	p := store.DetectedPattern{EventID: "dup", PatternID: "PAT_DRIFT", Type: signals.Drift, Timestamp: time.Now()}
	if err := st.AppendPatterns(ctx, p); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}

	other := p
	other.EventID = "fresh"
	err := st.AppendPatterns(ctx, other, p)
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	got, _ := st.ListPatterns(ctx, store.Filter{})
	if len(got) != 1 {
		t.Errorf("transaction should roll back, have %d records", len(got))
	}
}

func TestSQLiteReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	st, path := openTemp(t)
	p := store.DetectedPattern{EventID: "e1", PatternID: "PAT_VIBRATION", Type: signals.Vibration, Timestamp: time.Now()}
	if err := st.AppendPatterns(ctx, p); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}
	st.Close()

	st2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	got, err := st2.ListPatterns(ctx, store.Filter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("after reopen: %d records, err %v", len(got), err)
	}
}
