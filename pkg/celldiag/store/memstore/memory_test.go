package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func pattern(id string, typ signals.PatternType, at time.Duration) store.DetectedPattern {
	return store.DetectedPattern{
		EventID:    id,
		PatternID:  "PAT_" + string(typ),
		Type:       typ,
		Timestamp:  t0.Add(at),
		Confidence: 0.9,
		Metrics:    map[string]float64{"peak": 600},
	}
}

func TestAppendAndListOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AppendPatterns(ctx,
		pattern("e2", signals.Overload, 2*time.Hour),
		pattern("e1", signals.Collision, time.Hour),
	); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}
	if err := s.AppendPatterns(ctx, pattern("e3", signals.Collision, 3*time.Hour)); err != nil {
		t.Fatalf("AppendPatterns: %v", err)
	}

	all, err := s.ListPatterns(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(all) != 3 || all[0].EventID != "e1" || all[2].EventID != "e3" {
		t.Fatalf("unexpected order: %+v", all)
	}

	coll, _ := s.ListPatterns(ctx, store.Filter{Type: signals.Collision})
	if len(coll) != 2 {
		t.Errorf("collision filter returned %d", len(coll))
	}

	window, _ := s.ListPatterns(ctx, store.Filter{Since: t0.Add(2 * time.Hour), Until: t0.Add(3 * time.Hour)})
	if len(window) != 1 || window[0].EventID != "e2" {
		t.Errorf("time window returned %+v", window)
	}

	last, _ := s.ListPatterns(ctx, store.Filter{Limit: 1})
	if len(last) != 1 || last[0].EventID != "e3" {
		t.Errorf("limit should keep the most recent, got %+v", last)
	}
}

func TestAppendRejectsDuplicatesAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AppendPatterns(ctx, pattern("e1", signals.Collision, 0))

	err := s.AppendPatterns(ctx, pattern("e2", signals.Drift, time.Minute), pattern("e1", signals.Drift, time.Minute))
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	all, _ := s.ListPatterns(ctx, store.Filter{})
	if len(all) != 1 {
		t.Errorf("failed batch must not be partially stored, have %d", len(all))
	}

	if err := s.AppendPatterns(ctx, store.DetectedPattern{PatternID: "PAT_DRIFT"}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty event id, got %v", err)
	}
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AppendPatterns(ctx, pattern("e1", signals.Collision, 0))

	got, _ := s.ListPatterns(ctx, store.Filter{})
	got[0].Metrics["peak"] = -1

	again, _ := s.ListPatterns(ctx, store.Filter{})
	if again[0].Metrics["peak"] != 600 {
		t.Error("caller mutation leaked into the store")
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()
	if _, err := s.ListPatterns(context.Background(), store.Filter{}); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
