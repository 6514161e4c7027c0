package traverse

import (
	"math"
	"testing"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

func rel(src string, r ontology.Relation, dst string, conf float64) ontology.Relationship {
	return ontology.Relationship{Source: src, Relation: r, Target: dst, Properties: map[string]any{"confidence": conf}}
}

// testGraph:
//
//	PAT_COLLISION -indicates(0.8)-> CAUSE_OBSTACLE -resolved_by(1.0)-> RES_CLEAR
//	PAT_COLLISION -indicates(0.5)-> CAUSE_TCP     -resolved_by(0.9)-> RES_TCP
//	PAT_COLLISION -triggers(0.9)->  C153
//	CAUSE_OBSTACLE -related_to(0.7)-> CAUSE_TCP   (creates a second route)
//	Fz -measures-> PAT_COLLISION (incoming edge for PAT_COLLISION)
//	ISOLATED has no edges
func testGraph(t *testing.T) *Traverser {
	t.Helper()
	s := &ontology.Schema{
		Entities: []ontology.Entity{
			{ID: "Fz", Type: ontology.TypeMeasurementAxis, Name: "Force Z"},
			{ID: "PAT_COLLISION", Type: ontology.TypePattern, Name: "Collision"},
			{ID: "CAUSE_OBSTACLE", Type: ontology.TypeCause, Name: "Obstacle"},
			{ID: "CAUSE_TCP", Type: ontology.TypeCause, Name: "TCP offset"},
			{ID: "RES_CLEAR", Type: ontology.TypeResolution, Name: "Clear path"},
			{ID: "RES_TCP", Type: ontology.TypeResolution, Name: "Recalibrate TCP"},
			{ID: "C153", Type: ontology.TypeErrorCode, Name: "Safety stop"},
			{ID: "ISOLATED", Type: ontology.TypeDocument, Name: "Manual"},
		},
		Relationships: []ontology.Relationship{
			rel("PAT_COLLISION", ontology.RelIndicates, "CAUSE_OBSTACLE", 0.8),
			rel("PAT_COLLISION", ontology.RelIndicates, "CAUSE_TCP", 0.5),
			rel("CAUSE_OBSTACLE", ontology.RelResolvedBy, "RES_CLEAR", 1.0),
			rel("CAUSE_TCP", ontology.RelResolvedBy, "RES_TCP", 0.9),
			rel("PAT_COLLISION", ontology.RelTriggers, "C153", 0.9),
			rel("CAUSE_OBSTACLE", ontology.RelRelatedTo, "CAUSE_TCP", 0.7),
			rel("Fz", ontology.RelMeasures, "PAT_COLLISION", 1.0),
		},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return New(ontology.NewIndex(s))
}

func TestBFSNoRevisit(t *testing.T) {
	tr := testGraph(t)

	filters := [][]ontology.Relation{
		nil,
		{ontology.RelIndicates},
		{ontology.RelIndicates, ontology.RelRelatedTo, ontology.RelResolvedBy},
	}
	dirs := []ontology.Direction{ontology.Outgoing, ontology.Incoming, ontology.Both}

	for _, start := range []string{"PAT_COLLISION", "CAUSE_TCP", "Fz"} {
		for _, f := range filters {
			for _, d := range dirs {
				res := tr.BFS(start, Options{MaxDepth: 5, Relations: f, Direction: d})
				seen := make(map[string]int)
				for _, id := range res.Order {
					seen[id]++
				}
				for id, n := range seen {
					if n > 1 {
						t.Errorf("start=%s filter=%v dir=%s: %s visited %d times", start, f, d, id, n)
					}
				}
				if len(res.Order) != len(res.Visited) {
					t.Errorf("order/visited mismatch: %d vs %d", len(res.Order), len(res.Visited))
				}
			}
		}
	}
}

func TestBFSDepthBoundStillRecordsPath(t *testing.T) {
	tr := testGraph(t)
	res := tr.BFS("PAT_COLLISION", Options{MaxDepth: 1, Direction: ontology.Outgoing})

	if _, ok := res.Visited["RES_CLEAR"]; ok {
		t.Error("RES_CLEAR is two hops away and must not be visited at depth 1")
	}
	if len(res.Paths) != 3 {
		t.Fatalf("expected 3 depth-1 paths, got %d", len(res.Paths))
	}
	for _, p := range res.Paths {
		if p.Edges() != 1 {
			t.Errorf("path %s has %d edges, want 1", p, p.Edges())
		}
	}
}

func TestBFSLeafAndUnknownStart(t *testing.T) {
	tr := testGraph(t)

	res := tr.BFS("ISOLATED", Options{MaxDepth: 3})
	if len(res.Paths) != 1 || res.Paths[0].Edges() != 0 {
		t.Errorf("isolated node should yield one zero-edge path, got %+v", res.Paths)
	}

	res = tr.BFS("missing", Options{MaxDepth: 3})
	if len(res.Visited) != 0 || len(res.Paths) != 0 {
		t.Error("unknown start should yield empty result")
	}
}

func TestPathConfidenceMonotone(t *testing.T) {
	p := NewPath(Step{EntityID: "A"})
	confs := []float64{0.9, 1.0, 0.5, 0.0, 0.7}
	for i, c := range confs {
		before := p.TotalConfidence
		p = p.Extend(Step{EntityID: string(rune('B' + i))}, c)
		if math.Abs(p.TotalConfidence-before*c) > 1e-12 {
			t.Fatalf("step %d: total = %v, want %v", i, p.TotalConfidence, before*c)
		}
		if p.TotalConfidence > before {
			t.Fatalf("step %d: confidence increased", i)
		}
	}
}

func TestPathExtendDoesNotAlias(t *testing.T) {
	base := NewPath(Step{EntityID: "A"}).Extend(Step{EntityID: "B"}, 1)
	left := base.Extend(Step{EntityID: "L"}, 1)
	right := base.Extend(Step{EntityID: "R"}, 1)
	if left.Last().EntityID != "L" || right.Last().EntityID != "R" {
		t.Fatalf("sibling paths share storage: %s / %s", left.Key(), right.Key())
	}
}

func TestFindPath(t *testing.T) {
	tr := testGraph(t)

	p, ok := tr.FindPath("PAT_COLLISION", "PAT_COLLISION", 3)
	if !ok || len(p.Steps) != 1 || p.TotalConfidence != 1.0 {
		t.Fatalf("self path = %+v, %v", p, ok)
	}

	p, ok = tr.FindPath("Fz", "RES_TCP", 5)
	if !ok {
		t.Fatal("expected path Fz -> RES_TCP")
	}
	if p.Edges() != 3 {
		t.Errorf("shortest path edges = %d, want 3 (%s)", p.Edges(), p)
	}

	// reachable only by walking an edge backwards
	p, ok = tr.FindPath("C153", "Fz", 4)
	if !ok || p.Edges() != 2 {
		t.Fatalf("reverse path = %s, %v", p, ok)
	}
	if p.Steps[1].Direction != ontology.Incoming {
		t.Errorf("expected incoming step, got %s", p.Steps[1].Direction)
	}

	if _, ok := tr.FindPath("Fz", "RES_TCP", 2); ok {
		t.Error("path longer than maxDepth must not be found")
	}
	if _, ok := tr.FindPath("Fz", "ISOLATED", 10); ok {
		t.Error("isolated node is unreachable")
	}
}

func TestFollowChain(t *testing.T) {
	tr := testGraph(t)

	paths := tr.FollowChain("PAT_COLLISION", []ontology.Relation{ontology.RelIndicates, ontology.RelResolvedBy}, ontology.Outgoing)
	if len(paths) != 2 {
		t.Fatalf("expected 2 fan-out paths, got %d", len(paths))
	}
	want := map[string]float64{"RES_CLEAR": 0.8, "RES_TCP": 0.45}
	for _, p := range paths {
		w, ok := want[p.Last().EntityID]
		if !ok {
			t.Errorf("unexpected chain end %s", p.Last().EntityID)
			continue
		}
		if math.Abs(p.TotalConfidence-w) > 1e-9 {
			t.Errorf("%s confidence = %v, want %v", p.Last().EntityID, p.TotalConfidence, w)
		}
	}

	// triggers then resolved_by never completes: no partial results
	if got := tr.FollowChain("PAT_COLLISION", []ontology.Relation{ontology.RelTriggers, ontology.RelResolvedBy}, ontology.Outgoing); got != nil {
		t.Errorf("incomplete chain returned %d paths", len(got))
	}
}

func TestEntityContext(t *testing.T) {
	tr := testGraph(t)
	ctx := tr.EntityContext("PAT_COLLISION", 1)

	if got := ctx.Outgoing[ontology.RelIndicates]; len(got) != 2 {
		t.Errorf("indicates targets = %v", got)
	}
	if got := ctx.Incoming[ontology.RelMeasures]; len(got) != 1 || got[0] != "Fz" {
		t.Errorf("measures sources = %v", got)
	}
}

func TestReasoningPath(t *testing.T) {
	tr := testGraph(t)
	rp := tr.ReasoningPath("PAT_COLLISION")

	if len(rp.Causes) != 2 || len(rp.Resolutions) != 2 || len(rp.Errors) != 1 {
		t.Fatalf("causes/resolutions/errors = %d/%d/%d", len(rp.Causes), len(rp.Resolutions), len(rp.Errors))
	}
	if rp.Errors[0].Last().EntityID != "C153" || rp.Errors[0].TotalConfidence != 0.9 {
		t.Errorf("error path = %s (%v)", rp.Errors[0], rp.Errors[0].TotalConfidence)
	}
	if got := rp.Errors[0].String(); got != "Collision -[triggers]-> Safety stop" {
		t.Errorf("String() = %q", got)
	}
	if len(rp.All()) != 5 {
		t.Errorf("All() = %d paths", len(rp.All()))
	}
}
