package reasoning

import (
	"context"
	"fmt"
	"math"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
	"github.com/cognicore/celldiag/pkg/celldiag/traverse"
)

// knownIDs returns the graph ids of the query entities, in order, once each.
func (r *Reasoner) knownIDs(q Query) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, e := range q.Entities {
		id, ok := r.graphID(e)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (r *Reasoner) isRelationship(q Query) bool {
	return q.Intent == IntentRelationship && len(r.knownIDs(q)) >= 2
}

// relationship connects the first two known entities. Later entities are
// ignored.
func (r *Reasoner) relationship(_ context.Context, q Query, out *run) {
	ids := r.knownIDs(q)
	a, b := ids[0], ids[1]
	desc := fmt.Sprintf("Find path between %s and %s", r.name(a), r.name(b))
	p, ok := r.trav.FindPath(a, b, r.cfg.PathDepth)
	if !ok {
		out.step(desc, fmt.Sprintf("no connection within %d relations", r.cfg.PathDepth))
		return
	}
	out.step(desc, fmt.Sprintf("%d relations", p.Edges()))
	out.addPaths(p)
	out.conclude(Conclusion{
		Type:       ConclusionRelationship,
		Subject:    a,
		Statement:  p.String(),
		Confidence: p.TotalConfidence,
		Scored:     true,
		Data:       map[string]any{"source": a, "target": b, "hops": p.Edges()},
	})
}

func (r *Reasoner) isComparison(q Query) bool {
	return q.Intent == IntentComparison && len(q.OfType(ontology.TypeMeasurementAxis)) >= 2
}

type side struct {
	axis     string
	value    float64
	hasValue bool
	state    rules.StateResult
	hasState bool
	spec     ontology.Entity
	hasSpec  bool
}

var severityRank = map[rules.Severity]int{
	rules.SeverityNormal:   0,
	rules.SeverityWarning:  1,
	rules.SeverityCritical: 2,
}

// comparison sets the first two axes side by side: by state when both
// carry readings, otherwise by specified range. Standalone Value entities
// pair with axes by position.
func (r *Reasoner) comparison(_ context.Context, q Query, out *run) {
	axes := q.OfType(ontology.TypeMeasurementAxis)[:2]
	values := q.OfType(TypeValue)

	sides := make([]side, 2)
	for i, e := range axes {
		s := side{axis: e.ID}
		if v, ok := e.Value(); ok {
			s.value, s.hasValue = v, true
		} else if i < len(values) {
			s.value, s.hasValue = values[i].Value()
		}
		if s.hasValue {
			s.state, s.hasState = r.stateOf(e.ID, s.value, out)
		}
		s.spec, s.hasSpec = r.specOf(e.ID, out)
		sides[i] = s
	}
	a, b := sides[0], sides[1]

	var statement string
	data := map[string]any{"axes": []string{a.axis, b.axis}}
	switch {
	case a.hasState && b.hasState:
		ra, rb := severityRank[a.state.Severity], severityRank[b.state.Severity]
		data["severities"] = []string{string(a.state.Severity), string(b.state.Severity)}
		data["values"] = []float64{a.value, b.value}
		switch {
		case ra > rb:
			statement = fmt.Sprintf("%s (%s) is more severe than %s (%s)", a.axis, a.state.Label, b.axis, b.state.Label)
		case rb > ra:
			statement = fmt.Sprintf("%s (%s) is more severe than %s (%s)", b.axis, b.state.Label, a.axis, a.state.Label)
		default:
			statement = fmt.Sprintf("%s and %s are both %s", a.axis, b.axis, a.state.Severity)
		}
	case a.hasSpec && b.hasSpec:
		data["specifications"] = []string{a.spec.ID, b.spec.ID}
		statement = fmt.Sprintf("%s spans %s; %s spans %s", a.axis, specRange(a.spec), b.axis, specRange(b.spec))
	default:
		out.step(fmt.Sprintf("Compare %s and %s", a.axis, b.axis), "no readings or specifications to compare")
		return
	}
	out.step(fmt.Sprintf("Compare %s and %s", a.axis, b.axis), statement)
	out.conclude(Conclusion{
		Type:      ConclusionComparison,
		Subject:   a.axis,
		Statement: statement,
		Data:      data,
	})
}

// specOf returns the first specification of an entity, adding its path.
func (r *Reasoner) specOf(id string, out *run) (ontology.Entity, bool) {
	for _, p := range r.trav.FollowChain(id, []ontology.Relation{ontology.RelSpecifiedBy}, ontology.Outgoing) {
		if spec, ok := r.idx.Entity(p.Last().EntityID); ok {
			out.addPaths(p)
			return spec, true
		}
	}
	return ontology.Entity{}, false
}

func specRange(spec ontology.Entity) string {
	lo, okLo := toFloat(spec.Properties["min"])
	hi, okHi := toFloat(spec.Properties["max"])
	if !okLo || !okHi {
		return spec.Name
	}
	s := fmt.Sprintf("[%g, %g]", lo, hi)
	if u := spec.StringProp("unit"); u != "" {
		s += " " + u
	}
	return s
}

func (r *Reasoner) isResolution(q Query) bool {
	return q.Intent == IntentResolution
}

// resolution answers "how do I fix it". Causes come from named causes,
// patterns, error codes or elevated readings; when no entity yields one
// the question text is matched against pattern keywords.
func (r *Reasoner) resolution(_ context.Context, q Query, out *run) {
	var causes []rules.CauseResult
	seen := make(map[string]bool)
	add := func(cs ...rules.CauseResult) {
		for _, c := range cs {
			if !seen[c.CauseID] {
				seen[c.CauseID] = true
				causes = append(causes, c)
			}
		}
	}
	fromPattern := func(pid string) {
		out.addPaths(r.trav.ReasoningPath(pid).Resolutions...)
		cs := r.eng.InferCause(pid, q.Context)
		out.step(fmt.Sprintf("Infer causes of %s", r.name(pid)), fmt.Sprintf("%d candidate causes", len(cs)))
		add(cs...)
	}

	for _, e := range q.Entities {
		switch e.Type {
		case ontology.TypeCause:
			if ent, ok := r.idx.Entity(e.ID); ok && ent.Type == ontology.TypeCause {
				out.addPaths(r.trav.FollowChain(ent.ID, []ontology.Relation{ontology.RelResolvedBy}, ontology.Outgoing)...)
				add(rules.CauseResult{CauseID: ent.ID, Name: r.name(ent.ID), Base: 1, Confidence: 1})
			}
		case ontology.TypePattern:
			if pid, ok := r.graphID(e); ok {
				fromPattern(pid)
			}
		case ontology.TypeErrorCode:
			for _, p := range r.trav.FollowChain(e.ID, []ontology.Relation{ontology.RelTriggers}, ontology.Incoming) {
				out.addPaths(p)
				fromPattern(p.Last().EntityID)
			}
		case ontology.TypeMeasurementAxis:
			v, ok := q.valueFor(e)
			if !ok {
				continue
			}
			st, ok := r.stateOf(e.ID, v, out)
			if ok && st.Severity.Elevated() && math.Abs(v) > r.cfg.MagnitudeBound {
				fromPattern(rules.PatternID(r.patternClass(e.ID, v)))
			}
		}
	}
	if len(causes) == 0 {
		if pid, ok := r.lex.ResolvePattern(q.Text); ok {
			fromPattern(pid)
		}
	}

	found := 0
	for _, c := range causes {
		res, ok := r.recommendFor(c, out)
		if !ok {
			continue
		}
		found++
		out.conclude(Conclusion{
			Type:       ConclusionResolution,
			Subject:    res.ResolutionID,
			Statement:  fmt.Sprintf("To address %s: %s", c.Name, res.Name),
			Confidence: c.Confidence * res.Confidence,
			Scored:     true,
			Data:       map[string]any{"cause_id": c.CauseID, "steps": res.Steps},
		})
	}
	out.step("Look up resolutions", fmt.Sprintf("%d resolutions for %d causes", found, len(causes)))
}

func (r *Reasoner) isDefinition(q Query, e Entity) bool {
	if q.Intent != IntentDefinition {
		return false
	}
	_, ok := r.graphID(e)
	return ok
}

// definition describes an entity and its immediate neighbourhood.
func (r *Reasoner) definition(_ context.Context, _ Query, e Entity, out *run) {
	id, _ := r.graphID(e)
	ent, _ := r.idx.Entity(id)
	nb := r.trav.EntityContext(id, r.cfg.ContextDepth)
	out.step(fmt.Sprintf("Look up %s", id), fmt.Sprintf("%s in the %s domain", ent.Type, ent.Domain))

	bfs := r.trav.BFS(id, traverse.Options{MaxDepth: r.cfg.ContextDepth, Direction: ontology.Both})
	for _, p := range bfs.Paths {
		if p.Edges() > 0 {
			out.addPaths(p)
		}
	}
	out.conclude(Conclusion{
		Type:      ConclusionDefinition,
		Subject:   id,
		Statement: describe(ent),
		Data: map[string]any{
			"type":       string(ent.Type),
			"domain":     string(ent.Domain),
			"properties": ent.Properties,
			"outgoing":   nb.Outgoing,
			"incoming":   nb.Incoming,
		},
	})
}

func (r *Reasoner) isSpecification(q Query, e Entity) bool {
	if q.Intent != IntentSpecification {
		return false
	}
	_, ok := r.graphID(e)
	return ok
}

// specification reports the specifications of an entity, directly or
// through the axes it measures.
func (r *Reasoner) specification(_ context.Context, _ Query, e Entity, out *run) {
	id, _ := r.graphID(e)
	desc := fmt.Sprintf("Find specifications of %s", r.name(id))

	var specs []traverse.Path
	if ent, _ := r.idx.Entity(id); ent.Type == ontology.TypeSpecification {
		specs = append(specs, traverse.NewPath(r.trav.Step(id, "", "")))
	} else {
		specs = append(specs, r.trav.FollowChain(id, []ontology.Relation{ontology.RelSpecifiedBy}, ontology.Outgoing)...)
		specs = append(specs, r.trav.FollowChain(id, []ontology.Relation{ontology.RelMeasures, ontology.RelSpecifiedBy}, ontology.Outgoing)...)
	}
	if len(specs) == 0 {
		out.step(desc, "no specification recorded")
		return
	}
	out.step(desc, fmt.Sprintf("%d specifications", len(specs)))
	for _, p := range specs {
		if p.Edges() > 0 {
			out.addPaths(p)
		}
		spec, _ := r.idx.Entity(p.Last().EntityID)
		out.conclude(Conclusion{
			Type:      ConclusionSpecification,
			Subject:   spec.ID,
			Statement: fmt.Sprintf("%s: %s", spec.Name, specRange(spec)),
			Data:      map[string]any{"properties": spec.Properties, "for": id},
		})
	}
}
