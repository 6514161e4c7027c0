package reasoning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

// MaintenanceStatus is the three-level health summary of the cell.
type MaintenanceStatus string

const (
	StatusNormal    MaintenanceStatus = "normal"
	StatusCaution   MaintenanceStatus = "caution"
	StatusAttention MaintenanceStatus = "attention"
)

var statusNarrative = map[MaintenanceStatus]string{
	StatusNormal:    "No anomalous patterns were recorded in the maintenance window. Keep to the regular maintenance schedule.",
	StatusCaution:   "A few anomalous patterns were recorded in the maintenance window. Check the affected axes at the next planned stop.",
	StatusAttention: "Frequent anomalous patterns or a collision were recorded in the maintenance window. Inspect the cell before the next shift.",
}

// maintenanceStatus grades a window. A collision or at least attention
// patterns means attention; anything less than that but above zero is
// caution.
func maintenanceStatus(total, collisions, attention int) MaintenanceStatus {
	switch {
	case total >= attention || collisions > 0:
		return StatusAttention
	case total > 0:
		return StatusCaution
	default:
		return StatusNormal
	}
}

func (r *Reasoner) isMeasurement(q Query, e Entity) bool {
	if e.Type != ontology.TypeMeasurementAxis {
		return false
	}
	_, ok := q.valueFor(e)
	return ok
}

// measurement infers the state of a reading and, for an elevated reading
// of large magnitude, explains the pattern class it points to.
func (r *Reasoner) measurement(_ context.Context, q Query, e Entity, out *run) {
	v, _ := q.valueFor(e)
	st, ok := r.stateOf(e.ID, v, out)
	if !ok || !st.Severity.Elevated() || math.Abs(v) <= r.cfg.MagnitudeBound {
		return
	}

	pid := rules.PatternID(r.patternClass(e.ID, v))
	out.step(fmt.Sprintf("Match %s reading of %g to a pattern class", e.ID, v), pid)

	c := Conclusion{
		Type:      ConclusionPattern,
		Subject:   pid,
		Statement: fmt.Sprintf("A %s reading of %g matches %s", e.ID, v, r.name(pid)),
		Data:      map[string]any{"axis": e.ID, "value": v},
	}
	for _, p := range r.trav.FollowChain(e.ID, []ontology.Relation{ontology.RelRelatedTo}, ontology.Outgoing) {
		if p.Last().EntityID == pid {
			c.Confidence, c.Scored = p.TotalConfidence, true
			out.addPaths(p)
			break
		}
	}
	out.conclude(c)

	r.explainCauses(pid, q.Context, out)
	r.triggeredErrors(pid, out)
}

func (r *Reasoner) stateOf(axis string, v float64, out *run) (rules.StateResult, bool) {
	desc := fmt.Sprintf("Infer state of %s at %g", axis, v)
	st, ok := r.eng.InferState(axis, v)
	if !ok {
		out.step(desc, "no configured range contains the value")
		return st, false
	}
	out.step(desc, fmt.Sprintf("%s (%s)", st.Label, st.Severity))
	sr := st.Result()
	out.evidence(sr)
	out.conclude(Conclusion{
		Type:       ConclusionState,
		Subject:    axis,
		Statement:  sr.Message,
		Confidence: st.Confidence,
		Scored:     true,
		Data: map[string]any{
			"value":    v,
			"state":    st.State,
			"label":    st.Label,
			"severity": string(st.Severity),
		},
	})
	return st, true
}

// patternClass maps an elevated reading to a detector class. Force axes
// split on sign; torque axes always point to overload.
func (r *Reasoner) patternClass(axis string, v float64) signals.PatternType {
	kind := ""
	if ent, ok := r.idx.Entity(axis); ok {
		kind = strings.ToLower(ent.StringProp("kind"))
	}
	if kind == "" && strings.HasPrefix(strings.ToUpper(axis), "T") {
		kind = "torque"
	}
	if kind == "torque" || v > 0 {
		return signals.Overload
	}
	return signals.Collision
}

// explainCauses adds the ranked causes of a pattern and the remedy of each.
// A pattern is expanded at most once per question.
func (r *Reasoner) explainCauses(pid string, facts map[string]any, out *run) []rules.CauseResult {
	if out.expanded[pid] {
		return nil
	}
	out.expanded[pid] = true

	rp := r.trav.ReasoningPath(pid)
	out.addPaths(rp.Causes...)
	out.addPaths(rp.Resolutions...)

	causes := r.eng.InferCause(pid, facts)
	out.step(fmt.Sprintf("Infer causes of %s", r.name(pid)), fmt.Sprintf("%d candidate causes", len(causes)))
	for _, c := range causes {
		out.evidence(c.Result())
		data := map[string]any{"pattern_id": pid, "base_confidence": c.Base}
		if len(c.Applied) > 0 {
			data["boosts"] = c.Applied
		}
		out.conclude(Conclusion{
			Type:       ConclusionCause,
			Subject:    c.CauseID,
			Statement:  fmt.Sprintf("%s may be caused by %s", r.name(pid), c.Name),
			Confidence: c.Confidence,
			Scored:     true,
			Data:       data,
		})
		r.recommendFor(c, out)
	}
	return causes
}

func (r *Reasoner) recommendFor(c rules.CauseResult, out *run) (rules.Resolution, bool) {
	res, ok := r.eng.Resolution(c.CauseID)
	if !ok {
		return res, false
	}
	out.evidence(res.Result())
	out.recommend(Recommendation{
		ResolutionID: res.ResolutionID,
		Name:         res.Name,
		CauseID:      c.CauseID,
		Steps:        res.Steps,
		Confidence:   c.Confidence * res.Confidence,
	})
	return res, true
}

// triggeredErrors adds the error codes a pattern can raise.
func (r *Reasoner) triggeredErrors(pid string, out *run) {
	paths := r.trav.FollowChain(pid, []ontology.Relation{ontology.RelTriggers}, ontology.Outgoing)
	if len(paths) == 0 {
		return
	}
	out.step(fmt.Sprintf("Find errors triggered by %s", r.name(pid)), fmt.Sprintf("%d error codes", len(paths)))
	for _, p := range paths {
		out.addPaths(p)
		code := p.Last()
		out.conclude(Conclusion{
			Type:       ConclusionTriggeredError,
			Subject:    code.EntityID,
			Statement:  fmt.Sprintf("%s can trigger %s (%s)", r.name(pid), code.EntityID, r.name(code.EntityID)),
			Confidence: p.TotalConfidence,
			Scored:     true,
			Data:       map[string]any{"pattern_id": pid},
		})
	}
}

func (r *Reasoner) isPattern(_ Query, e Entity) bool {
	return e.Type == ontology.TypePattern
}

// temporal reports whether the question asks about the past. Any temporal
// word selects the whole log; phrases like "yesterday" do not narrow it.
func (r *Reasoner) temporal(q Query) bool {
	return q.Intent == IntentHistory || len(q.OfType(TypeTemporal)) > 0 || r.lex.HasTemporal(q.Text)
}

func (r *Reasoner) pattern(ctx context.Context, q Query, e Entity, out *run) {
	mention := e.Text
	if mention == "" {
		mention = e.ID
	}
	desc := fmt.Sprintf("Resolve pattern %q", mention)
	pid, ok := r.graphID(e)
	if !ok {
		out.step(desc, "not a known pattern")
		return
	}
	out.step(desc, pid)

	if r.temporal(q) {
		r.patternHistory(ctx, pid, out)
		return
	}

	statement := r.name(pid)
	if ent, ok := r.idx.Entity(pid); ok {
		if d := ent.StringProp("description"); d != "" {
			statement = fmt.Sprintf("%s: %s", ent.Name, d)
		}
	}
	out.conclude(Conclusion{Type: ConclusionPattern, Subject: pid, Statement: statement})
	r.explainCauses(pid, q.Context, out)
	r.triggeredErrors(pid, out)
	r.predictionsFor(ctx, pid, out)
}

// patternHistory reports what the log holds for one pattern.
func (r *Reasoner) patternHistory(ctx context.Context, pid string, out *run) {
	desc := fmt.Sprintf("Look up %s history", r.name(pid))
	ps, ok := r.queryHistory(ctx, store.Filter{PatternID: pid}, desc, out)
	if !ok {
		return
	}

	data := map[string]any{"count": len(ps)}
	statement := fmt.Sprintf("No %s events are recorded", strings.ToLower(r.name(pid)))
	if len(ps) > 0 {
		first, last := ps[0].Timestamp, ps[len(ps)-1].Timestamp
		axes := make(map[string]int)
		maxConf := 0.0
		for _, p := range ps {
			if p.Axis != "" {
				axes[p.Axis]++
			}
			maxConf = math.Max(maxConf, p.Confidence)
		}
		data["first"] = first
		data["last"] = last
		data["axes"] = axes
		data["max_confidence"] = maxConf
		statement = fmt.Sprintf("%d %s events recorded between %s and %s",
			len(ps), strings.ToLower(r.name(pid)), first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	out.step(desc, fmt.Sprintf("%d events", len(ps)))
	out.conclude(Conclusion{
		Type:      ConclusionPatternHistory,
		Subject:   pid,
		Statement: statement,
		Data:      data,
	})
}

// predictionsFor runs the prediction rules over the whole log and keeps the
// ones about pid.
func (r *Reasoner) predictionsFor(ctx context.Context, pid string, out *run) {
	if r.history == nil {
		return
	}
	ps, ok := r.queryHistory(ctx, store.Filter{}, "Load pattern history for prediction", out)
	if !ok {
		return
	}
	var hits []rules.Prediction
	for _, p := range r.eng.PredictError(ps) {
		if p.PatternID == pid {
			hits = append(hits, p)
			out.evidence(p.Result())
		}
	}
	out.step(fmt.Sprintf("Predict errors from %s history", r.name(pid)), fmt.Sprintf("%d predictions", len(hits)))
	out.predict(hits...)
}

// queryHistory reads the log. Failures become a chain step.
func (r *Reasoner) queryHistory(ctx context.Context, f store.Filter, desc string, out *run) ([]store.DetectedPattern, bool) {
	if r.history == nil {
		out.step(desc, "no pattern history configured")
		return nil, false
	}
	ps, err := r.history.Query(ctx, f)
	if err != nil {
		r.logger.Warn("pattern history unavailable", zap.Error(err))
		out.step(desc, "pattern history unavailable")
		return nil, false
	}
	return ps, true
}

func (r *Reasoner) isErrorCode(_ Query, e Entity) bool {
	return e.Type == ontology.TypeErrorCode
}

// errorCode explains a code through the patterns that trigger it. An
// unknown code is answered, with low confidence, as not registered.
func (r *Reasoner) errorCode(_ context.Context, q Query, e Entity, out *run) {
	desc := fmt.Sprintf("Look up error code %s", e.ID)
	ent, ok := r.idx.Entity(e.ID)
	if !ok || ent.Type != ontology.TypeErrorCode {
		out.step(desc, "not registered")
		out.conclude(Conclusion{
			Type:       ConclusionDefinition,
			Subject:    e.ID,
			Statement:  fmt.Sprintf("%s is not a registered error code", e.ID),
			Confidence: UnknownCodeConfidence,
			Scored:     true,
			Data:       map[string]any{"registered": false},
		})
		return
	}
	out.step(desc, ent.Name)
	out.conclude(Conclusion{
		Type:      ConclusionDefinition,
		Subject:   ent.ID,
		Statement: describe(ent),
		Data: map[string]any{
			"registered": true,
			"category":   ent.StringProp("category"),
			"severity":   ent.StringProp("severity"),
		},
	})
	r.triggeringPatterns(ent.ID, q.Context, out)
}

// triggeringPatterns walks back from an error code to the patterns that
// raise it and explains each of them.
func (r *Reasoner) triggeringPatterns(code string, facts map[string]any, out *run) {
	paths := r.trav.FollowChain(code, []ontology.Relation{ontology.RelTriggers}, ontology.Incoming)
	out.step(fmt.Sprintf("Find patterns that trigger %s", code), fmt.Sprintf("%d patterns", len(paths)))
	for _, p := range paths {
		out.addPaths(p)
		pid := p.Last().EntityID
		out.conclude(Conclusion{
			Type:       ConclusionTriggeringPattern,
			Subject:    pid,
			Statement:  fmt.Sprintf("%s triggers %s", r.name(pid), code),
			Confidence: p.TotalConfidence,
			Scored:     true,
			Data:       map[string]any{"error_code": code},
		})
		r.explainCauses(pid, facts, out)
	}
}

func (r *Reasoner) isErrorCategory(_ Query, e Entity) bool {
	return e.Type == TypeErrorCategory
}

// errorCategory gathers every error code whose category or name matches
// the category vocabulary, then aggregates their causes and remedies.
func (r *Reasoner) errorCategory(_ context.Context, q Query, e Entity, out *run) {
	mention := e.Text
	if mention == "" {
		mention = e.ID
	}
	category, ok := r.lex.ResolveCategory(mention)
	if !ok {
		category = strings.ToLower(strings.TrimSpace(mention))
	}
	variants := r.lex.CategoryVariants(category)

	var matched []ontology.Entity
	for _, code := range r.idx.EntitiesByType(ontology.TypeErrorCode) {
		if strings.EqualFold(code.StringProp("category"), category) || r.lex.MatchesAny(code.Name, variants) {
			matched = append(matched, code)
		}
	}
	out.step(fmt.Sprintf("Match error codes in category %q", category), fmt.Sprintf("%d codes", len(matched)))

	for _, code := range matched {
		out.conclude(Conclusion{
			Type:      ConclusionDefinition,
			Subject:   code.ID,
			Statement: describe(code),
			Data: map[string]any{
				"registered": true,
				"category":   category,
				"severity":   code.StringProp("severity"),
			},
		})
		r.triggeringPatterns(code.ID, q.Context, out)
	}
}

func (r *Reasoner) isMaintenance(q Query, _ Entity) bool {
	return q.Intent == IntentMaintenance
}

// maintenance grades the recent log and, when something needs doing, lists
// the maintenance tasks that prevent the causes of what was seen.
func (r *Reasoner) maintenance(ctx context.Context, _ Query, _ Entity, out *run) {
	since := r.now().Add(-r.cfg.MaintenanceWindow)
	desc := fmt.Sprintf("Count patterns since %s", since.UTC().Format(time.RFC3339))
	ps, ok := r.queryHistory(ctx, store.Filter{Since: since}, desc, out)
	if !ok {
		return
	}

	counts := make(map[string]int)
	for _, p := range ps {
		counts[p.PatternID]++
	}
	status := maintenanceStatus(len(ps), counts[rules.PatternID(signals.Collision)], r.cfg.AttentionCount)
	out.step(desc, fmt.Sprintf("%d patterns: %s", len(ps), status))
	out.conclude(Conclusion{
		Type:      ConclusionMaintenance,
		Subject:   string(status),
		Statement: statusNarrative[status],
		Data: map[string]any{
			"status":      string(status),
			"total":       len(ps),
			"counts":      counts,
			"window_days": r.cfg.MaintenanceWindow.Hours() / 24,
		},
	})
	if status == StatusNormal {
		return
	}

	pids := make([]string, 0, len(counts))
	for pid := range counts {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	chain := []ontology.Relation{ontology.RelIndicates, ontology.RelPreventedBy}
	for _, pid := range pids {
		for _, p := range r.trav.FollowChain(pid, chain, ontology.Outgoing) {
			out.addPaths(p)
			task := p.Last()
			out.recommend(Recommendation{
				ResolutionID: task.EntityID,
				Name:         r.name(task.EntityID),
				CauseID:      p.Steps[1].EntityID,
				Confidence:   p.TotalConfidence,
			})
		}
	}
}

// describe names an entity and its type, followed by its description.
func describe(e ontology.Entity) string {
	s := fmt.Sprintf("%s (%s) is a %s entity", e.Name, e.ID, e.Type)
	if d := e.StringProp("description"); d != "" {
		s += ": " + d
	}
	return s
}
