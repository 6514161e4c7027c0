package traverse

import (
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

// Traverser runs searches over one graph index. It holds no per-call state
// and is safe for concurrent use.
type Traverser struct {
	idx *ontology.Index
}

// New creates a traverser over idx.
func New(idx *ontology.Index) *Traverser {
	return &Traverser{idx: idx}
}

// Index returns the underlying graph index.
func (t *Traverser) Index() *ontology.Index { return t.idx }

// Options bounds and filters a breadth-first search.
type Options struct {
	MaxDepth  int
	Relations []ontology.Relation // empty means every relation
	Direction ontology.Direction  // empty means Outgoing
}

// BFSResult is everything a search touched.
type BFSResult struct {
	Visited       map[string]struct{}
	Order         []string // visit order, start first
	Relationships []Hop
	Paths         []Path
}

// Step builds the path step for an entity id. Unknown ids keep only the id.
func (t *Traverser) Step(id string, rel ontology.Relation, dir ontology.Direction) Step {
	s := Step{EntityID: id, Relation: rel, Direction: dir}
	if e, ok := t.idx.Entity(id); ok {
		s.EntityType = e.Type
		s.EntityName = e.Name
	}
	return s
}

type neighbor struct {
	edge ontology.Edge
	dir  ontology.Direction
}

func (t *Traverser) neighbors(id string, dir ontology.Direction, filter map[ontology.Relation]bool) []neighbor {
	var out []neighbor
	if dir == "" {
		dir = ontology.Outgoing
	}
	if dir == ontology.Outgoing || dir == ontology.Both {
		for _, e := range t.idx.Outgoing(id) {
			if filter == nil || filter[e.Relation] {
				out = append(out, neighbor{edge: e, dir: ontology.Outgoing})
			}
		}
	}
	if dir == ontology.Incoming || dir == ontology.Both {
		for _, e := range t.idx.Incoming(id) {
			if filter == nil || filter[e.Relation] {
				out = append(out, neighbor{edge: e, dir: ontology.Incoming})
			}
		}
	}
	return out
}

func relationFilter(rels []ontology.Relation) map[ontology.Relation]bool {
	if len(rels) == 0 {
		return nil
	}
	f := make(map[ontology.Relation]bool, len(rels))
	for _, r := range rels {
		f[r] = true
	}
	return f
}

// BFS searches outward from start. Every entity id is visited at most once
// per call, whichever relation or direction reaches it first. Nodes at
// MaxDepth are not expanded but their paths are still recorded, as are the
// paths of nodes that have no unvisited neighbours left.
func (t *Traverser) BFS(start string, opts Options) BFSResult {
	res := BFSResult{Visited: make(map[string]struct{})}
	if _, ok := t.idx.Entity(start); !ok {
		return res
	}

	type item struct {
		id    string
		depth int
		path  Path
	}

	filter := relationFilter(opts.Relations)
	res.Visited[start] = struct{}{}
	res.Order = append(res.Order, start)
	queue := []item{{id: start, path: NewPath(t.Step(start, "", ""))}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= opts.MaxDepth {
			res.Paths = append(res.Paths, cur.path)
			continue
		}

		expanded := false
		for _, n := range t.neighbors(cur.id, opts.Direction, filter) {
			next := n.edge.Other
			if _, seen := res.Visited[next]; seen {
				continue
			}
			res.Visited[next] = struct{}{}
			res.Order = append(res.Order, next)
			expanded = true

			hop := Hop{Source: cur.id, Relation: n.edge.Relation, Target: next, Confidence: n.edge.Confidence, Direction: n.dir}
			if n.dir == ontology.Incoming {
				hop.Source, hop.Target = next, cur.id
			}
			res.Relationships = append(res.Relationships, hop)

			queue = append(queue, item{
				id:    next,
				depth: cur.depth + 1,
				path:  cur.path.Extend(t.Step(next, n.edge.Relation, n.dir), n.edge.Confidence),
			})
		}

		if !expanded {
			res.Paths = append(res.Paths, cur.path)
		}
	}

	return res
}

// FindPath returns the shortest path by edge count between two entities,
// following edges in either direction, within maxDepth edges.
func (t *Traverser) FindPath(source, target string, maxDepth int) (Path, bool) {
	if _, ok := t.idx.Entity(source); !ok {
		return Path{}, false
	}
	if _, ok := t.idx.Entity(target); !ok {
		return Path{}, false
	}
	if source == target {
		return NewPath(t.Step(source, "", "")), true
	}

	type item struct {
		id   string
		path Path
	}
	visited := map[string]bool{source: true}
	queue := []item{{id: source, path: NewPath(t.Step(source, "", ""))}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.path.Edges() >= maxDepth {
			continue
		}
		for _, n := range t.neighbors(cur.id, ontology.Both, nil) {
			next := n.edge.Other
			if visited[next] {
				continue
			}
			visited[next] = true
			p := cur.path.Extend(t.Step(next, n.edge.Relation, n.dir), n.edge.Confidence)
			if next == target {
				return p, true
			}
			queue = append(queue, item{id: next, path: p})
		}
	}
	return Path{}, false
}

// FollowChain returns every path from start that completes the exact ordered
// relation sequence. Branches fan out when several edges match a step;
// branches that cannot complete the sequence are dropped.
func (t *Traverser) FollowChain(start string, chain []ontology.Relation, dir ontology.Direction) []Path {
	if _, ok := t.idx.Entity(start); !ok || len(chain) == 0 {
		return nil
	}

	frontier := []Path{NewPath(t.Step(start, "", ""))}
	for _, rel := range chain {
		filter := map[ontology.Relation]bool{rel: true}
		var next []Path
		for _, p := range frontier {
			last := p.Last().EntityID
			for _, n := range t.neighbors(last, dir, filter) {
				if p.Contains(n.edge.Other) {
					continue
				}
				next = append(next, p.Extend(t.Step(n.edge.Other, rel, n.dir), n.edge.Confidence))
			}
		}
		if len(next) == 0 {
			return nil
		}
		frontier = next
	}
	return frontier
}

// Context is an entity's neighbourhood reduced to relation → ids.
type Context struct {
	EntityID string
	Outgoing map[ontology.Relation][]string
	Incoming map[ontology.Relation][]string
}

// EntityContext summarises everything within depth hops of id, in both
// directions, keyed by relation.
func (t *Traverser) EntityContext(id string, depth int) Context {
	ctx := Context{
		EntityID: id,
		Outgoing: make(map[ontology.Relation][]string),
		Incoming: make(map[ontology.Relation][]string),
	}
	res := t.BFS(id, Options{MaxDepth: depth, Direction: ontology.Both})
	for _, h := range res.Relationships {
		if h.Direction == ontology.Incoming {
			ctx.Incoming[h.Relation] = appendUnique(ctx.Incoming[h.Relation], h.Source)
			continue
		}
		ctx.Outgoing[h.Relation] = appendUnique(ctx.Outgoing[h.Relation], h.Target)
	}
	return ctx
}

// ReasoningPaths is the canonical explanation structure of a pattern.
type ReasoningPaths struct {
	PatternID   string
	Causes      []Path // pattern -indicates-> cause
	Resolutions []Path // pattern -indicates-> cause -resolved_by-> resolution
	Errors      []Path // pattern -triggers-> error
}

// ReasoningPath follows the fixed two-hop templates from a pattern.
func (t *Traverser) ReasoningPath(patternID string) ReasoningPaths {
	return ReasoningPaths{
		PatternID:   patternID,
		Causes:      t.FollowChain(patternID, []ontology.Relation{ontology.RelIndicates}, ontology.Outgoing),
		Resolutions: t.FollowChain(patternID, []ontology.Relation{ontology.RelIndicates, ontology.RelResolvedBy}, ontology.Outgoing),
		Errors:      t.FollowChain(patternID, []ontology.Relation{ontology.RelTriggers}, ontology.Outgoing),
	}
}

// All returns every path of the explanation in cause, resolution, error order.
func (r ReasoningPaths) All() []Path {
	out := make([]Path, 0, len(r.Causes)+len(r.Resolutions)+len(r.Errors))
	out = append(out, r.Causes...)
	out = append(out, r.Resolutions...)
	return append(out, r.Errors...)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
