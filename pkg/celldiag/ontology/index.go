package ontology

// Edge is one adjacency entry: the relation and the entity on the other end.
type Edge struct {
	Relation   Relation
	Other      string
	Confidence float64
}

// Index answers entity and neighbourhood lookups over a Schema.
// Building it is linear in the number of relationships; neighbour lookups
// are linear in node degree. An Index is read-only after NewIndex.
type Index struct {
	schema   *Schema
	entities map[string]Entity
	byType   map[EntityType][]string
	out      map[string][]Edge
	in       map[string][]Edge
	// edge position per source, kept so Relationships can return the
	// original property maps without scanning the whole schema
	outRels map[string][]int
	inRels  map[string][]int
}

// NewIndex builds the adjacency structure. The schema is expected to be
// validated already.
func NewIndex(s *Schema) *Index {
	idx := &Index{
		schema:   s,
		entities: make(map[string]Entity, len(s.Entities)),
		byType:   make(map[EntityType][]string),
		out:      make(map[string][]Edge),
		in:       make(map[string][]Edge),
		outRels:  make(map[string][]int),
		inRels:   make(map[string][]int),
	}

	for _, e := range s.Entities {
		if e.Domain == "" {
			e.Domain = DomainOf(e.Type)
		}
		idx.entities[e.ID] = e
		idx.byType[e.Type] = append(idx.byType[e.Type], e.ID)
	}

	for i, r := range s.Relationships {
		c := r.Confidence()
		idx.out[r.Source] = append(idx.out[r.Source], Edge{Relation: r.Relation, Other: r.Target, Confidence: c})
		idx.in[r.Target] = append(idx.in[r.Target], Edge{Relation: r.Relation, Other: r.Source, Confidence: c})
		idx.outRels[r.Source] = append(idx.outRels[r.Source], i)
		idx.inRels[r.Target] = append(idx.inRels[r.Target], i)
	}

	return idx
}

// Schema returns the snapshot the index was built from.
func (x *Index) Schema() *Schema { return x.schema }

// Entity returns the entity with the given id.
func (x *Index) Entity(id string) (Entity, bool) {
	e, ok := x.entities[id]
	return e, ok
}

// EntitiesByType returns entities of a type in schema order.
func (x *Index) EntitiesByType(t EntityType) []Entity {
	ids := x.byType[t]
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.entities[id])
	}
	return out
}

// EntitiesByDomain returns entities of a domain in schema order.
func (x *Index) EntitiesByDomain(d Domain) []Entity {
	var out []Entity
	for _, e := range x.schema.Entities {
		if DomainOf(e.Type) == d {
			out = append(out, x.entities[e.ID])
		}
	}
	return out
}

// Outgoing returns edges leaving id in schema order.
func (x *Index) Outgoing(id string) []Edge { return x.out[id] }

// Incoming returns edges entering id in schema order.
func (x *Index) Incoming(id string) []Edge { return x.in[id] }

// Neighbors returns adjacency entries for the requested direction.
// For Both, outgoing edges come first.
func (x *Index) Neighbors(id string, dir Direction) []Edge {
	switch dir {
	case Outgoing:
		return x.out[id]
	case Incoming:
		return x.in[id]
	default:
		out := make([]Edge, 0, len(x.out[id])+len(x.in[id]))
		out = append(out, x.out[id]...)
		return append(out, x.in[id]...)
	}
}

// Relationships returns the full relationship records touching id.
func (x *Index) Relationships(id string, dir Direction) []Relationship {
	var positions []int
	switch dir {
	case Outgoing:
		positions = x.outRels[id]
	case Incoming:
		positions = x.inRels[id]
	default:
		positions = append(append([]int{}, x.outRels[id]...), x.inRels[id]...)
	}
	out := make([]Relationship, 0, len(positions))
	for _, p := range positions {
		out = append(out, x.schema.Relationships[p])
	}
	return out
}

// Targets returns ids reached from id over one relation.
func (x *Index) Targets(id string, rel Relation) []string {
	var out []string
	for _, e := range x.out[id] {
		if e.Relation == rel {
			out = append(out, e.Other)
		}
	}
	return out
}

// Stats summarises the graph.
type Stats struct {
	Entities      int
	Relationships int
	ByDomain      map[Domain]int
	ByType        map[EntityType]int
	ByRelation    map[Relation]int
}

// Statistics counts entities by domain and type and relationships by relation.
func (x *Index) Statistics() Stats {
	st := Stats{
		Entities:      len(x.schema.Entities),
		Relationships: len(x.schema.Relationships),
		ByDomain:      make(map[Domain]int),
		ByType:        make(map[EntityType]int),
		ByRelation:    make(map[Relation]int),
	}
	for _, e := range x.schema.Entities {
		st.ByDomain[DomainOf(e.Type)]++
		st.ByType[e.Type]++
	}
	for _, r := range x.schema.Relationships {
		st.ByRelation[r.Relation]++
	}
	return st
}
