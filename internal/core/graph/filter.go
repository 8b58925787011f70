package graph

import "github.com/agenthands/argus/internal/core/model"

// FilterOptions narrows the graph handed to the visualization collaborator.
type FilterOptions struct {
	Types         []string `form:"type"`
	MinDegree     int      `form:"min_degree"`
	MinConfidence float64  `form:"min_confidence"`
}

// Filter keeps entities of the requested types whose degree, counted over relationships at or
// above MinConfidence, reaches MinDegree. Relationships survive only if both endpoints do.
func (g *Index) Filter(opts FilterOptions) *Snapshot {
	allowed := make(map[string]struct{}, len(opts.Types))
	for _, t := range opts.Types {
		allowed[t] = struct{}{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	degree := make(map[string]int, len(g.entities))
	for _, r := range g.relationships {
		if r.Confidence < opts.MinConfidence {
			continue
		}
		degree[r.SourceID]++
		degree[r.TargetID]++
	}

	s := &Snapshot{
		Version:       g.version,
		Entities:      make(map[string]model.Entity),
		Relationships: make(map[string]model.Relationship),
	}
	for id, e := range g.entities {
		if len(allowed) > 0 {
			if _, ok := allowed[e.Type]; !ok {
				continue
			}
		}
		if degree[id] < opts.MinDegree {
			continue
		}
		s.Entities[id] = e
	}
	for id, r := range g.relationships {
		if r.Confidence < opts.MinConfidence {
			continue
		}
		_, src := s.Entities[r.SourceID]
		_, dst := s.Entities[r.TargetID]
		if src && dst {
			s.Relationships[id] = r
		}
	}
	return s
}
