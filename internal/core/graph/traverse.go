package graph

import (
	"context"
	"math"
	"sort"

	"github.com/agenthands/argus/internal/core/model"
)

const (
	DefaultMaxHops           = 2
	DefaultMinEdgeConfidence = 0.3
)

// Neighbor is one entity reached by expansion. Relationship is the edge it was reached
// through and is nil for the origin.
type Neighbor struct {
	Entity       model.Entity
	Relationship *model.Relationship
	Hops         int
	// PathConfidence is the product of edge confidences along the strongest shortest path.
	PathConfidence float64
}

// Neighbors expands breadth-first from entityID up to maxHops. Edges below minEdgeConfidence
// and inert edges are pruned before traversal continues through them. Results are ordered
// by hop distance, then entity id; the origin comes first.
//
// The read lock is taken once per hop, so writers and other readers interleave with a long
// expansion. Each hop sees the index as it was when that hop ran.
func (g *Index) Neighbors(ctx context.Context, entityID string, maxHops int, minEdgeConfidence float64) ([]Neighbor, error) {
	if maxHops < 0 {
		maxHops = 0
	}

	origin, ok := g.Entity(entityID)
	if !ok {
		return nil, model.NewValidationError(model.RefEntity, entityID, "entity does not exist")
	}

	w := &walk{
		hops: map[string]int{entityID: 0},
		// Path confidence is tracked as a sum of logs so long chains of small confidences stay representable.
		logConf: map[string]float64{entityID: 0},
		via:     map[string]model.Relationship{},
	}
	out := []Neighbor{{Entity: origin, Hops: 0, PathConfidence: 1}}
	frontier := []string{entityID}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var reached []Neighbor
		reached, frontier = g.step(w, frontier, hop, minEdgeConfidence)
		out = append(out, reached...)
	}

	return out, nil
}

type walk struct {
	hops    map[string]int
	logConf map[string]float64
	via     map[string]model.Relationship
}

// step expands one hop under a single read lock and returns the newly reached neighbours
// sorted by id, together with their ids as the next frontier.
func (g *Index) step(w *walk, frontier []string, hop int, minEdgeConfidence float64) ([]Neighbor, []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var reached []string
	for _, u := range frontier {
		for _, relID := range g.adjacency[u] {
			r := g.relationships[relID]
			if r.Inert() || r.Confidence < minEdgeConfidence {
				continue
			}
			v := r.Other(u)
			if v == u {
				continue
			}
			lc := w.logConf[u] + math.Log(r.Confidence)
			if h, seen := w.hops[v]; seen {
				if h == hop && lc > w.logConf[v] {
					w.logConf[v] = lc
					w.via[v] = r
				}
				continue
			}
			if _, ok := g.entities[v]; !ok {
				continue
			}
			w.hops[v] = hop
			w.logConf[v] = lc
			w.via[v] = r
			reached = append(reached, v)
		}
	}

	sort.Strings(reached)
	out := make([]Neighbor, 0, len(reached))
	for _, v := range reached {
		rel := w.via[v]
		out = append(out, Neighbor{
			Entity:         g.entities[v],
			Relationship:   &rel,
			Hops:           hop,
			PathConfidence: math.Exp(w.logConf[v]),
		})
	}
	return out, reached
}
