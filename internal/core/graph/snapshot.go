package graph

import (
	"sort"

	"github.com/agenthands/argus/internal/core/model"
)

// Snapshot is a point-in-time copy of (part of) the graph. It is safe to read without locks.
type Snapshot struct {
	Version       uint64                        `json:"version"`
	Entities      map[string]model.Entity       `json:"entities"`
	Relationships map[string]model.Relationship `json:"relationships"`
}

func (s *Snapshot) EntityIDs() []string {
	ids := make([]string, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Snapshot) RelationshipIDs() []string {
	ids := make([]string, 0, len(s.Relationships))
	for id := range s.Relationships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies the whole graph. Writers are held off only for the duration of the copy.
func (g *Index) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := &Snapshot{
		Version:       g.version,
		Entities:      make(map[string]model.Entity, len(g.entities)),
		Relationships: make(map[string]model.Relationship, len(g.relationships)),
	}
	for id, e := range g.entities {
		s.Entities[id] = e
	}
	for id, r := range g.relationships {
		s.Relationships[id] = r
	}
	return s
}

// Subgraph returns the named entities and the relationships running between them.
// Unknown ids are ignored.
func (g *Index) Subgraph(entityIDs []string) *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := &Snapshot{
		Version:       g.version,
		Entities:      make(map[string]model.Entity, len(entityIDs)),
		Relationships: make(map[string]model.Relationship),
	}
	for _, id := range entityIDs {
		if e, ok := g.entities[id]; ok {
			s.Entities[id] = e
		}
	}
	for id := range s.Entities {
		for _, relID := range g.adjacency[id] {
			r := g.relationships[relID]
			_, src := s.Entities[r.SourceID]
			_, dst := s.Entities[r.TargetID]
			if src && dst {
				s.Relationships[relID] = r
			}
		}
	}
	return s
}
