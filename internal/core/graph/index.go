package graph

import (
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/agenthands/argus/internal/core/model"
)

// Index is the in-memory arena of entities and relationships. Traversal walks identifiers only.
//
// Stored values are replaced wholesale on upsert and never mutated in place, so values handed
// out to readers and snapshots stay consistent without copying nested slices and maps.
type Index struct {
	mu sync.RWMutex

	entities      map[string]model.Entity
	relationships map[string]model.Relationship
	evidence      map[string]model.EvidenceReference

	adjacency  map[string][]string // entity id -> relationship ids, sorted
	byEvidence map[string][]string // evidence id -> relationship ids, sorted

	version uint64
}

func NewIndex() *Index {
	return &Index{
		entities:      make(map[string]model.Entity),
		relationships: make(map[string]model.Relationship),
		evidence:      make(map[string]model.EvidenceReference),
		adjacency:     make(map[string][]string),
		byEvidence:    make(map[string][]string),
	}
}

// Version increases on every committed change. Structural scores record the version they were computed on.
func (g *Index) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

func (g *Index) UpsertEvidence(ev model.EvidenceReference) error {
	if err := Check(model.RefEvidence, ev.ID, ev); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.evidence[ev.ID]; ok {
		if existing != ev {
			return model.NewValidationError(model.RefEvidence, ev.ID, "evidence is immutable once stored")
		}
		return nil
	}
	g.evidence[ev.ID] = ev
	g.version++
	return nil
}

func (g *Index) UpsertEntity(e model.Entity) error {
	if err := Check(model.RefEntity, e.ID, e); err != nil {
		return err
	}
	e.Aliases = slices.Clone(e.Aliases)
	e.Attributes = maps.Clone(e.Attributes)
	e.EvidenceIDs = slices.Clone(e.EvidenceIDs)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkEvidenceLocked(model.RefEntity, e.ID, e.EvidenceIDs); err != nil {
		return err
	}

	existing, ok := g.entities[e.ID]
	if e.CreatedAt.IsZero() {
		if ok {
			e.CreatedAt = existing.CreatedAt
		} else {
			e.CreatedAt = time.Now().UTC()
		}
	}
	if ok && reflect.DeepEqual(existing, e) {
		return nil
	}
	g.entities[e.ID] = e
	g.version++
	return nil
}

// UpsertRelationship fails with a ValidationError if either endpoint is absent.
func (g *Index) UpsertRelationship(r model.Relationship) error {
	if err := Check(model.RefRelationship, r.ID, r); err != nil {
		return err
	}
	r.EvidenceIDs = slices.Clone(r.EvidenceIDs)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[r.SourceID]; !ok {
		return model.NewValidationError(model.RefRelationship, r.ID, "source entity %q does not exist", r.SourceID)
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return model.NewValidationError(model.RefRelationship, r.ID, "target entity %q does not exist", r.TargetID)
	}
	if err := g.checkEvidenceLocked(model.RefRelationship, r.ID, r.EvidenceIDs); err != nil {
		return err
	}

	existing, ok := g.relationships[r.ID]
	if r.CreatedAt.IsZero() {
		if ok {
			r.CreatedAt = existing.CreatedAt
		} else {
			r.CreatedAt = time.Now().UTC()
		}
	}
	if ok {
		if reflect.DeepEqual(existing, r) {
			return nil
		}
		g.unlinkLocked(existing)
	}

	g.relationships[r.ID] = r
	g.adjacency[r.SourceID] = insertSorted(g.adjacency[r.SourceID], r.ID)
	if r.TargetID != r.SourceID {
		g.adjacency[r.TargetID] = insertSorted(g.adjacency[r.TargetID], r.ID)
	}
	for _, evID := range r.EvidenceIDs {
		g.byEvidence[evID] = insertSorted(g.byEvidence[evID], r.ID)
	}
	g.version++
	return nil
}

func (g *Index) checkEvidenceLocked(kind model.RefKind, id string, evidenceIDs []string) error {
	for _, evID := range evidenceIDs {
		if _, ok := g.evidence[evID]; !ok {
			return model.NewValidationError(kind, id, "evidence %q does not exist", evID)
		}
	}
	return nil
}

func (g *Index) unlinkLocked(r model.Relationship) {
	g.adjacency[r.SourceID] = removeSorted(g.adjacency[r.SourceID], r.ID)
	g.adjacency[r.TargetID] = removeSorted(g.adjacency[r.TargetID], r.ID)
	for _, evID := range r.EvidenceIDs {
		g.byEvidence[evID] = removeSorted(g.byEvidence[evID], r.ID)
	}
}

func (g *Index) Entity(id string) (model.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	return e, ok
}

func (g *Index) Relationship(id string) (model.Relationship, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.relationships[id]
	return r, ok
}

// Evidence returns the known references for ids, in the given order and without duplicates.
func (g *Index) Evidence(ids ...string) []model.EvidenceReference {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	out := make([]model.EvidenceReference, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if ev, ok := g.evidence[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// Incident returns every relationship touching the entity, inert ones included, ordered by id.
func (g *Index) Incident(entityID string) []model.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lookupLocked(g.adjacency[entityID])
}

func (g *Index) RelationshipsForEvidence(evidenceID string) []model.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lookupLocked(g.byEvidence[evidenceID])
}

func (g *Index) lookupLocked(ids []string) []model.Relationship {
	out := make([]model.Relationship, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.relationships[id])
	}
	return out
}

type Stats struct {
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Evidence      int    `json:"evidence"`
	Version       uint64 `json:"version"`
}

func (g *Index) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		Entities:      len(g.entities),
		Relationships: len(g.relationships),
		Evidence:      len(g.evidence),
		Version:       g.version,
	}
}

func insertSorted(ids []string, id string) []string {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

func removeSorted(ids []string, id string) []string {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, i, i+1)
}
