package query

import (
	"fmt"
	"sort"

	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/core/ranking"
	"github.com/agenthands/argus/internal/core/retrieval"
)

type entityHit struct {
	hops int
	via  *model.Relationship
}

// candidateSet collects the entities and relationships a query touches before they are scored.
type candidateSet struct {
	index         *graph.Index
	entities      map[string]entityHit
	relationships map[string]int // id -> hops
	relValues     map[string]model.Relationship
}

func newCandidateSet(index *graph.Index) *candidateSet {
	return &candidateSet{
		index:         index,
		entities:      make(map[string]entityHit),
		relationships: make(map[string]int),
		relValues:     make(map[string]model.Relationship),
	}
}

func (b *candidateSet) empty() bool {
	return len(b.entities) == 0 && len(b.relationships) == 0
}

// addEntity records id at hop distance hops, keeping the shortest distance seen.
func (b *candidateSet) addEntity(id string, hops int, via *model.Relationship) {
	if prev, ok := b.entities[id]; ok && prev.hops <= hops {
		return
	}
	b.entities[id] = entityHit{hops: hops, via: via}
}

func (b *candidateSet) addRelationship(r model.Relationship, hops int) {
	if prev, ok := b.relationships[r.ID]; ok && prev <= hops {
		return
	}
	b.relationships[r.ID] = hops
	b.relValues[r.ID] = r
}

// build resolves the collected references into ranking candidates, in id order. Entities that
// no longer exist in the index are skipped.
func (b *candidateSet) build(r *retrieval.Retriever, q retrieval.Query, semantic bool) ([]ranking.Candidate, error) {
	entityIDs := sortedKeys(b.entities)
	relIDs := sortedKeys(b.relationships)

	var sims map[model.Ref]float64
	if semantic {
		refs := make([]model.Ref, 0, len(entityIDs)+len(relIDs))
		for _, id := range entityIDs {
			refs = append(refs, model.Ref{Kind: model.RefEntity, ID: id})
		}
		for _, id := range relIDs {
			for _, ev := range b.relValues[id].EvidenceIDs {
				refs = append(refs, model.Ref{Kind: model.RefEvidence, ID: ev})
			}
		}
		var err error
		if sims, err = r.Score(q, refs); err != nil {
			return nil, err
		}
	}

	out := make([]ranking.Candidate, 0, len(entityIDs)+len(relIDs))
	for _, id := range entityIDs {
		e, ok := b.index.Entity(id)
		if !ok {
			continue
		}
		hit := b.entities[id]
		incident := b.index.Incident(id)
		out = append(out, ranking.Candidate{
			Ref:               model.Ref{Kind: model.RefEntity, ID: id},
			Label:             e.Name,
			Semantic:          sims[model.Ref{Kind: model.RefEntity, ID: id}],
			EdgeConfidence:    meanConfidence(incident),
			SourceReliability: e.SourceReliability,
			Evidence:          b.entityEvidence(e, hit.via, incident),
			Hops:              hit.hops,
			Anchors:           []string{id},
		})
	}
	for _, id := range relIDs {
		rel := b.relValues[id]
		var sem float64
		for _, ev := range rel.EvidenceIDs {
			sem = max(sem, sims[model.Ref{Kind: model.RefEvidence, ID: ev}])
		}
		out = append(out, ranking.Candidate{
			Ref:               model.Ref{Kind: model.RefRelationship, ID: id},
			Label:             b.relationshipLabel(rel),
			Semantic:          sem,
			EdgeConfidence:    rel.Confidence,
			SourceReliability: rel.SourceReliability,
			Evidence:          b.index.Evidence(rel.EvidenceIDs...),
			Hops:              b.relationships[id],
			Anchors:           []string{rel.SourceID, rel.TargetID},
		})
	}
	return out, nil
}

// entityEvidence lists the entity's own evidence first, then the evidence of the relationship
// it was reached through. An entity with neither borrows the evidence of its most confident
// live relationship.
func (b *candidateSet) entityEvidence(e model.Entity, via *model.Relationship, incident []model.Relationship) []model.EvidenceReference {
	ids := append([]string(nil), e.EvidenceIDs...)
	if via != nil {
		ids = append(ids, via.EvidenceIDs...)
	}
	if len(ids) == 0 {
		best := -1
		for i, r := range incident {
			if r.Inert() || len(r.EvidenceIDs) == 0 {
				continue
			}
			if best < 0 || r.Confidence > incident[best].Confidence {
				best = i
			}
		}
		if best >= 0 {
			ids = incident[best].EvidenceIDs
		}
	}
	return b.index.Evidence(ids...)
}

func (b *candidateSet) relationshipLabel(r model.Relationship) string {
	name := func(id string) string {
		if e, ok := b.index.Entity(id); ok {
			return e.Name
		}
		return id
	}
	arrow := "--"
	if r.Directed {
		arrow = "->"
	}
	return fmt.Sprintf("%s -[%s]%s %s", name(r.SourceID), r.Type, arrow, name(r.TargetID))
}

// meanConfidence averages over every incident relationship, inert ones included, so raising
// one edge's confidence can only raise the mean.
func meanConfidence(rels []model.Relationship) float64 {
	if len(rels) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rels {
		sum += r.Confidence
	}
	return sum / float64(len(rels))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
