// Package ranking fuses semantic, structural, edge and source signals into one ordered result list.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/agenthands/argus/internal/core/model"
)

// Candidate is one entity or relationship considered for the response.
type Candidate struct {
	Ref   model.Ref
	Label string
	// Semantic is the cosine similarity to the query in [0,1].
	Semantic float64
	// EdgeConfidence is the mean confidence of the entity's incident relationships, or the
	// relationship's own confidence.
	EdgeConfidence    float64
	SourceReliability float64
	Evidence          []model.EvidenceReference
	Hops              int
	// Anchors are the entity ids whose structural importance stands for the candidate: the
	// entity itself, or both endpoints of a relationship.
	Anchors []string
}

// Signals tells the ranker which optional inputs are available for this query.
type Signals struct {
	Semantic bool
	// Scores is nil when structural scores have not been computed.
	Scores map[string]model.StructuralScore
}

type Ranker struct {
	weights  Weights
	minScore float64
}

func NewRanker(weights Weights, minScore float64) (*Ranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if minScore < 0 || minScore > 1 || math.IsNaN(minScore) {
		return nil, model.NewConfigurationError("engine.min_fused_score", "must be in [0,1], got %v", minScore)
	}
	return &Ranker{weights: weights, minScore: minScore}, nil
}

func (r *Ranker) Weights() Weights { return r.weights }

type scored struct {
	Candidate
	importance float64
	hasAnchor  bool
	norm       float64
	weights    Weights
	score      float64
}

// Rank scores, filters and orders candidates. Candidates without evidence are dropped and
// reported in a warning. Identical inputs always produce the identical sequence.
func (r *Ranker) Rank(candidates []Candidate, sig Signals) ([]model.QueryResultItem, []model.Warning) {
	structural := sig.Scores != nil
	w := r.weights.effective(sig.Semantic, structural)
	// Candidates added after the last recompute have no score of their own.
	unscoredW := r.weights.effective(sig.Semantic, false)

	var warnings []model.Warning
	var unsupported, unscored []string
	items := make([]*scored, 0, len(candidates))
	for _, c := range dedupe(candidates) {
		if len(c.Evidence) == 0 {
			unsupported = append(unsupported, c.Ref.String())
			continue
		}
		s := &scored{Candidate: c}
		if structural {
			s.importance, s.hasAnchor = anchorImportance(c.Anchors, sig.Scores)
			if !s.hasAnchor {
				unscored = append(unscored, c.Ref.String())
			}
		}
		items = append(items, s)
	}
	if len(unscored) > 0 {
		sort.Strings(unscored)
		msg := fmt.Sprintf("%d candidate(s) have no structural score yet; importance excluded and remaining weights rescaled for: %s",
			len(unscored), strings.Join(unscored, ", "))
		warnings = append(warnings, model.Warning{Code: model.WarnPartialData, Message: msg})
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		warnings = append(warnings, model.Warning{
			Code:    model.WarnUnsupportedDropped,
			Message: fmt.Sprintf("%d candidate(s) without evidence dropped: %s", len(unsupported), strings.Join(unsupported, ", ")),
		})
	}

	normalizeImportance(items)

	kept := items[:0]
	for _, s := range items {
		s.weights = w
		if structural && !s.hasAnchor {
			s.weights = unscoredW
		}
		s.score = s.weights.Semantic*clamp(s.Semantic) +
			s.weights.Structural*s.norm +
			s.weights.EdgeConfidence*clamp(s.EdgeConfidence) +
			s.weights.SourceReliability*clamp(s.SourceReliability)
		if s.score >= r.minScore && s.score > 0 {
			kept = append(kept, s)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ka, kb := kindOrder(a.Ref.Kind), kindOrder(b.Ref.Kind); ka != kb {
			return ka < kb
		}
		return a.Ref.ID < b.Ref.ID
	})

	out := make([]model.QueryResultItem, 0, len(kept))
	for i, s := range kept {
		item := model.QueryResultItem{
			Rank:        i + 1,
			Ref:         s.Ref,
			Label:       s.Label,
			Score:       s.score,
			Evidence:    s.Evidence,
			Explanation: explain(s, sig.Semantic, structural),
			Hops:        s.Hops,
		}
		if structural && s.Ref.Kind == model.RefEntity {
			if sc, ok := sig.Scores[s.Ref.ID]; ok {
				community := sc.Community
				item.Community = &community
			}
		}
		out = append(out, item)
	}
	return out, warnings
}

// dedupe merges repeated references, keeping the strongest similarity and the shortest hop count.
func dedupe(candidates []Candidate) []Candidate {
	pos := make(map[model.Ref]int, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		i, ok := pos[c.Ref]
		if !ok {
			pos[c.Ref] = len(out)
			out = append(out, c)
			continue
		}
		if c.Semantic > out[i].Semantic {
			out[i].Semantic = c.Semantic
		}
		if c.Hops < out[i].Hops {
			out[i].Hops = c.Hops
		}
	}
	return out
}

func anchorImportance(anchors []string, scores map[string]model.StructuralScore) (float64, bool) {
	var sum float64
	var n int
	for _, id := range anchors {
		if sc, ok := scores[id]; ok {
			sum += sc.Importance
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// normalizeImportance min-max scales importance over the candidate set. When every candidate
// has the same importance the signal cannot discriminate, so it maps to 1 (or 0 if that
// importance is 0).
func normalizeImportance(items []*scored) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range items {
		if !s.hasAnchor {
			continue
		}
		lo = math.Min(lo, s.importance)
		hi = math.Max(hi, s.importance)
	}
	for _, s := range items {
		switch {
		case !s.hasAnchor:
			s.norm = 0
		case hi > lo:
			s.norm = (s.importance - lo) / (hi - lo)
		case hi > 0:
			s.norm = 1
		default:
			s.norm = 0
		}
	}
}

func explain(s *scored, semantic, structural bool) string {
	w := s.weights
	parts := make([]string, 0, 5)
	if semantic {
		parts = append(parts, contribution("semantic", w.Semantic, clamp(s.Semantic)))
	} else {
		parts = append(parts, "semantic excluded (no query embedding)")
	}
	switch {
	case structural && s.hasAnchor:
		parts = append(parts, contribution("importance", w.Structural, s.norm))
	case structural:
		parts = append(parts, "importance excluded (not scored since the last recompute)")
	default:
		parts = append(parts, "importance excluded (structural scores unavailable)")
	}
	parts = append(parts,
		contribution("edge confidence", w.EdgeConfidence, clamp(s.EdgeConfidence)),
		contribution("source reliability", w.SourceReliability, clamp(s.SourceReliability)),
	)
	if s.Hops > 0 {
		parts = append(parts, fmt.Sprintf("reached in %d hop(s)", s.Hops))
	}
	return fmt.Sprintf("%s; total %.3f", strings.Join(parts, "; "), s.score)
}

func contribution(name string, weight, value float64) string {
	return fmt.Sprintf("%s %.3f x %.3f = %.3f", name, weight, value, weight*value)
}

func kindOrder(k model.RefKind) int {
	switch k {
	case model.RefEntity:
		return 0
	case model.RefRelationship:
		return 1
	default:
		return 2
	}
}

func clamp(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
