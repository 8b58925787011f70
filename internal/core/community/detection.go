package community

import (
	"context"
	"sort"

	"github.com/agenthands/argus/internal/core/model"
)

// Detector partitions entities into communities. Labels are dense integers starting at 0.
type Detector interface {
	Detect(ctx context.Context, entities []model.Entity, relationships []model.Relationship) (map[string]int, error)
}

func NewDetector() Detector {
	return NewModularityDetector()
}

// Groups inverts a label map into member lists, one per label, each sorted by entity id.
func Groups(labels map[string]int) [][]string {
	n := 0
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	groups := make([][]string, n)
	for id, l := range labels {
		groups[l] = append(groups[l], id)
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return groups
}

// Modularity scores a partition of the undirected, confidence-weighted graph.
// Inert relationships and self-loops are ignored.
func Modularity(labels map[string]int, relationships []model.Relationship) float64 {
	var m float64
	degree := make(map[int]float64)
	internal := make(map[int]float64)
	for _, r := range relationships {
		if !usable(r, labels) {
			continue
		}
		w := r.Confidence
		m += w
		a, b := labels[r.SourceID], labels[r.TargetID]
		degree[a] += w
		degree[b] += w
		if a == b {
			internal[a] += w
		}
	}
	if m == 0 {
		return 0
	}
	var q float64
	for c, d := range degree {
		q += internal[c]/m - (d/(2*m))*(d/(2*m))
	}
	return q
}

func usable(r model.Relationship, members map[string]int) bool {
	if r.Inert() || r.SourceID == r.TargetID {
		return false
	}
	_, src := members[r.SourceID]
	_, dst := members[r.TargetID]
	return src && dst
}
