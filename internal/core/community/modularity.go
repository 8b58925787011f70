package community

import (
	"container/heap"
	"context"
	"sort"

	"github.com/agenthands/argus/internal/core/model"
)

const gainTolerance = 1e-12

// ModularityDetector implements greedy agglomerative modularity optimisation (Clauset-Newman-Moore).
// Each step merges the connected pair of communities with the largest modularity gain and
// stops once no merge improves modularity. Gains within gainTolerance of the best count as
// equal and go to the pair whose smallest member ids sort first, so identical input always
// yields identical labels.
//
// Candidate merges live in a max-heap keyed by gain. A merge only changes the gains of pairs
// that touch the merged cluster, so those are pushed again under a new cluster version and
// the old entries are discarded when they surface.
type ModularityDetector struct{}

func NewModularityDetector() *ModularityDetector {
	return &ModularityDetector{}
}

type cluster struct {
	minID   string
	members []string
	degree  float64
	links   map[int]float64
	version int
}

func (d *ModularityDetector) Detect(ctx context.Context, entities []model.Entity, relationships []model.Relationship) (map[string]int, error) {
	if len(entities) == 0 {
		return map[string]int{}, nil
	}

	ids := make([]string, 0, len(entities))
	index := make(map[string]int, len(entities))
	for _, e := range entities {
		if _, dup := index[e.ID]; dup {
			continue
		}
		index[e.ID] = 0
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)

	clusters := make(map[int]*cluster, len(ids))
	for i, id := range ids {
		index[id] = i
		clusters[i] = &cluster{minID: id, members: []string{id}, links: make(map[int]float64)}
	}

	// Undirected weights; parallel edges accumulate.
	var m float64
	for _, r := range relationships {
		if !usable(r, index) {
			continue
		}
		a, b := index[r.SourceID], index[r.TargetID]
		w := r.Confidence
		m += w
		clusters[a].degree += w
		clusters[b].degree += w
		clusters[a].links[b] += w
		clusters[b].links[a] += w
	}
	if m == 0 {
		return labelClusters(clusters), nil
	}

	q := &mergeQueue{}
	for a := range ids {
		for b := range clusters[a].links {
			if a < b {
				q.offer(clusters, a, b, m)
			}
		}
	}
	heap.Init(q)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, ok := q.next(clusters)
		if !ok {
			break
		}
		a := merge(clusters, best.a, best.b)
		for c := range clusters[a].links {
			q.push(clusters, a, c, m)
		}
	}

	return labelClusters(clusters), nil
}

// merge folds the cluster with fewer links into the other and returns the survivor.
func merge(clusters map[int]*cluster, a, b int) int {
	if len(clusters[a].links) < len(clusters[b].links) {
		a, b = b, a
	}
	ca, cb := clusters[a], clusters[b]
	ca.members = append(ca.members, cb.members...)
	ca.degree += cb.degree
	ca.version++
	if cb.minID < ca.minID {
		ca.minID = cb.minID
	}
	for c, w := range cb.links {
		if c == a {
			continue
		}
		ca.links[c] += w
		other := clusters[c].links
		other[a] += w
		delete(other, b)
	}
	delete(ca.links, b)
	delete(clusters, b)
	return a
}

// candidate is a possible merge of clusters a and b, valid while both still carry the
// versions recorded here.
type candidate struct {
	a, b      int
	va, vb    int
	gain      float64
	low, high string
}

func (c candidate) valid(clusters map[int]*cluster) bool {
	ca, okA := clusters[c.a]
	cb, okB := clusters[c.b]
	return okA && okB && ca.version == c.va && cb.version == c.vb
}

func (c candidate) before(o candidate) bool {
	if c.low != o.low {
		return c.low < o.low
	}
	return c.high < o.high
}

type mergeQueue []candidate

func (q mergeQueue) Len() int { return len(q) }

func (q mergeQueue) Less(i, j int) bool {
	if q[i].gain != q[j].gain {
		return q[i].gain > q[j].gain
	}
	return q[i].before(q[j])
}

func (q mergeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *mergeQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *mergeQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

func newCandidate(clusters map[int]*cluster, a, b int, m float64) (candidate, bool) {
	ca, cb := clusters[a], clusters[b]
	gain := ca.links[b]/m - ca.degree*cb.degree/(2*m*m)
	if gain <= gainTolerance {
		return candidate{}, false
	}
	low, high := orderedPair(ca.minID, cb.minID)
	return candidate{a: a, b: b, va: ca.version, vb: cb.version, gain: gain, low: low, high: high}, true
}

// offer appends without restoring the heap order; call heap.Init afterwards.
func (q *mergeQueue) offer(clusters map[int]*cluster, a, b int, m float64) {
	if c, ok := newCandidate(clusters, a, b, m); ok {
		*q = append(*q, c)
	}
}

func (q *mergeQueue) push(clusters map[int]*cluster, a, b int, m float64) {
	if c, ok := newCandidate(clusters, a, b, m); ok {
		heap.Push(q, c)
	}
}

// next pops the best valid merge. Valid candidates whose gain is within gainTolerance of the
// best are compared by member ids, and the ones not chosen go back on the heap.
func (q *mergeQueue) next(clusters map[int]*cluster) (candidate, bool) {
	var tied []candidate
	for q.Len() > 0 {
		top := (*q)[0]
		if len(tied) > 0 && top.gain < tied[0].gain-gainTolerance {
			break
		}
		heap.Pop(q)
		if top.valid(clusters) {
			tied = append(tied, top)
		}
	}
	if len(tied) == 0 {
		return candidate{}, false
	}
	best := 0
	for i := 1; i < len(tied); i++ {
		if tied[i].before(tied[best]) {
			best = i
		}
	}
	for i, c := range tied {
		if i != best {
			heap.Push(q, c)
		}
	}
	return tied[best], true
}

func orderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// labelClusters numbers clusters by their smallest member id.
func labelClusters(clusters map[int]*cluster) map[string]int {
	ordered := make([]*cluster, 0, len(clusters))
	for _, c := range clusters {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].minID < ordered[j].minID })

	labels := make(map[string]int)
	for label, c := range ordered {
		for _, id := range c.members {
			labels[id] = label
		}
	}
	return labels
}
