package structure

import (
	"context"
	"math"

	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("argus/structure")

const (
	DefaultDamping       = 0.85
	DefaultEpsilon       = 1e-6
	DefaultMaxIterations = 100
)

type PageRankOptions struct {
	Damping       float64
	Epsilon       float64
	MaxIterations int
}

func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		Damping:       DefaultDamping,
		Epsilon:       DefaultEpsilon,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate rejects out-of-range parameters instead of silently defaulting them.
func (o PageRankOptions) Validate() error {
	if !(o.Damping > 0 && o.Damping < 1) {
		return model.NewConfigurationError("structure.damping", "must be in (0,1), got %v", o.Damping)
	}
	if !(o.Epsilon > 0) {
		return model.NewConfigurationError("structure.epsilon", "must be positive, got %v", o.Epsilon)
	}
	if o.MaxIterations < 1 {
		return model.NewConfigurationError("structure.max_iterations", "must be at least 1, got %d", o.MaxIterations)
	}
	return nil
}

type PageRankResult struct {
	Scores     map[string]float64
	Iterations int
	Converged  bool
	// Delta is the L1 change of the last iteration.
	Delta float64
}

// PageRank runs confidence-weighted power iteration over the snapshot. Undirected
// relationships carry rank both ways. Rank held by nodes without outgoing weight is spread
// evenly over all nodes so the scores keep summing to one.
func PageRank(ctx context.Context, snap *graph.Snapshot, opts PageRankOptions) (*PageRankResult, error) {
	ctx, span := tracer.Start(ctx, "structure.PageRank", trace.WithAttributes(
		attribute.Int("node_count", len(snap.Entities)),
		attribute.Int("edge_count", len(snap.Relationships)),
	))
	defer span.End()

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ids := snap.EntityIDs()
	n := len(ids)
	if n == 0 {
		return &PageRankResult{Scores: map[string]float64{}, Converged: true}, nil
	}
	pos := make(map[string]int, n)
	for i, id := range ids {
		pos[id] = i
	}

	type inEdge struct {
		from   int
		weight float64
	}
	incoming := make([][]inEdge, n)
	outWeight := make([]float64, n)
	addArc := func(from, to string, w float64) {
		f, t := pos[from], pos[to]
		incoming[t] = append(incoming[t], inEdge{from: f, weight: w})
		outWeight[f] += w
	}
	for _, relID := range snap.RelationshipIDs() {
		r := snap.Relationships[relID]
		if r.Inert() {
			continue
		}
		_, src := pos[r.SourceID]
		_, dst := pos[r.TargetID]
		if !src || !dst {
			continue
		}
		addArc(r.SourceID, r.TargetID, r.Confidence)
		if !r.Directed && r.SourceID != r.TargetID {
			addArc(r.TargetID, r.SourceID, r.Confidence)
		}
	}

	var sinks []int
	for i, w := range outWeight {
		if w == 0 {
			sinks = append(sinks, i)
		}
	}

	d := opts.Damping
	N := float64(n)
	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / N
	}

	res := &PageRankResult{}
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			span.AddEvent("cancelled", trace.WithAttributes(attribute.Int("iterations_completed", iter)))
			return nil, err
		}

		var sinkMass float64
		for _, s := range sinks {
			sinkMass += scores[s]
		}
		base := (1-d)/N + d*sinkMass/N

		var delta float64
		for i := range next {
			v := base
			for _, e := range incoming[i] {
				v += d * scores[e.from] * e.weight / outWeight[e.from]
			}
			next[i] = v
			delta += math.Abs(v - scores[i])
		}
		scores, next = next, scores

		res.Iterations = iter + 1
		res.Delta = delta
		if delta < opts.Epsilon {
			res.Converged = true
			break
		}
	}

	res.Scores = make(map[string]float64, n)
	for i, id := range ids {
		res.Scores[id] = scores[i]
	}

	span.SetAttributes(
		attribute.Int("iterations", res.Iterations),
		attribute.Bool("converged", res.Converged),
		attribute.Float64("delta", res.Delta),
	)
	return res, nil
}
