// Package query turns analyst questions into ranked, evidence-backed responses.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/core/ranking"
	"github.com/agenthands/argus/internal/core/retrieval"
	"github.com/agenthands/argus/internal/core/structure"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("argus/query")

type Options struct {
	HopLimit          int
	MinEdgeConfidence float64
	TopK              int
}

func DefaultOptions() Options {
	return Options{
		HopLimit:          graph.DefaultMaxHops,
		MinEdgeConfidence: graph.DefaultMinEdgeConfidence,
		TopK:              10,
	}
}

func (o Options) Validate() error {
	if o.HopLimit < 1 {
		return model.NewConfigurationError("engine.hop_limit", "must be a positive integer, got %d", o.HopLimit)
	}
	if o.MinEdgeConfidence < 0 || o.MinEdgeConfidence > 1 {
		return model.NewConfigurationError("engine.min_edge_confidence", "must be in [0,1], got %v", o.MinEdgeConfidence)
	}
	if o.TopK < 1 {
		return model.NewConfigurationError("engine.top_k", "must be at least 1, got %d", o.TopK)
	}
	return nil
}

// relationshipSeedLimit caps semantic seeds for relationship queries that name no known entity.
const relationshipSeedLimit = 3

// Orchestrator answers queries against one graph index. It holds no locks of its own; each
// collaborator call sees the latest committed state.
type Orchestrator struct {
	index     *graph.Index
	retriever *retrieval.Retriever
	ranker    *ranking.Ranker
	scores    *structure.Cache
	opts      Options
}

func NewOrchestrator(index *graph.Index, retriever *retrieval.Retriever, ranker *ranking.Ranker, scores *structure.Cache, opts Options) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{index: index, retriever: retriever, ranker: ranker, scores: scores, opts: opts}, nil
}

func (o *Orchestrator) Options() Options {
	return o.opts
}

// Answer classifies the query, gathers candidates for its intent and ranks them. Degraded
// inputs produce warnings; only invalid input, an incompatible query embedding or
// cancellation produce an error.
func (o *Orchestrator) Answer(ctx context.Context, text string) (resp *model.QueryResponse, err error) {
	ctx, span := tracer.Start(ctx, "query.Answer")
	defer span.End()
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError("", "", "query text is empty")
	}

	resolved := o.index.FindByName(text)
	intent := Classify(text, resolved)
	span.SetAttributes(attribute.String("intent", string(intent)), attribute.Int("resolved", len(resolved)))

	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case len(resp.Items) == 0:
			outcome = "empty"
		}
		metrics.QueriesTotal.WithLabelValues(string(intent), outcome).Inc()
		metrics.QueryDuration.WithLabelValues(string(intent)).Observe(time.Since(start).Seconds())
	}()

	resp = &model.QueryResponse{ID: uuid.NewString(), Query: text, Intent: intent, Items: []model.QueryResultItem{}}
	warn := func(code, format string, args ...interface{}) {
		resp.Warnings = append(resp.Warnings, model.Warning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	q, hits, semantic, err := o.semantic(ctx, text, warn)
	if err != nil {
		return nil, err
	}

	b := newCandidateSet(o.index)
	switch intent {
	case model.IntentEntityLookup:
		for _, e := range resolved {
			b.addEntity(e.ID, 0, nil)
		}
		for _, h := range hits {
			if h.Ref.Kind == model.RefEntity {
				b.addEntity(h.Ref.ID, 0, nil)
			}
		}
	case model.IntentRelationship:
		seeds := make([]string, 0, len(resolved))
		for _, e := range resolved {
			seeds = append(seeds, e.ID)
		}
		if len(seeds) == 0 {
			for _, h := range hits {
				if h.Ref.Kind == model.RefEntity && len(seeds) < relationshipSeedLimit {
					seeds = append(seeds, h.Ref.ID)
				}
			}
		}
		if err := o.expand(ctx, b, seeds, o.opts.HopLimit, true); err != nil {
			return nil, err
		}
	default:
		var seeds []string
		for _, h := range hits {
			switch h.Ref.Kind {
			case model.RefEntity:
				seeds = append(seeds, h.Ref.ID)
			case model.RefEvidence:
				for _, r := range o.index.RelationshipsForEvidence(h.Ref.ID) {
					if r.Confidence >= o.opts.MinEdgeConfidence {
						b.addRelationship(r, 0)
					}
				}
			}
		}
		if err := o.expand(ctx, b, seeds, 1, false); err != nil {
			return nil, err
		}
	}

	if b.empty() {
		warn(model.WarnEmptyCandidates, "no entities or relationships matched the query")
		o.finish(resp)
		return resp, nil
	}

	sig := ranking.Signals{Semantic: semantic}
	if scores, version, ok := o.scores.Snapshot(); !ok {
		warn(model.WarnPartialData, "structural scores not computed yet; importance excluded and remaining weights rescaled")
	} else {
		sig.Scores = scores
		if current := o.index.Version(); current != version {
			warn(model.WarnStaleScores, "structural scores computed on graph version %d, current version is %d", version, current)
		}
	}

	candidates, err := b.build(o.retriever, q, semantic)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, rankWarnings := o.ranker.Rank(candidates, sig)
	resp.Items = items
	resp.Warnings = append(resp.Warnings, rankWarnings...)
	if len(items) == 0 {
		warn(model.WarnEmptyCandidates, "%d candidate(s) considered, none reached the minimum fused score", len(candidates))
	}
	o.finish(resp)
	return resp, nil
}

func (o *Orchestrator) finish(resp *model.QueryResponse) {
	for _, w := range resp.Warnings {
		metrics.WarningsTotal.WithLabelValues(w.Code).Inc()
	}
	logger.Debug("query answered", "id", resp.ID, "intent", resp.Intent, "items", len(resp.Items), "warnings", len(resp.Warnings))
}

// semantic embeds the query and runs the vector scan. A missing embedder, an empty corpus or a
// failing embedding service degrade to a warning; an incompatible model version is fatal.
func (o *Orchestrator) semantic(ctx context.Context, text string, warn func(string, string, ...interface{})) (retrieval.Query, []retrieval.Hit, bool, error) {
	if o.retriever == nil || !o.retriever.CanEmbed() {
		warn(model.WarnSemanticUnavailable, "no embedder configured; semantic similarity excluded")
		return retrieval.Query{}, nil, false, nil
	}
	if o.retriever.Store().Len() == 0 {
		warn(model.WarnSemanticUnavailable, "no embeddings stored; semantic similarity excluded")
		return retrieval.Query{}, nil, false, nil
	}

	q, err := o.retriever.EmbedQuery(ctx, text)
	switch {
	case errors.Is(err, model.ErrEmbeddingVersion), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retrieval.Query{}, nil, false, err
	case err != nil:
		logger.Warn("query embedding failed", "err", err)
		warn(model.WarnSemanticUnavailable, "query embedding failed: %v", err)
		return retrieval.Query{}, nil, false, nil
	}

	hits, err := o.retriever.Search(ctx, q, o.opts.TopK)
	if err != nil {
		return retrieval.Query{}, nil, false, err
	}
	return q, hits, true, nil
}

// expand adds every seed and its neighbourhood. Seeds are expanded concurrently.
func (o *Orchestrator) expand(ctx context.Context, b *candidateSet, seeds []string, hops int, withRelationships bool) error {
	results := make([][]graph.Neighbor, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range seeds {
		i, id := i, id
		g.Go(func() error {
			n, err := o.index.Neighbors(gctx, id, hops, o.opts.MinEdgeConfidence)
			if errors.Is(err, model.ErrValidation) {
				// The seed vanished or only has an embedding; skip it.
				return nil
			}
			results[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, ns := range results {
		for _, n := range ns {
			b.addEntity(n.Entity.ID, n.Hops, n.Relationship)
			if withRelationships && n.Relationship != nil {
				b.addRelationship(*n.Relationship, n.Hops)
			}
		}
	}
	return nil
}
