// Package core wires the graph index, structural scoring, semantic retrieval, ranking and query
// orchestration into one engine instance.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agenthands/argus/internal/core/community"
	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/core/query"
	"github.com/agenthands/argus/internal/core/ranking"
	"github.com/agenthands/argus/internal/core/retrieval"
	"github.com/agenthands/argus/internal/core/structure"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
)

// Narrator writes a short prose answer over an already ranked response.
type Narrator interface {
	Narrate(ctx context.Context, resp *model.QueryResponse) (string, error)
}

type Options struct {
	Query    query.Options
	Weights  ranking.Weights
	MinScore float64
	PageRank structure.PageRankOptions
	// MinRelationshipConfidence drops weaker relationships at ingest. Zero keeps everything,
	// inert relationships included.
	MinRelationshipConfidence float64
}

func DefaultOptions() Options {
	return Options{
		Query:    query.DefaultOptions(),
		Weights:  ranking.DefaultWeights(),
		MinScore: ranking.DefaultMinScore,
		PageRank: structure.DefaultPageRankOptions(),
	}
}

type Engine struct {
	Index        *graph.Index
	Embeddings   *retrieval.Store
	Retriever    *retrieval.Retriever
	Scores       *structure.Cache
	Calculator   *structure.Calculator
	Orchestrator *query.Orchestrator
	Narrator     Narrator

	minRelConfidence float64
	refreshMu        sync.Mutex
}

// NewEngine validates every tunable up front; a bad value fails with a ConfigurationError.
// embedder may be nil, in which case queries run without the semantic signal.
func NewEngine(opts Options, embedder retrieval.Embedder) (*Engine, error) {
	if opts.MinRelationshipConfidence < 0 || opts.MinRelationshipConfidence > 1 {
		return nil, model.NewConfigurationError("ingest.min_relationship_confidence", "must be in [0,1], got %v", opts.MinRelationshipConfidence)
	}
	ranker, err := ranking.NewRanker(opts.Weights, opts.MinScore)
	if err != nil {
		return nil, err
	}
	calc, err := structure.NewCalculator(opts.PageRank, community.NewDetector())
	if err != nil {
		return nil, err
	}

	index := graph.NewIndex()
	store := retrieval.NewStore()
	retriever := retrieval.NewRetriever(store, embedder)
	scores := structure.NewCache()
	orch, err := query.NewOrchestrator(index, retriever, ranker, scores, opts.Query)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Index:            index,
		Embeddings:       store,
		Retriever:        retriever,
		Scores:           scores,
		Calculator:       calc,
		Orchestrator:     orch,
		minRelConfidence: opts.MinRelationshipConfidence,
	}, nil
}

type ApplyResult struct {
	Evidence      int `json:"evidence"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Embeddings    int `json:"embeddings"`
	Skipped       int `json:"skipped"`
}

// Apply upserts a batch in dependency order: evidence, entities, relationships, embeddings.
// It stops at the first invalid record. Records applied before the failure stay applied;
// every upsert is idempotent, so redelivering the whole batch is safe.
func (e *Engine) Apply(ctx context.Context, batch model.ExtractionBatch) (ApplyResult, error) {
	var res ApplyResult
	for _, ev := range batch.Evidence {
		if err := e.Index.UpsertEvidence(ev); err != nil {
			return res, err
		}
		res.Evidence++
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	for _, ent := range batch.Entities {
		if err := e.Index.UpsertEntity(ent); err != nil {
			return res, err
		}
		res.Entities++
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	for _, rel := range batch.Relationships {
		if rel.Confidence < e.minRelConfidence {
			res.Skipped++
			continue
		}
		if err := e.Index.UpsertRelationship(rel); err != nil {
			return res, err
		}
		res.Relationships++
	}
	for _, rec := range batch.Embeddings {
		createdAt, err := e.embeddingOwner(rec)
		if err != nil {
			return res, err
		}
		if err := e.Embeddings.Put(rec, createdAt); err != nil {
			return res, err
		}
		res.Embeddings++
	}

	stats := e.Index.Stats()
	metrics.GraphEntities.Set(float64(stats.Entities))
	metrics.GraphRelationships.Set(float64(stats.Relationships))
	logger.Debug("batch applied",
		"entities", res.Entities,
		"relationships", res.Relationships,
		"evidence", res.Evidence,
		"embeddings", res.Embeddings,
		"skipped", res.Skipped,
		"version", stats.Version,
	)
	return res, nil
}

// embeddingOwner checks that the record's owner is indexed and returns the creation time the
// embedding inherits.
func (e *Engine) embeddingOwner(rec model.EmbeddingRecord) (time.Time, error) {
	kind := rec.OwnerKind
	if kind == "" {
		kind = model.RefEntity
	}
	switch kind {
	case model.RefEntity:
		if ent, ok := e.Index.Entity(rec.OwnerID); ok {
			return ent.CreatedAt, nil
		}
	case model.RefEvidence:
		if len(e.Index.Evidence(rec.OwnerID)) > 0 {
			return time.Now().UTC(), nil
		}
	default:
		return time.Time{}, model.NewValidationError(kind, rec.OwnerID, "embeddings belong to entities or evidence")
	}
	return time.Time{}, model.NewValidationError(kind, rec.OwnerID, "owner does not exist")
}

// Refresh recomputes structural scores from a point-in-time snapshot. Calls are serialized;
// a call that finds the scores already current returns without recomputing.
func (e *Engine) Refresh(ctx context.Context) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	if !e.Scores.Stale(e.Index.Version()) {
		return nil
	}
	snap := e.Index.Snapshot()
	scores, err := e.Calculator.Recompute(ctx, snap)
	if err != nil {
		return fmt.Errorf("failed to refresh structural scores: %w", err)
	}
	e.Scores.Store(snap.Version, scores)
	logger.Info("structural scores refreshed", "version", snap.Version, "entities", len(scores))
	return nil
}

// Answer runs the query and, when a narrator is configured, adds a narrative. A failed
// narrative never fails the query.
func (e *Engine) Answer(ctx context.Context, text string) (*model.QueryResponse, error) {
	resp, err := e.Orchestrator.Answer(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.Narrator == nil || len(resp.Items) == 0 {
		return resp, nil
	}
	narrative, err := e.Narrator.Narrate(ctx, resp)
	if err != nil {
		logger.Warn("narrative failed", "query", resp.ID, "err", err)
		resp.Warnings = append(resp.Warnings, model.Warning{
			Code:    model.WarnPartialData,
			Message: fmt.Sprintf("narrative unavailable: %v", err),
		})
		return resp, nil
	}
	resp.Narrative = narrative
	return resp, nil
}

func (e *Engine) Neighbors(ctx context.Context, entityID string, maxHops int, minEdgeConfidence float64) ([]graph.Neighbor, error) {
	return e.Index.Neighbors(ctx, entityID, maxHops, minEdgeConfidence)
}

type Stats struct {
	Graph             graph.Stats           `json:"graph"`
	Scores            structure.CacheStatus `json:"scores"`
	Stale             bool                  `json:"stale"`
	Embeddings        int                   `json:"embeddings"`
	EmbeddingVersions []string              `json:"embedding_versions"`
}

func (e *Engine) Stats() Stats {
	g := e.Index.Stats()
	return Stats{
		Graph:             g,
		Scores:            e.Scores.Status(),
		Stale:             e.Scores.Stale(g.Version),
		Embeddings:        e.Embeddings.Len(),
		EmbeddingVersions: e.Embeddings.Versions(),
	}
}
