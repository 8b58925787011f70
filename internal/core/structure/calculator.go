// Package structure derives structural importance and community labels from graph snapshots.
package structure

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/argus/internal/core/community"
	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Calculator struct {
	opts     PageRankOptions
	detector community.Detector
}

func NewCalculator(opts PageRankOptions, detector community.Detector) (*Calculator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		detector = community.NewDetector()
	}
	return &Calculator{opts: opts, detector: detector}, nil
}

// Recompute scores every entity in the snapshot from scratch. Centrality and communities are
// always produced together from the same snapshot.
func (c *Calculator) Recompute(ctx context.Context, snap *graph.Snapshot) (map[string]model.StructuralScore, error) {
	ctx, span := tracer.Start(ctx, "structure.Recompute", trace.WithAttributes(
		attribute.Int64("graph_version", int64(snap.Version)),
	))
	defer span.End()
	start := time.Now()

	pr, err := PageRank(ctx, snap, c.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to compute importance: %w", err)
	}
	if !pr.Converged {
		logger.Warn("importance did not converge", "iterations", pr.Iterations, "delta", pr.Delta)
	}

	entities := make([]model.Entity, 0, len(snap.Entities))
	for _, id := range snap.EntityIDs() {
		entities = append(entities, snap.Entities[id])
	}
	relationships := make([]model.Relationship, 0, len(snap.Relationships))
	for _, id := range snap.RelationshipIDs() {
		relationships = append(relationships, snap.Relationships[id])
	}
	labels, err := c.detector.Detect(ctx, entities, relationships)
	if err != nil {
		return nil, fmt.Errorf("failed to detect communities: %w", err)
	}

	scores := make(map[string]model.StructuralScore, len(entities))
	for _, e := range entities {
		scores[e.ID] = model.StructuralScore{
			EntityID:   e.ID,
			Importance: pr.Scores[e.ID],
			Community:  labels[e.ID],
		}
	}

	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	metrics.RecomputeIterations.Observe(float64(pr.Iterations))
	logger.Debug("structural scores recomputed",
		"version", snap.Version,
		"entities", len(scores),
		"iterations", pr.Iterations,
		"communities", len(community.Groups(labels)),
	)
	return scores, nil
}
