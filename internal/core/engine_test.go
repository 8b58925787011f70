package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/core/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch() model.ExtractionBatch {
	return model.ExtractionBatch{
		Evidence: []model.EvidenceReference{
			{ID: "ev1", DocumentID: "wire-17", SpanStart: 10, SpanEnd: 64, Excerpt: "Orion Ltd transferred $40,000 to K. Novak"},
			{ID: "ev2", DocumentID: "news-3", SpanStart: 0, SpanEnd: 30, Excerpt: "Novak met Ivanov in Vienna"},
		},
		Entities: []model.Entity{
			{ID: "orion", Type: model.EntityOrganization, Name: "Orion Ltd", SourceReliability: 0.9, EvidenceIDs: []string{"ev1"}},
			{ID: "novak", Type: model.EntityPerson, Name: "Karel Novak", Aliases: []string{"K. Novak"}, SourceReliability: 0.8},
			{ID: "ivanov", Type: model.EntityPerson, Name: "Ivanov", SourceReliability: 0.6},
		},
		// Relationships arrive before their endpoints would be committed if order were not enforced.
		Relationships: []model.Relationship{
			{ID: "r1", SourceID: "orion", TargetID: "novak", Type: "paid", Directed: true, Confidence: model.DeriveConfidence(0.9, 0.9), SourceReliability: 0.9, EvidenceIDs: []string{"ev1"}},
			{ID: "r2", SourceID: "novak", TargetID: "ivanov", Type: "met", Confidence: model.DeriveConfidence(0.7, 0.6), SourceReliability: 0.6, EvidenceIDs: []string{"ev2"}},
			{ID: "r3", SourceID: "orion", TargetID: "ivanov", Type: "mentions", Confidence: 0.05, EvidenceIDs: []string{"ev2"}},
		},
		Embeddings: []model.EmbeddingRecord{
			{OwnerID: "orion", OwnerKind: model.RefEntity, Vector: []float32{1, 0}, ModelVersion: "test-embed-1"},
			{OwnerID: "novak", OwnerKind: model.RefEntity, Vector: []float32{0.6, 0.8}, ModelVersion: "test-embed-1"},
			{OwnerID: "ev2", OwnerKind: model.RefEvidence, Vector: []float32{0, 1}, ModelVersion: "test-embed-1"},
		},
	}
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(opts, &MockEmbedder{Version: "test-embed-1", Vector: []float32{1, 0.1}})
	require.NoError(t, err)
	return e
}

func TestNewEngine_RejectsBadConfiguration(t *testing.T) {
	opts := DefaultOptions()
	opts.Weights = ranking.Weights{Semantic: 0.5, Structural: 0.5, EdgeConfidence: 0.5}
	_, err := NewEngine(opts, nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	opts = DefaultOptions()
	opts.PageRank.Damping = 1.5
	_, err = NewEngine(opts, nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	opts = DefaultOptions()
	opts.Query.HopLimit = 0
	_, err = NewEngine(opts, nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	opts = DefaultOptions()
	opts.MinRelationshipConfidence = 2
	_, err = NewEngine(opts, nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestApply_Idempotent(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	ctx := context.Background()

	res, err := e.Apply(ctx, sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, ApplyResult{Evidence: 2, Entities: 3, Relationships: 3, Embeddings: 3}, res)

	version := e.Index.Version()
	_, err = e.Apply(ctx, sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, version, e.Index.Version())

	stats := e.Stats()
	assert.Equal(t, 3, stats.Graph.Entities)
	assert.Equal(t, 3, stats.Graph.Relationships)
	assert.Equal(t, 3, stats.Embeddings)
	assert.Equal(t, []string{"test-embed-1"}, stats.EmbeddingVersions)
}

func TestApply_ConfidenceFloor(t *testing.T) {
	opts := DefaultOptions()
	opts.MinRelationshipConfidence = 0.1
	e := newEngine(t, opts)

	res, err := e.Apply(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	_, ok := e.Index.Relationship("r3")
	assert.False(t, ok)
}

func TestApply_StopsOnInvalidRecord(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	batch := sampleBatch()
	batch.Relationships = append(batch.Relationships, model.Relationship{ID: "bad", SourceID: "orion", TargetID: "ghost", Type: "paid", Confidence: 0.5})

	res, err := e.Apply(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 3, res.Relationships)
	assert.Zero(t, res.Embeddings)
}

func TestApply_RejectsOrphanEmbedding(t *testing.T) {
	cases := []struct {
		name string
		rec  model.EmbeddingRecord
	}{
		{"entity", model.EmbeddingRecord{OwnerID: "ghost", OwnerKind: model.RefEntity, Vector: []float32{1, 0}, ModelVersion: "test-embed-1"}},
		{"default kind", model.EmbeddingRecord{OwnerID: "ghost", Vector: []float32{1, 0}, ModelVersion: "test-embed-1"}},
		{"evidence", model.EmbeddingRecord{OwnerID: "ev-ghost", OwnerKind: model.RefEvidence, Vector: []float32{1, 0}, ModelVersion: "test-embed-1"}},
		{"relationship", model.EmbeddingRecord{OwnerID: "r1", OwnerKind: model.RefRelationship, Vector: []float32{1, 0}, ModelVersion: "test-embed-1"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t, DefaultOptions())
			batch := sampleBatch()
			batch.Embeddings = append(batch.Embeddings, tc.rec)

			res, err := e.Apply(context.Background(), batch)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.Equal(t, 3, res.Embeddings)
			assert.Equal(t, 3, e.Embeddings.Len())
		})
	}

	var verr *model.ValidationError
	e := newEngine(t, DefaultOptions())
	_, err := e.Apply(context.Background(), model.ExtractionBatch{Embeddings: []model.EmbeddingRecord{
		{OwnerID: "ghost", OwnerKind: model.RefEntity, Vector: []float32{1, 0}, ModelVersion: "test-embed-1"},
	}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ghost", verr.Ref.ID)
	assert.Contains(t, verr.Reason, "owner does not exist")
	assert.Zero(t, e.Embeddings.Len())
}

func TestRefresh(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	ctx := context.Background()
	_, err := e.Apply(ctx, sampleBatch())
	require.NoError(t, err)

	assert.True(t, e.Stats().Stale)
	require.NoError(t, e.Refresh(ctx))
	assert.False(t, e.Stats().Stale)

	scores, version, ok := e.Scores.Snapshot()
	require.True(t, ok)
	assert.Equal(t, e.Index.Version(), version)
	assert.Len(t, scores, 3)

	// Nothing changed: the cached set is kept as is.
	computedAt := e.Scores.Status().ComputedAt
	require.NoError(t, e.Refresh(ctx))
	assert.Equal(t, computedAt, e.Scores.Status().ComputedAt)
}

func TestAnswer_WithNarrative(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	narrator := &MockNarrator{Response: "Orion Ltd paid Karel Novak [entity:orion]."}
	e.Narrator = narrator
	ctx := context.Background()
	_, err := e.Apply(ctx, sampleBatch())
	require.NoError(t, err)
	require.NoError(t, e.Refresh(ctx))

	resp, err := e.Answer(ctx, "who is connected to Orion Ltd")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, model.IntentRelationship, resp.Intent)
	assert.Equal(t, narrator.Response, resp.Narrative)
	require.Len(t, narrator.Seen, 1)
	assert.Equal(t, resp.ID, narrator.Seen[0].ID)

	var ids []string
	for _, it := range resp.Items {
		ids = append(ids, it.Ref.String())
		assert.NotEmpty(t, it.Evidence)
	}
	assert.Contains(t, ids, "entity:ivanov", "two hops through r1 and r2")
	assert.NotContains(t, ids, "relationship:r3", "below the traversal confidence floor")
}

func TestAnswer_NarrativeFailureIsAWarning(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	e.Narrator = &MockNarrator{Err: errors.New("rate limited")}
	ctx := context.Background()
	_, err := e.Apply(ctx, sampleBatch())
	require.NoError(t, err)
	require.NoError(t, e.Refresh(ctx))

	resp, err := e.Answer(ctx, "who is connected to Orion Ltd")
	require.NoError(t, err)
	assert.Empty(t, resp.Narrative)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[len(resp.Warnings)-1].Message, "rate limited")
}

func TestConcurrentApplyRefreshAnswer(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	ctx := context.Background()
	_, err := e.Apply(ctx, sampleBatch())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, err := e.Apply(ctx, model.ExtractionBatch{
				Entities:      []model.Entity{{ID: id, Type: model.EntityPerson, Name: "Person " + id}},
				Relationships: []model.Relationship{{ID: "l" + id, SourceID: "orion", TargetID: id, Type: "paid", Confidence: 0.5}},
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Refresh(ctx))
		}()
		go func() {
			defer wg.Done()
			_, err := e.Answer(ctx, "who is linked to orion ltd")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, e.Refresh(ctx))
	scores, _, _ := e.Scores.Snapshot()
	assert.Len(t, scores, 9)
}
