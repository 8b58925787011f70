package structure

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenthands/argus/internal/core/community"
	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, ids []string, edges [][2]string, conf float64) *graph.Index {
	t.Helper()
	g := graph.NewIndex()
	for _, id := range ids {
		require.NoError(t, g.UpsertEntity(model.Entity{ID: id, Type: model.EntityPerson, Name: id}))
	}
	for i, e := range edges {
		require.NoError(t, g.UpsertRelationship(model.Relationship{
			ID: fmt.Sprintf("r%d", i), SourceID: e[0], TargetID: e[1], Type: "linked_to", Confidence: conf,
		}))
	}
	return g
}

func clique(n int) ([]string, [][2]string) {
	var ids []string
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("n%d", i))
	}
	var edges [][2]string
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			edges = append(edges, [2]string{ids[i], ids[j]})
		}
	}
	return ids, edges
}

func TestPageRank_UniformClique(t *testing.T) {
	for _, n := range []int{2, 3, 7} {
		ids, edges := clique(n)
		g := build(t, ids, edges, 0.6)

		res, err := PageRank(context.Background(), g.Snapshot(), DefaultPageRankOptions())
		require.NoError(t, err)
		assert.True(t, res.Converged)

		for _, id := range ids {
			assert.InDelta(t, 1/float64(n), res.Scores[id], DefaultEpsilon, "n=%d id=%s", n, id)
		}
	}
}

func TestPageRank_HubOutranksLeaves(t *testing.T) {
	ids := []string{"hub", "a", "b", "c"}
	g := build(t, ids, [][2]string{{"hub", "a"}, {"hub", "b"}, {"hub", "c"}}, 0.9)

	res, err := PageRank(context.Background(), g.Snapshot(), DefaultPageRankOptions())
	require.NoError(t, err)

	var sum float64
	for _, s := range res.Scores {
		sum += s
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, res.Scores["hub"], res.Scores["a"])
	assert.InDelta(t, res.Scores["a"], res.Scores["c"], 1e-12)
}

func TestPageRank_ConfidenceWeighting(t *testing.T) {
	g := graph.NewIndex()
	for _, id := range []string{"src", "strong", "weak"} {
		require.NoError(t, g.UpsertEntity(model.Entity{ID: id, Type: model.EntityPerson, Name: id}))
	}
	require.NoError(t, g.UpsertRelationship(model.Relationship{ID: "1", SourceID: "src", TargetID: "strong", Type: "t", Directed: true, Confidence: 0.9}))
	require.NoError(t, g.UpsertRelationship(model.Relationship{ID: "2", SourceID: "src", TargetID: "weak", Type: "t", Directed: true, Confidence: 0.1}))
	require.NoError(t, g.UpsertRelationship(model.Relationship{ID: "3", SourceID: "src", TargetID: "weak", Type: "t", Directed: true, Confidence: 0}))

	res, err := PageRank(context.Background(), g.Snapshot(), DefaultPageRankOptions())
	require.NoError(t, err)
	assert.Greater(t, res.Scores["strong"], res.Scores["weak"])
}

func TestPageRank_IterationCap(t *testing.T) {
	ids := []string{"hub", "a", "b", "c", "d", "e"}
	var edges [][2]string
	for _, id := range ids[1:] {
		edges = append(edges, [2]string{"hub", id})
	}
	g := build(t, ids, edges, 1)

	opts := DefaultPageRankOptions()
	opts.MaxIterations = 2
	res, err := PageRank(context.Background(), g.Snapshot(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.False(t, res.Converged)
}

func TestPageRank_Empty(t *testing.T) {
	res, err := PageRank(context.Background(), graph.NewIndex().Snapshot(), DefaultPageRankOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.True(t, res.Converged)
}

func TestPageRankOptions_Validate(t *testing.T) {
	cases := []PageRankOptions{
		{Damping: 0, Epsilon: 1e-6, MaxIterations: 10},
		{Damping: 1, Epsilon: 1e-6, MaxIterations: 10},
		{Damping: 0.85, Epsilon: 0, MaxIterations: 10},
		{Damping: 0.85, Epsilon: 1e-6, MaxIterations: 0},
	}
	for _, opts := range cases {
		assert.ErrorIs(t, opts.Validate(), model.ErrConfiguration, "%+v", opts)
	}
	assert.NoError(t, DefaultPageRankOptions().Validate())

	_, err := NewCalculator(cases[0], nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRecompute_DisconnectedPairs(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"c", "d"}}, 0.7)
	calc, err := NewCalculator(DefaultPageRankOptions(), community.NewDetector())
	require.NoError(t, err)

	scores, err := calc.Recompute(context.Background(), g.Snapshot())
	require.NoError(t, err)
	require.Len(t, scores, 4)

	assert.Equal(t, scores["a"].Community, scores["b"].Community)
	assert.Equal(t, scores["c"].Community, scores["d"].Community)
	assert.NotEqual(t, scores["a"].Community, scores["c"].Community)
	for id, s := range scores {
		assert.Equal(t, id, s.EntityID)
		assert.InDelta(t, 0.25, s.Importance, 1e-6)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	assert.True(t, c.Stale(0))
	_, _, ok := c.Snapshot()
	assert.False(t, ok)

	c.Store(4, map[string]model.StructuralScore{"a": {EntityID: "a", Importance: 1}})
	assert.False(t, c.Stale(4))
	assert.True(t, c.Stale(5))

	scores, version, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(4), version)
	assert.Equal(t, 1.0, scores["a"].Importance)
	assert.Equal(t, 1, c.Status().Entities)
}

func TestScheduler_Trigger(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 4)
	s := NewScheduler(0, func(context.Context) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Trigger()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not run")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_Interval(t *testing.T) {
	done := make(chan struct{}, 8)
	s := NewScheduler(10*time.Millisecond, func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return fmt.Errorf("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("interval refresh did not run")
		}
	}
}
