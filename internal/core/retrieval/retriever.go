// Package retrieval scores stored entity and evidence embeddings against a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agenthands/argus/internal/core/common"
	"github.com/agenthands/argus/internal/core/model"
	"golang.org/x/sync/errgroup"
)

// Embedder turns query text into a vector. ModelVersion must match the tag on stored records.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// ErrNoEmbedder is returned when text retrieval is requested without an embedding collaborator.
var ErrNoEmbedder = errors.New("no embedder configured")

const (
	// parallelScanThreshold is the corpus size above which the exact scan is split across goroutines.
	parallelScanThreshold = 4096
	scanChunk             = 2048

	embedTries     = 3
	embedBaseDelay = 200 * time.Millisecond
)

type Hit struct {
	Ref        model.Ref
	Similarity float64
	CreatedAt  time.Time
}

// Query is an embedded query tied to the model version that produced it.
type Query struct {
	Vector  []float32
	Version string
}

type Retriever struct {
	store    *Store
	embedder Embedder
}

func NewRetriever(store *Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

func (r *Retriever) Store() *Store { return r.store }

// CanEmbed reports whether Retrieve and EmbedQuery can run.
func (r *Retriever) CanEmbed() bool { return r.embedder != nil }

// EmbedQuery embeds text with the configured embedder, retrying transient failures. The
// embedder's version must already be present in storage.
func (r *Retriever) EmbedQuery(ctx context.Context, text string) (Query, error) {
	if r.embedder == nil {
		return Query{}, ErrNoEmbedder
	}
	version := r.embedder.ModelVersion()
	if _, err := r.store.entries(version); err != nil {
		return Query{}, err
	}
	vec, err := common.RetryWithContext(ctx, embedTries, embedBaseDelay, nil, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, text)
	})
	if err != nil {
		return Query{}, fmt.Errorf("failed to embed query: %w", err)
	}
	return Query{Vector: vec, Version: version}, nil
}

// Retrieve embeds text and returns the topK most similar stored items.
func (r *Retriever) Retrieve(ctx context.Context, text string, topK int) ([]Hit, error) {
	q, err := r.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.Search(ctx, q, topK)
}

// Search scans every record of the query's model version. Results are ordered by similarity,
// then by most recent creation time, then by reference.
func (r *Retriever) Search(ctx context.Context, q Query, topK int) ([]Hit, error) {
	entries, err := r.store.entries(q.Version)
	if err != nil {
		return nil, err
	}
	unit, err := r.prepare(q)
	if err != nil {
		return nil, err
	}
	if topK <= 0 || len(entries) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(entries))
	score := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			e := entries[i]
			hits[i] = Hit{Ref: e.ref, Similarity: cosine(unit, e.vector), CreatedAt: e.createdAt}
		}
	}

	if len(entries) < parallelScanThreshold {
		score(0, len(entries))
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for lo := 0; lo < len(entries); lo += scanChunk {
			lo, hi := lo, min(lo+scanChunk, len(entries))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				score(lo, hi)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Score returns the similarity of specific owners to the query. Owners without a record of the
// query's version are absent from the result.
func (r *Retriever) Score(q Query, refs []model.Ref) (map[model.Ref]float64, error) {
	if _, err := r.store.entries(q.Version); err != nil {
		return nil, err
	}
	unit, err := r.prepare(q)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Ref]float64, len(refs))
	for _, ref := range refs {
		if e, ok := r.store.lookup(q.Version, ref); ok {
			out[ref] = cosine(unit, e.vector)
		}
	}
	return out, nil
}

func (r *Retriever) prepare(q Query) ([]float32, error) {
	if dim := r.store.Dimension(); len(q.Vector) != dim {
		return nil, model.NewValidationError("", "", "query vector has %d dimensions, corpus uses %d", len(q.Vector), dim)
	}
	unit, ok := normalize(q.Vector)
	if !ok {
		return nil, model.NewValidationError("", "", "query vector has zero or non-finite norm")
	}
	return unit, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Ref.Kind != b.Ref.Kind {
			return a.Ref.Kind < b.Ref.Kind
		}
		return a.Ref.ID < b.Ref.ID
	})
}
