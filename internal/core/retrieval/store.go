package retrieval

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/argus/internal/core/model"
)

type entry struct {
	ref       model.Ref
	version   string
	vector    []float32 // unit length
	createdAt time.Time
}

// Store keeps normalized embedding vectors grouped by model version. Vectors of different
// versions live side by side but are never compared with each other.
type Store struct {
	mu        sync.RWMutex
	byVersion map[string]map[model.Ref]*entry
	dimension int
}

func NewStore() *Store {
	return &Store{byVersion: make(map[string]map[model.Ref]*entry)}
}

// Put stores or replaces the vector for rec's owner under rec's model version. The first
// vector fixes the deployment's dimensionality; later records must match it.
func (s *Store) Put(rec model.EmbeddingRecord, createdAt time.Time) error {
	kind := rec.OwnerKind
	if kind == "" {
		kind = model.RefEntity
	}
	if kind != model.RefEntity && kind != model.RefEvidence {
		return model.NewValidationError(kind, rec.OwnerID, "embeddings belong to entities or evidence")
	}
	if rec.OwnerID == "" || rec.ModelVersion == "" || len(rec.Vector) == 0 {
		return model.NewValidationError(kind, rec.OwnerID, "embedding needs an owner, a model version and a vector")
	}
	unit, ok := normalize(rec.Vector)
	if !ok {
		return model.NewValidationError(kind, rec.OwnerID, "embedding vector has zero or non-finite norm")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = len(unit)
	} else if len(unit) != s.dimension {
		return model.NewValidationError(kind, rec.OwnerID, "embedding has %d dimensions, deployment uses %d", len(unit), s.dimension)
	}

	ref := model.Ref{Kind: kind, ID: rec.OwnerID}
	bucket := s.byVersion[rec.ModelVersion]
	if bucket == nil {
		bucket = make(map[model.Ref]*entry)
		s.byVersion[rec.ModelVersion] = bucket
	}
	if prev, ok := bucket[ref]; ok && !createdAt.IsZero() && createdAt.Before(prev.createdAt) {
		createdAt = prev.createdAt
	}
	bucket[ref] = &entry{ref: ref, version: rec.ModelVersion, vector: unit, createdAt: createdAt}
	return nil
}

func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.byVersion {
		n += len(b)
	}
	return n
}

// Versions lists the model versions present in storage, sorted.
func (s *Store) Versions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionsLocked()
}

func (s *Store) versionsLocked() []string {
	out := make([]string, 0, len(s.byVersion))
	for v := range s.byVersion {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// entries returns the records stored under version, or an EmbeddingVersionError if the
// version has never been seen.
func (s *Store) entries(version string) ([]*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.byVersion[version]
	if !ok {
		return nil, &model.EmbeddingVersionError{Query: version, Known: s.versionsLocked()}
	}
	out := make([]*entry, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) lookup(version string, ref model.Ref) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byVersion[version][ref]
	return e, ok
}

func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// cosine expects unit vectors of equal length. Negative similarity is reported as zero.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
