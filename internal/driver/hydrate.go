package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/argus/internal/core/common"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/logger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	hydrateTries     = 3
	hydrateBaseDelay = 500 * time.Millisecond
)

// Hydrate reads every evidence item, entity and relationship from the graph store into one
// batch, together with any stored embeddings. Query failures are retried.
func Hydrate(ctx context.Context, d GraphDriver) (model.ExtractionBatch, error) {
	var batch model.ExtractionBatch

	evidence, err := load(ctx, d, LoadEvidenceQuery)
	if err != nil {
		return batch, fmt.Errorf("failed to load evidence: %w", err)
	}
	for _, rec := range evidence.Records {
		ev := model.EvidenceReference{
			ID:         str(rec, "id"),
			DocumentID: str(rec, "document_id"),
			SpanStart:  integer(rec, "span_start"),
			SpanEnd:    integer(rec, "span_end"),
			Page:       str(rec, "page"),
			Excerpt:    str(rec, "excerpt"),
		}
		batch.Evidence = append(batch.Evidence, ev)
		batch.Embeddings = appendEmbedding(batch.Embeddings, rec, ev.ID, model.RefEvidence)
	}

	entities, err := load(ctx, d, LoadEntitiesQuery)
	if err != nil {
		return batch, fmt.Errorf("failed to load entities: %w", err)
	}
	for _, rec := range entities.Records {
		e, err := decodeEntity(rec)
		if err != nil {
			return batch, err
		}
		batch.Entities = append(batch.Entities, e)
		batch.Embeddings = appendEmbedding(batch.Embeddings, rec, e.ID, model.RefEntity)
	}

	relationships, err := load(ctx, d, LoadRelationshipsQuery)
	if err != nil {
		return batch, fmt.Errorf("failed to load relationships: %w", err)
	}
	for _, rec := range relationships.Records {
		r, err := decodeRelationship(rec)
		if err != nil {
			return batch, err
		}
		batch.Relationships = append(batch.Relationships, r)
	}

	logger.Info("graph store read",
		"evidence", len(batch.Evidence),
		"entities", len(batch.Entities),
		"relationships", len(batch.Relationships),
		"embeddings", len(batch.Embeddings),
	)
	return batch, nil
}

func load(ctx context.Context, d GraphDriver, query string) (neo4j.EagerResult, error) {
	return common.RetryWithContext(ctx, hydrateTries, hydrateBaseDelay, nil, func(ctx context.Context) (neo4j.EagerResult, error) {
		return d.ExecuteQuery(ctx, query, nil)
	})
}

func decodeEntity(rec *neo4j.Record) (model.Entity, error) {
	id := str(rec, "id")
	created, err := timestamp(rec, "created_at")
	if err != nil {
		return model.Entity{}, model.NewValidationError(model.RefEntity, id, "%v", err)
	}
	reliability, _ := number(rec, "source_reliability")
	e := model.Entity{
		ID:                id,
		Type:              str(rec, "type"),
		Name:              str(rec, "name"),
		Aliases:           stringList(rec, "aliases"),
		SourceReliability: reliability,
		EvidenceIDs:       stringList(rec, "evidence_ids"),
		CreatedAt:         created,
	}
	if raw, ok := rec.Get("attributes"); ok && raw != nil {
		attrs, ok := raw.(map[string]interface{})
		if !ok {
			return model.Entity{}, model.NewValidationError(model.RefEntity, id, "attributes must be a map, got %T", raw)
		}
		e.Attributes = make(map[string]model.Value, len(attrs))
		for k, v := range attrs {
			val, err := model.ValueOf(v)
			if err != nil {
				return model.Entity{}, model.NewValidationError(model.RefEntity, id, "attribute %q: %v", k, err)
			}
			e.Attributes[k] = val
		}
	}
	return e, nil
}

// decodeRelationship derives confidence from extraction confidence and source reliability
// when the store holds no explicit confidence.
func decodeRelationship(rec *neo4j.Record) (model.Relationship, error) {
	id := str(rec, "id")
	created, err := timestamp(rec, "created_at")
	if err != nil {
		return model.Relationship{}, model.NewValidationError(model.RefRelationship, id, "%v", err)
	}
	reliability, hasReliability := number(rec, "source_reliability")
	confidence, ok := number(rec, "confidence")
	if !ok {
		extraction, _ := number(rec, "extraction_confidence")
		if !hasReliability {
			reliability = 1
		}
		confidence = model.DeriveConfidence(extraction, reliability)
	}
	return model.Relationship{
		ID:                id,
		SourceID:          str(rec, "source_id"),
		TargetID:          str(rec, "target_id"),
		Type:              str(rec, "type"),
		Directed:          boolean(rec, "directed"),
		Confidence:        confidence,
		SourceReliability: reliability,
		EvidenceIDs:       stringList(rec, "evidence_ids"),
		CreatedAt:         created,
	}, nil
}

func appendEmbedding(out []model.EmbeddingRecord, rec *neo4j.Record, owner string, kind model.RefKind) []model.EmbeddingRecord {
	vec := vector(rec, "embedding")
	version := str(rec, "embedding_version")
	if len(vec) == 0 || version == "" {
		return out
	}
	return append(out, model.EmbeddingRecord{OwnerID: owner, OwnerKind: kind, Vector: vec, ModelVersion: version})
}
