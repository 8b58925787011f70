// Package ingest turns extraction output delivered over AMQP or dropped into a
// watched directory into engine batches.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agenthands/argus/internal/core/model"
	"github.com/google/uuid"
)

// maxLine bounds a single JSONL record. Batches carrying embeddings get large.
const maxLine = 16 << 20

// evidenceSpace namespaces the IDs generated for evidence that arrives without one.
var evidenceSpace = uuid.MustParse("5b8e7c1e-3f0a-4c4e-9a57-6d2f3e9b1c10")

type wireRelationship struct {
	model.Relationship
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
}

type wireBatch struct {
	Entities      []model.Entity            `json:"entities"`
	Relationships []wireRelationship        `json:"relationships"`
	Evidence      []model.EvidenceReference `json:"evidence"`
	Embeddings    []model.EmbeddingRecord   `json:"embeddings"`
}

// Decode parses one JSON batch. Relationships that carry extraction_confidence get
// confidence = extraction_confidence x source_reliability. Evidence without an ID gets a
// name-based UUID over its document span, so a redelivered batch maps to the same record.
func Decode(data []byte) (model.ExtractionBatch, error) {
	var w wireBatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return model.ExtractionBatch{}, model.NewValidationError("", "", "malformed batch: %v", err)
	}
	return w.batch(), nil
}

// DecodeLines reads a JSONL stream, one batch per line, and merges the lines into a
// single batch. Blank lines are skipped. Errors carry the 1-based line number.
func DecodeLines(r io.Reader) (model.ExtractionBatch, error) {
	var out model.ExtractionBatch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		b, err := Decode(raw)
		if err != nil {
			return model.ExtractionBatch{}, fmt.Errorf("line %d: %w", line, err)
		}
		out = merge(out, b)
	}
	if err := sc.Err(); err != nil {
		return model.ExtractionBatch{}, fmt.Errorf("failed to read batch stream: %w", err)
	}
	return out, nil
}

func (w wireBatch) batch() model.ExtractionBatch {
	b := model.ExtractionBatch{
		Entities:   w.Entities,
		Evidence:   w.Evidence,
		Embeddings: w.Embeddings,
	}
	for i := range b.Evidence {
		if b.Evidence[i].ID == "" {
			b.Evidence[i].ID = evidenceID(b.Evidence[i])
		}
	}
	for _, wr := range w.Relationships {
		rel := wr.Relationship
		if wr.ExtractionConfidence != nil {
			rel.Confidence = model.DeriveConfidence(*wr.ExtractionConfidence, rel.SourceReliability)
		}
		b.Relationships = append(b.Relationships, rel)
	}
	return b
}

func evidenceID(ev model.EvidenceReference) string {
	key := fmt.Sprintf("%s:%d:%d:%s", ev.DocumentID, ev.SpanStart, ev.SpanEnd, ev.Page)
	return uuid.NewSHA1(evidenceSpace, []byte(key)).String()
}

func merge(a, b model.ExtractionBatch) model.ExtractionBatch {
	a.Entities = append(a.Entities, b.Entities...)
	a.Relationships = append(a.Relationships, b.Relationships...)
	a.Evidence = append(a.Evidence, b.Evidence...)
	a.Embeddings = append(a.Embeddings, b.Embeddings...)
	return a
}
