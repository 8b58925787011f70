package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchJSON = `{"evidence":[{"id":"ev1","document_id":"wire-17","span_start":0,"span_end":40,"excerpt":"Orion Ltd paid K. Novak"}],` +
	`"entities":[{"id":"orion","type":"organization","name":"Orion Ltd","source_reliability":0.9,"evidence_ids":["ev1"]},` +
	`{"id":"novak","type":"person","name":"Karel Novak","source_reliability":0.8}],` +
	`"relationships":[{"id":"r1","source_id":"orion","target_id":"novak","type":"paid","directed":true,"extraction_confidence":0.8,"source_reliability":0.5,"evidence_ids":["ev1"]}]}`

type MockSink struct {
	mu      sync.Mutex
	Err     error
	Batches []model.ExtractionBatch
}

func (m *MockSink) Apply(ctx context.Context, batch model.ExtractionBatch) (core.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return core.ApplyResult{}, m.Err
	}
	m.Batches = append(m.Batches, batch)
	return core.ApplyResult{Entities: len(batch.Entities), Relationships: len(batch.Relationships)}, nil
}

type MockAcknowledger struct {
	Acked   int
	Nacked  int
	Requeue bool
}

func (m *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	m.Acked++
	return nil
}

func (m *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	m.Nacked++
	m.Requeue = requeue
	return nil
}

func (m *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

func TestDecode_DerivesConfidence(t *testing.T) {
	b, err := Decode([]byte(batchJSON))
	require.NoError(t, err)
	require.Len(t, b.Relationships, 1)
	assert.InDelta(t, 0.4, b.Relationships[0].Confidence, 1e-12)
	assert.Len(t, b.Entities, 2)
	assert.Equal(t, "ev1", b.Evidence[0].ID)
}

func TestDecode_ExplicitConfidenceKept(t *testing.T) {
	b, err := Decode([]byte(`{"relationships":[{"id":"r","source_id":"a","target_id":"b","type":"met","confidence":0.65,"source_reliability":0.5}]}`))
	require.NoError(t, err)
	assert.InDelta(t, 0.65, b.Relationships[0].Confidence, 1e-12)
}

func TestDecode_MissingEvidenceIDIsStable(t *testing.T) {
	raw := []byte(`{"evidence":[{"document_id":"doc-1","span_start":5,"span_end":9,"excerpt":"x"}]}`)
	a, err := Decode(raw)
	require.NoError(t, err)
	b, err := Decode(raw)
	require.NoError(t, err)
	require.NotEmpty(t, a.Evidence[0].ID)
	assert.Equal(t, a.Evidence[0].ID, b.Evidence[0].ID)

	other, err := Decode([]byte(`{"evidence":[{"document_id":"doc-1","span_start":5,"span_end":10,"excerpt":"x"}]}`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Evidence[0].ID, other.Evidence[0].ID)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"entities": [`))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = Decode([]byte(`{"nodes": []}`))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDecodeLines(t *testing.T) {
	input := batchJSON + "\n\n" + `{"entities":[{"id":"ivanov","type":"person","name":"Ivanov","source_reliability":0.6}]}` + "\n"
	b, err := DecodeLines(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, b.Entities, 3)
	assert.Len(t, b.Relationships, 1)

	_, err = DecodeLines(strings.NewReader(batchJSON + "\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDecode_AppliesToEngine(t *testing.T) {
	b, err := Decode([]byte(batchJSON))
	require.NoError(t, err)
	e, err := core.NewEngine(core.DefaultOptions(), nil)
	require.NoError(t, err)

	res, err := e.Apply(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entities)
	assert.Equal(t, 1, res.Relationships)

	rel, ok := e.Index.Relationship("r1")
	require.True(t, ok)
	assert.InDelta(t, 0.4, rel.Confidence, 1e-12)
}

func delivery(body string, redelivered bool) (amqp091.Delivery, *MockAcknowledger) {
	ack := &MockAcknowledger{}
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte(body), Redelivered: redelivered}, ack
}

func TestConsumer_AcksAppliedBatch(t *testing.T) {
	sink := &MockSink{}
	notified := 0
	c := &Consumer{sink: sink, notify: func() { notified++ }}

	msg, ack := delivery(batchJSON, false)
	c.handle(context.Background(), msg)

	assert.Equal(t, 1, ack.Acked)
	assert.Equal(t, 0, ack.Nacked)
	assert.Equal(t, 1, notified)
	assert.Len(t, sink.Batches, 1)
}

func TestConsumer_RejectsMalformedWithoutRequeue(t *testing.T) {
	sink := &MockSink{}
	c := &Consumer{sink: sink}

	msg, ack := delivery("{broken", false)
	c.handle(context.Background(), msg)

	assert.Equal(t, 0, ack.Acked)
	assert.Equal(t, 1, ack.Nacked)
	assert.False(t, ack.Requeue)
	assert.Empty(t, sink.Batches)
}

func TestConsumer_RejectsInvalidBatch(t *testing.T) {
	sink := &MockSink{Err: model.NewValidationError(model.RefRelationship, "r1", "unknown endpoint")}
	c := &Consumer{sink: sink}

	msg, ack := delivery(batchJSON, false)
	c.handle(context.Background(), msg)

	assert.Equal(t, 1, ack.Nacked)
	assert.False(t, ack.Requeue)
}

func TestConsumer_RequeuesTransientFailureOnce(t *testing.T) {
	sink := &MockSink{Err: errors.New("index busy")}
	c := &Consumer{sink: sink}

	msg, ack := delivery(batchJSON, false)
	c.handle(context.Background(), msg)
	assert.True(t, ack.Requeue)

	msg, ack = delivery(batchJSON, true)
	c.handle(context.Background(), msg)
	assert.False(t, ack.Requeue)
}

func TestConsumer_RequeuesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Consumer{sink: &MockSink{Err: context.Canceled}}

	msg, ack := delivery(batchJSON, true)
	c.handle(ctx, msg)
	assert.Equal(t, 1, ack.Nacked)
	assert.True(t, ack.Requeue)
}

func TestWatcher_AppliesExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.jsonl"), []byte(batchJSON+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	sink := &MockSink{}
	triggered := make(chan struct{}, 4)
	w, err := NewWatcher(dir, sink, func() { triggered <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, triggered)
	sink.mu.Lock()
	assert.Len(t, sink.Batches, 1)
	sink.mu.Unlock()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.jsonl"), []byte(`{"entities":[{"id":"x","type":"person","name":"X","source_reliability":1}]}`+"\n"), 0o644))
	waitFor(t, triggered)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.GreaterOrEqual(t, len(sink.Batches), 2)
	assert.Equal(t, "x", sink.Batches[len(sink.Batches)-1].Entities[0].ID)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func TestWatcher_ApplyFile(t *testing.T) {
	dir := t.TempDir()
	w := &Watcher{dir: dir, sink: &MockSink{}}

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("nope\n"), 0o644))
	assert.False(t, w.ApplyFile(context.Background(), bad))

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, w.ApplyFile(context.Background(), empty))

	assert.False(t, w.ApplyFile(context.Background(), filepath.Join(dir, "missing.jsonl")))

	good := filepath.Join(dir, "good.jsonl")
	require.NoError(t, os.WriteFile(good, []byte(batchJSON), 0o644))
	assert.True(t, w.ApplyFile(context.Background(), good))
}

func TestIsBatchFile(t *testing.T) {
	assert.True(t, isBatchFile("/tmp/a.jsonl"))
	assert.True(t, isBatchFile("B.JSONL"))
	assert.False(t, isBatchFile("a.json"))
}
