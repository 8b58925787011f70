package core

import (
	"context"
	"sync"

	"github.com/agenthands/argus/internal/core/model"
)

type MockEmbedder struct {
	Version string
	Vector  []float32
	Err     error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

func (m *MockEmbedder) ModelVersion() string { return m.Version }

type MockNarrator struct {
	mu       sync.Mutex
	Response string
	Err      error
	Seen     []*model.QueryResponse
}

func (m *MockNarrator) Narrate(ctx context.Context, resp *model.QueryResponse) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seen = append(m.Seen, resp)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
