package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchJSON = `{"evidence":[{"id":"ev1","document_id":"wire-17","span_start":0,"span_end":40,"excerpt":"Orion Ltd paid K. Novak"}],` +
	`"entities":[{"id":"orion","type":"organization","name":"Orion Ltd","source_reliability":0.9,"evidence_ids":["ev1"]},` +
	`{"id":"novak","type":"person","name":"Karel Novak","aliases":["K. Novak"],"source_reliability":0.8,"evidence_ids":["ev1"]}],` +
	`"relationships":[{"id":"r1","source_id":"orion","target_id":"novak","type":"paid","directed":true,"extraction_confidence":0.8,"source_reliability":0.5,"evidence_ids":["ev1"]}]}`

func setup(t *testing.T) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e, err := core.NewEngine(core.DefaultOptions(), nil)
	require.NoError(t, err)
	triggered := 0
	s := NewServer(e, func() { triggered++ })
	return s.SetupRouter(), &triggered
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ingestBatch(t *testing.T, r *gin.Engine) {
	t.Helper()
	w := do(r, "POST", "/ingest", batchJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestIngest(t *testing.T) {
	r, triggered := setup(t)

	w := do(r, "POST", "/ingest", batchJSON)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Applied core.ApplyResult `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Applied.Entities)
	assert.Equal(t, 1, body.Applied.Relationships)
	assert.Equal(t, 1, *triggered)
}

func TestIngest_Rejected(t *testing.T) {
	r, triggered := setup(t)

	w := do(r, "POST", "/ingest", `{"entities": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "POST", "/ingest", `{"relationships":[{"id":"r","source_id":"a","target_id":"b","type":"met","confidence":0.5}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, *triggered)
}

func TestIngest_TooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e, err := core.NewEngine(core.DefaultOptions(), nil)
	require.NoError(t, err)
	triggered := 0
	s := NewServer(e, func() { triggered++ })
	s.MaxBodyBytes = int64(len(batchJSON)) - 1
	r := s.SetupRouter()

	w := do(r, "POST", "/ingest", batchJSON)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "exceeds")
	assert.Zero(t, e.Stats().Graph.Entities)
	assert.Zero(t, triggered)

	s.MaxBodyBytes = int64(len(batchJSON))
	w = do(s.SetupRouter(), "POST", "/ingest", batchJSON)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.NewValidationError(model.RefEntity, "x", "bad"), http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrEmbeddingVersion, http.StatusConflict},
		{model.NewConfigurationError("engine.weights", "must sum to 1.0"), http.StatusInternalServerError},
		{fmt.Errorf("refresh: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{context.Canceled, statusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestQuery(t *testing.T) {
	r, _ := setup(t)
	ingestBatch(t, r)

	w := do(r, "POST", "/query", `{"query":"Who is Orion Ltd?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	require.NotEmpty(t, resp.Items)
	for _, item := range resp.Items {
		assert.NotEmpty(t, item.Evidence)
	}

	codes := map[string]bool{}
	for _, warn := range resp.Warnings {
		codes[warn.Code] = true
	}
	assert.True(t, codes[model.WarnSemanticUnavailable])
}

func TestQuery_BadRequest(t *testing.T) {
	r, _ := setup(t)

	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/query", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/query", `{"query":"   "}`).Code)
}

func TestRecomputeAndStats(t *testing.T) {
	r, _ := setup(t)
	ingestBatch(t, r)

	var before core.Stats
	w := do(r, "GET", "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.True(t, before.Stale)
	assert.Equal(t, 2, before.Graph.Entities)

	w = do(r, "POST", "/recompute", "")
	require.Equal(t, http.StatusOK, w.Code)
	var after core.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.False(t, after.Stale)
	assert.True(t, after.Scores.Ready)
}

func TestNeighbors(t *testing.T) {
	r, _ := setup(t)
	ingestBatch(t, r)

	w := do(r, "GET", "/entities/orion/neighbors?hops=1&min_confidence=0.3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Neighbors []neighborView `json:"neighbors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Neighbors, 2)
	assert.Equal(t, "orion", body.Neighbors[0].Entity.ID)
	assert.Equal(t, "novak", body.Neighbors[1].Entity.ID)
	assert.InDelta(t, 0.4, body.Neighbors[1].PathConfidence, 1e-9)

	// r1 has confidence 0.4 and is pruned above it.
	w = do(r, "GET", "/entities/orion/neighbors?min_confidence=0.5", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Neighbors, 1)

	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/entities/ghost/neighbors", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/entities/orion/neighbors?hops=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/entities/orion/neighbors?min_confidence=2", "").Code)
}

func TestFilter(t *testing.T) {
	r, _ := setup(t)
	ingestBatch(t, r)

	w := do(r, "GET", "/graph/filter?type=person", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view graphView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Entities, 1)
	assert.Equal(t, "novak", view.Entities[0].ID)
	assert.Empty(t, view.Relationships)

	w = do(r, "GET", "/graph/filter?min_degree=1", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Entities, 2)
	assert.Len(t, view.Relationships, 1)

	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/graph/filter?min_confidence=3", "").Code)
}

func TestMetrics(t *testing.T) {
	r, _ := setup(t)
	ingestBatch(t, r)

	w := do(r, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "argus_ingest_batches_total")
}
