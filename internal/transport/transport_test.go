package transport

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brain/internal/config"
	"brain/internal/orchestrator"
	"brain/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Memory: config.MemoryConfig{
			HotCapacity:               300,
			HotPromotionCeiling:       250,
			CompressionThresholdBytes: 1 << 16,
			MaxValueBytes:             1 << 20,
		},
		Execution: config.ExecutionConfig{MaxRetries: 3},
	}
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "brain.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	orch := orchestrator.New(st, cfg, zap.NewNop())
	t.Cleanup(orch.Close)
	return New(orch, zap.NewNop())
}

// collect drives dispatch for one request and returns its chunks.
func collect(s *Server, req Request) []Chunk {
	var chunks []Chunk
	s.dispatch(context.Background(), req, func(c Chunk) { chunks = append(chunks, c) })
	return chunks
}

func TestDispatchInitProducesSpecShapedDocument(t *testing.T) {
	s := newTestServer(t)

	chunks := collect(s, Request{ID: "1", Op: "init", Params: json.RawMessage(`{}`)})
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].Error)
	require.True(t, chunks[0].Final)

	raw, err := json.Marshal(chunks[0].Data)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "new", doc["status"])
	assert.NotEmpty(t, doc["session_id"])
	assert.Equal(t, float64(0), doc["loaded_memories"])

	ctxDoc, ok := doc["context"].(map[string]interface{})
	require.True(t, ok, "context must be a JSON object")
	assert.Contains(t, ctxDoc, "preferences")
	assert.Nil(t, ctxDoc["preferences"])
	assert.Contains(t, ctxDoc, "active_project")
	assert.Contains(t, ctxDoc, "recent_memories")
}

func TestDispatchInitReportsResumedOnSecondCall(t *testing.T) {
	s := newTestServer(t)

	first := collect(s, Request{ID: "1", Op: "init", Params: json.RawMessage(`{}`)})
	raw, _ := json.Marshal(first[0].Data)
	var firstDoc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &firstDoc))
	sessionID := firstDoc["session_id"].(string)

	second := collect(s, Request{ID: "2", Op: "init", Params: json.RawMessage(`{"session_id":"` + sessionID + `"}`)})
	raw2, _ := json.Marshal(second[0].Data)
	var secondDoc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw2, &secondDoc))

	assert.Equal(t, "resumed", secondDoc["status"])
	assert.Equal(t, sessionID, secondDoc["session_id"])
}

func TestDispatchStatusComposesSessionAndSystem(t *testing.T) {
	s := newTestServer(t)

	initChunks := collect(s, Request{ID: "1", Op: "init", Params: json.RawMessage(`{}`)})
	raw, _ := json.Marshal(initChunks[0].Data)
	var initDoc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &initDoc))
	sessionID := initDoc["session_id"].(string)

	statusChunks := collect(s, Request{ID: "2", Op: "status", Params: json.RawMessage(`{"session_id":"` + sessionID + `"}`)})
	require.Len(t, statusChunks, 1)

	raw2, _ := json.Marshal(statusChunks[0].Data)
	var statusDoc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw2, &statusDoc))

	session, ok := statusDoc["session"].(map[string]interface{})
	require.True(t, ok, "status document must embed the session")
	assert.Equal(t, sessionID, session["id"])
	assert.Contains(t, statusDoc, "system")
	assert.NotContains(t, statusDoc, "execution")
}

func TestDispatchUnknownOperationErrorHasWarningGlyph(t *testing.T) {
	s := newTestServer(t)

	chunks := collect(s, Request{ID: "1", Op: "no-such-op", Params: json.RawMessage(`{}`)})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Error, "⚠️")
	assert.True(t, chunks[0].Final)
}

func TestDispatchRecallMissingKeyErrorHasWarningGlyph(t *testing.T) {
	s := newTestServer(t)

	chunks := collect(s, Request{ID: "1", Op: "recall", Params: json.RawMessage(`{"key":"does-not-exist"}`)})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Error, "⚠️")
}

func TestDispatchExecuteReturnsQueuedStatus(t *testing.T) {
	s := newTestServer(t)

	chunks := collect(s, Request{ID: "1", Op: "execute", Params: json.RawMessage(`{"code":"print(1)","language":"python"}`)})
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].Error)

	raw, _ := json.Marshal(chunks[0].Data)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotEmpty(t, doc["execution_id"])
	assert.Equal(t, "queued", doc["status"])
}
