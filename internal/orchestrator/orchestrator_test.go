package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brain/internal/config"
	"brain/internal/executions"
	"brain/internal/memory"
	"brain/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		Memory: config.MemoryConfig{
			HotCapacity:               300,
			HotPromotionCeiling:       250,
			CompressionThresholdBytes: 1 << 16,
			MaxValueBytes:             1 << 20,
		},
		Session:   config.SessionConfig{},
		Execution: config.ExecutionConfig{MaxRetries: 3},
	}
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "brain.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	orch := New(st, cfg, zap.NewNop())
	t.Cleanup(orch.Close)
	return orch
}

func TestInitColdStartYieldsNewSessionAndEmptyContext(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	doc, err := orch.Init(ctx, "", 0)
	require.NoError(t, err)

	assert.Equal(t, "new", doc.Status)
	assert.NotEmpty(t, doc.SessionID)
	assert.Equal(t, 0, doc.LoadedMemories)
	assert.Nil(t, doc.Context.Preferences)
	assert.Nil(t, doc.Context.ActiveProject)
	assert.Empty(t, doc.Context.RecentMemories)
}

func TestInitResumesKnownSession(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := orch.Init(ctx, "", 0)
	require.NoError(t, err)

	second, err := orch.Init(ctx, first.SessionID, 0)
	require.NoError(t, err)

	assert.Equal(t, "resumed", second.Status)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestInitUnknownSessionIDFallsBackToNew(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	doc, err := orch.Init(ctx, "does-not-exist", 0)
	require.NoError(t, err)

	assert.Equal(t, "new", doc.Status)
	assert.NotEqual(t, "does-not-exist", doc.SessionID)
}

func TestInitSurfacesPreferencesAndActiveProjectSeparately(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	prefs := map[string]interface{}{"lang": "Python", "style": "concise"}
	require.NoError(t, orch.Memory.Set(ctx, "user_preferences", prefs, memory.SetOptions{Type: memory.TypeUserPreferences}))
	require.NoError(t, orch.Memory.Set(ctx, "current_project", "brain", memory.SetOptions{Type: memory.TypeActiveProject}))
	require.NoError(t, orch.Memory.Set(ctx, "misc_note", "hello", memory.SetOptions{Type: "note"}))

	doc, err := orch.Init(ctx, "", 0)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, doc.LoadedMemories, 1)
	assert.Equal(t, prefs, doc.Context.Preferences)
	assert.Equal(t, "brain", doc.Context.ActiveProject)
	require.Len(t, doc.Context.RecentMemories, 1)
	assert.Equal(t, "misc_note", doc.Context.RecentMemories[0].Key)
}

func TestStatusComposesSessionSystemAndExecution(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	initDoc, err := orch.Init(ctx, "", 0)
	require.NoError(t, err)

	execID, err := orch.Executions.Queue(ctx, "print(1)", executions.LanguagePython, "")
	require.NoError(t, err)

	doc, err := orch.Status(ctx, initDoc.SessionID, execID)
	require.NoError(t, err)

	require.NotNil(t, doc.Session)
	assert.Equal(t, initDoc.SessionID, doc.Session.ID)
	require.NotNil(t, doc.Execution)
	assert.Equal(t, execID, doc.Execution.Status.ID)
}

func TestStatusOmitsSessionAndExecutionWhenNotRequested(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	doc, err := orch.Status(ctx, "", "")
	require.NoError(t, err)

	assert.Nil(t, doc.Session)
	assert.Nil(t, doc.Execution)
}

func TestStatusUnknownExecutionIDIsOmittedNotError(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	doc, err := orch.Status(ctx, "", "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, doc.Execution)
}
