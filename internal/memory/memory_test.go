package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brain/internal/config"
	"brain/internal/store"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	cfg := config.MemoryConfig{
		HotCapacity:               300,
		HotPromotionCeiling:       250,
		CompressionThresholdBytes: 32,
		MaxValueBytes:             1 << 20,
	}
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "brain.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB, cfg, zap.NewNop())
}

func TestSetGetRoundTrip(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "greeting", "hello world", SetOptions{Type: "note"}))

	entry, found, err := m.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello world", entry.Value)
	assert.Equal(t, TierWarm, entry.Tier, "non-privileged types land warm, not hot")
	assert.Equal(t, 1, entry.AccessCount)
}

func TestGetMissingKeyReturnsNotFoundWithoutError(t *testing.T) {
	m := newTestMemory(t)
	_, found, err := m.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPrivilegedTypeIsAlwaysHot(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "pref.theme", "dark", SetOptions{Type: TypeUserPreferences}))

	entry, found, err := m.Get(ctx, "pref.theme")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, TierHot, entry.Tier)
}

func TestSetRejectsOversizedValue(t *testing.T) {
	m := newTestMemory(t)
	m.cfg.MaxValueBytes = 8
	err := m.Set(context.Background(), "big", strings.Repeat("x", 100), SetOptions{})
	assert.Error(t, err)
}

func TestSetCompressesLargeValuesTransparently(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	large := strings.Repeat("the quick brown fox ", 20)
	require.NoError(t, m.Set(ctx, "doc", large, SetOptions{}))

	entry, found, err := m.Get(ctx, "doc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, large, entry.Value, "compression must be transparent to callers")
}

func TestRepeatedSetIncrementsUpdateCount(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v1", SetOptions{Type: "note"}))
	require.NoError(t, m.Set(ctx, "k", "v2", SetOptions{Type: "note"}))

	entry, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", entry.Value)
	assert.Equal(t, 1, entry.UpdateCount)
}

func TestSearchFindsByTerm(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "note.1", "golang concurrency patterns", SetOptions{Type: "note"}))
	require.NoError(t, m.Set(ctx, "note.2", "python asyncio basics", SetOptions{Type: "note"}))

	results, err := m.Search(ctx, "golang", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note.1", results[0].Key)
}

func TestSearchExcludesPrivateEntries(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "secret", "golang private notes", SetOptions{Type: "note", Private: true}))

	results, err := m.Search(ctx, "golang", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStatsCountsByTier(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", "x", SetOptions{Type: "note"}))
	require.NoError(t, m.Set(ctx, "b", "y", SetOptions{Type: TypeUserPreferences}))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HotCount)
	assert.Equal(t, 1, stats.WarmCount)
	assert.Greater(t, stats.TotalBytes, int64(0))
}

func TestTopForInitPrioritizesPreferencesThenActiveProjectThenRecent(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "pref.a", "a", SetOptions{Type: TypeUserPreferences}))
	require.NoError(t, m.Set(ctx, "project.current", "p", SetOptions{Type: TypeActiveProject}))
	require.NoError(t, m.Set(ctx, "note.recent", "n", SetOptions{Type: "note"}))

	entries, err := m.TopForInit(ctx, 300)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "pref.a", entries[0].Key, "user_preferences must come first")
	require.Len(t, entries, 3)
	assert.Equal(t, "project.current", entries[1].Key, "the active project comes second")
	assert.Equal(t, "note.recent", entries[2].Key, "recently accessed rows follow")
}
