package executions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brain/internal/config"
	"brain/internal/store"
)

func newTestExecutions(t *testing.T) (*Executions, *store.Store) {
	t.Helper()
	cfg := config.ExecutionConfig{
		LogDir:     filepath.Join(t.TempDir(), "logs"),
		MaxRetries: 3,
	}
	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "brain.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB, cfg, zap.NewNop()), st
}

func TestQueueAutoDetectsLanguage(t *testing.T) {
	e, st := newTestExecutions(t)
	ctx := context.Background()

	id, err := e.Queue(ctx, "ls -la", "", "")
	require.NoError(t, err)

	status, found, err := e.GetStatus(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusQueued, status.Status)

	var language string
	require.NoError(t, st.DB.QueryRow(`SELECT language FROM executions WHERE id = ?`, id).Scan(&language))
	assert.Equal(t, string(LanguageShell), language)
}

func TestGetStatusUnknownIDNotFound(t *testing.T) {
	e, _ := newTestExecutions(t)
	_, found, err := e.GetStatus(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListRecentTruncatesCodePreview(t *testing.T) {
	e, _ := newTestExecutions(t)
	ctx := context.Background()
	long := ""
	for i := 0; i < 40; i++ {
		long += "print(1)\n"
	}
	_, err := e.Queue(ctx, long, LanguagePython, "")
	require.NoError(t, err)

	summaries, err := e.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.LessOrEqual(t, len(summaries[0].CodePreview), 123)
}
