package agent_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabwire/internal/agent"
)

func newHistory(t *testing.T) *agent.HistoryStore {
	t.Helper()
	store, err := agent.NewHistoryStore(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistory_RecordAndSearch(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	store.Record(ctx, "https://example.com/release-notes", "Release Notes v2")
	store.Record(ctx, "https://golang.org/doc", "Go Documentation")
	store.Record(ctx, "https://example.com/blog", "Example Blog")

	t.Run("empty query matches everything, most recent first", func(t *testing.T) {
		items, err := store.Search(ctx, "")
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "https://example.com/blog", items[0].URL)
		assert.Equal(t, "https://example.com/release-notes", items[2].URL)
		for _, item := range items {
			assert.Positive(t, item.LastVisitedMs)
		}
	})

	t.Run("query filters on url", func(t *testing.T) {
		items, err := store.Search(ctx, "golang.org")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Go Documentation", items[0].Title)
	})

	t.Run("query filters on title", func(t *testing.T) {
		items, err := store.Search(ctx, "Release")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "https://example.com/release-notes", items[0].URL)
	})

	t.Run("no matches yields empty result, not an error", func(t *testing.T) {
		items, err := store.Search(ctx, "no-such-thing")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestHistory_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := agent.NewHistoryStore(path, logger)
	require.NoError(t, err)
	store.Record(ctx, "https://example.com", "Example")
	require.NoError(t, store.Close())

	reopened, err := agent.NewHistoryStore(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com", items[0].URL)
}

func TestHistory_ResultLimitBounded(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	for i := 0; i < 80; i++ {
		store.Record(ctx, "https://example.com/page", "Page")
	}

	items, err := store.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, items, 50)
}
