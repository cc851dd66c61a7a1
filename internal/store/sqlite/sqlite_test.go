package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
	"github.com/boreal-financial/catalog-sync/internal/store/sqlite"
	"github.com/boreal-financial/catalog-sync/internal/store/storetest"
)

func newStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) store.Store {
		s := newStore(t, filepath.Join(t.TempDir(), "catalog.db"))
		require.NoError(t, s.Init(context.Background()))
		return s
	})
}

func TestStore_InMemory(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) store.Store {
		s := newStore(t, sqlite.MemoryPath)
		require.NoError(t, s.Init(context.Background()))
		return s
	})
}

func TestStore_UninitializedReadsAreEmpty(t *testing.T) {
	t.Parallel()

	s := newStore(t, filepath.Join(t.TempDir(), "fresh.db"))
	ctx := context.Background()

	products, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = s.Get(ctx, "anything")
	assert.ErrorIs(t, err, store.ErrNotFound)

	meta, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseNever, meta.SyncStatus)
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	ctx := context.Background()

	first, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx))
	inserted, err := first.ReplaceAll(ctx, storetest.SampleProducts(42))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newStore(t, path)
	require.NoError(t, second.Init(ctx))
	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, inserted, count)
}
