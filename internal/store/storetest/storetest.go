// Package storetest holds the behavior every store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
)

// Factory returns a fresh, initialized store for one subtest
type Factory func(t *testing.T) store.Store

func ptr[T any](v T) *T {
	return &v
}

// SampleProducts returns a small generation with every optional field exercised
func SampleProducts(syncedAt int64) []catalog.Product {
	return []catalog.Product{
		{
			ID:              "acme-bank-line-of-credit",
			Name:            "Line of Credit",
			LenderName:      "Acme Bank",
			Category:        catalog.CategoryLineOfCredit,
			Country:         catalog.CountryUS,
			MinAmount:       10000,
			MaxAmount:       250000,
			InterestRateMin: ptr(7.5),
			InterestRateMax: ptr(19.9),
			TermMin:         ptr(6),
			TermMax:         ptr(36),
			Description:     "Revolving credit for operating expenses",
			VideoURL:        "https://videos.example.com/loc",
			LastSynced:      syncedAt,
		},
		{
			ID:         "northern-capital-equipment",
			Name:       "Equipment Finance",
			LenderName: "Northern Capital",
			Category:   catalog.CategoryEquipmentFinancing,
			Country:    catalog.CountryCA,
			MinAmount:  5000,
			MaxAmount:  1000000,
			LastSynced: syncedAt,
		},
		{
			ID:         "beacon-sba-7a",
			Name:       "SBA 7(a)",
			LenderName: "Beacon Lending",
			Category:   catalog.CategorySBALoan,
			Country:    catalog.CountryUS,
			MinAmount:  50000,
			MaxAmount:  5000000,
			TermMax:    ptr(120),
			LastSynced: syncedAt,
		},
	}
}

func sorted(products []catalog.Product) []catalog.Product {
	out := append([]catalog.Product(nil), products...)
	catalog.SortByID(out)
	return out
}

// Run exercises the Store contract against the backend built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		products, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, products)
		assert.Empty(t, products)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		meta, err := s.GetMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, status.SyncPhaseNever, meta.SyncStatus)
		assert.Zero(t, meta.LastSyncTime)
		assert.Zero(t, meta.ProductCount)
	})

	t.Run("init is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(context.Background()))
		require.NoError(t, s.Init(context.Background()))
		require.NoError(t, s.Ping(context.Background()))
	})

	t.Run("replace all round trips every field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := SampleProducts(1735732800000)

		inserted, err := s.ReplaceAll(ctx, want)
		require.NoError(t, err)
		assert.Equal(t, len(want), inserted)

		got, err := s.GetAll(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(sorted(want), got); diff != "" {
			t.Errorf("GetAll mismatch (-want +got):\n%s", diff)
		}

		one, err := s.Get(ctx, "acme-bank-line-of-credit")
		require.NoError(t, err)
		if diff := cmp.Diff(want[0], *one); diff != "" {
			t.Errorf("Get mismatch (-want +got):\n%s", diff)
		}

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(want), count)
	})

	t.Run("replace all drops the previous generation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.ReplaceAll(ctx, SampleProducts(1))
		require.NoError(t, err)

		next := []catalog.Product{SampleProducts(2)[1]}
		inserted, err := s.ReplaceAll(ctx, next)
		require.NoError(t, err)
		assert.Equal(t, 1, inserted)

		got, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "northern-capital-equipment", got[0].ID)
		assert.Equal(t, int64(2), got[0].LastSynced)

		_, err = s.Get(ctx, "acme-bank-line-of-credit")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("replacing with the same generation is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.ReplaceAll(ctx, SampleProducts(7))
		require.NoError(t, err)
		first, err := s.GetAll(ctx)
		require.NoError(t, err)

		_, err = s.ReplaceAll(ctx, SampleProducts(7))
		require.NoError(t, err)
		second, err := s.GetAll(ctx)
		require.NoError(t, err)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("generations differ (-first +second):\n%s", diff)
		}
	})

	t.Run("duplicate and invalid products are skipped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		products := SampleProducts(3)
		duplicate := products[0]
		duplicate.Name = "Shadow copy"
		invalid := products[1]
		invalid.ID = ""
		products = append(products, duplicate, invalid)

		inserted, err := s.ReplaceAll(ctx, products)
		require.NoError(t, err)
		assert.Equal(t, 3, inserted)

		got, err := s.Get(ctx, duplicate.ID)
		require.NoError(t, err)
		assert.Equal(t, "Line of Credit", got.Name, "first occurrence wins")
	})

	t.Run("metadata is overwritten in place", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := &status.SyncMetadata{
			LastSyncTime:    1000,
			ProductCount:    3,
			SyncStatus:      status.SyncPhaseSuccess,
			LastSuccessTime: 1000,
			Hash:            "abc",
			Source:          "https://staff.example.com/api/public/lenders",
		}
		require.NoError(t, s.PutMetadata(ctx, first))

		got, err := s.GetMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, got)

		second := &status.SyncMetadata{
			LastSyncTime:    2000,
			SyncStatus:      status.SyncPhaseError,
			ErrorMessage:    "HTTP 500",
			LastSuccessTime: 1000,
			Hash:            "abc",
		}
		require.NoError(t, s.PutMetadata(ctx, second))

		got, err = s.GetMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, got)
	})

	t.Run("readers see whole generations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		small := SampleProducts(1)[:1]
		large := SampleProducts(2)
		const rounds = 40

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				gen := small
				if i%2 == 0 {
					gen = large
				}
				_, _ = s.ReplaceAll(ctx, gen)
			}
		}()

		var observed [][]catalog.Product
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if products, err := s.GetAll(ctx); err == nil {
					observed = append(observed, products)
				}
			}
		}()
		wg.Wait()

		require.NotEmpty(t, observed)
		for _, products := range observed {
			if len(products) == 0 {
				continue
			}
			want := large
			if products[0].LastSynced == 1 {
				want = small
			}
			if diff := cmp.Diff(sorted(want), products); diff != "" {
				t.Fatalf("read a mixed generation (-want +got):\n%s", diff)
			}
		}
	})
}
