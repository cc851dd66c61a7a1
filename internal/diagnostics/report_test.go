package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

func TestNewReport_Live(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	meta := &status.SyncMetadata{
		LastSyncTime:    now.Add(-time.Minute).UnixMilli(),
		LastSuccessTime: now.Add(-time.Minute).UnixMilli(),
		ProductCount:    2,
		SyncStatus:      status.SyncPhaseSuccess,
		Hash:            "abc",
		Source:          "https://staff.example.com/api/public/lenders",
	}
	cached := []catalog.Product{
		{ID: "a", Category: catalog.CategoryTermLoan},
		{ID: "b", Category: catalog.CategoryTermLoan},
	}

	report, err := NewReport(meta, cached, now, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, ProvenanceStaffAPI, report.Source)
	assert.Equal(t, "live", report.Status)
	assert.Equal(t, 2, report.ProductCount)
	assert.Equal(t, 2, report.CachedCount)
	assert.Equal(t, map[catalog.Category]int{catalog.CategoryTermLoan: 2}, report.Categories)
	require.NotNil(t, report.LastSyncTime)
	require.NotNil(t, report.LastSuccessTime)
	assert.Equal(t, now.Add(-time.Minute), *report.LastSuccessTime)
	assert.Equal(t, "abc", report.Hash)
	assert.Empty(t, report.LastError)
}

func TestNewReport_FallbackServesSampleCatalog(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	report, err := NewReport(nil, nil, now, time.Hour)
	require.NoError(t, err)

	fallback, err := FallbackProducts()
	require.NoError(t, err)

	assert.Equal(t, ProvenanceFallback, report.Source)
	assert.Equal(t, status.SyncPhaseNever, report.SyncStatus)
	assert.Equal(t, len(fallback), report.ProductCount)
	assert.Zero(t, report.CachedCount)
	assert.Nil(t, report.LastSyncTime)
	assert.Nil(t, report.LastSuccessTime)
}

func TestNewReport_CachedAfterFailure(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	meta := &status.SyncMetadata{
		LastSyncTime:    now.UnixMilli(),
		LastSuccessTime: now.Add(-2 * time.Hour).UnixMilli(),
		SyncStatus:      status.SyncPhaseError,
		ErrorMessage:    "Staff API returned empty product list",
	}

	report, err := NewReport(meta, []catalog.Product{{ID: "a", Category: catalog.CategorySBALoan}}, now, 13*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, ProvenanceCached, report.Source)
	assert.Equal(t, "Staff API returned empty product list", report.LastError)
	assert.Equal(t, 1, report.ProductCount)
}
