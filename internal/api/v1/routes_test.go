package v1_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"k8s.io/utils/ptr"

	v1 "github.com/boreal-financial/catalog-sync/internal/api/v1"
	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/diagnostics"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	"github.com/boreal-financial/catalog-sync/internal/sync/coordinator"
	schedmocks "github.com/boreal-financial/catalog-sync/internal/sync/coordinator/mocks"
	syncmocks "github.com/boreal-financial/catalog-sync/internal/sync/mocks"
)

func cachedProducts() []catalog.Product {
	return []catalog.Product{
		{
			ID:              "acme-capital-growth-term-loan",
			Name:            "Growth Term Loan",
			LenderName:      "Acme Capital",
			Category:        catalog.CategoryTermLoan,
			Country:         catalog.CountryUS,
			MinAmount:       50000,
			MaxAmount:       750000,
			InterestRateMin: ptr.To(6.5),
			LastSynced:      1760000000000,
		},
		{
			ID:         "northern-finance-equipment-lease",
			Name:       "Equipment Lease",
			LenderName: "Northern Finance",
			Category:   catalog.CategoryEquipmentFinancing,
			Country:    catalog.CountryCA,
			MinAmount:  10000,
			MaxAmount:  400000,
			LastSynced: 1760000000000,
		},
		{
			ID:         "acme-capital-revolver",
			Name:       "Revolver",
			LenderName: "Acme Capital",
			Category:   catalog.CategoryLineOfCredit,
			Country:    catalog.CountryCA,
			MinAmount:  5000,
			MaxAmount:  100000,
			LastSynced: 1760000000000,
		},
	}
}

func liveReport() *diagnostics.Report {
	return &diagnostics.Report{
		Source:       diagnostics.ProvenanceStaffAPI,
		Label:        diagnostics.ProvenanceStaffAPI.Label(),
		Status:       diagnostics.ProvenanceStaffAPI.Status(),
		ProductCount: 3,
		CachedCount:  3,
		Categories: map[catalog.Category]int{
			catalog.CategoryTermLoan:           1,
			catalog.CategoryEquipmentFinancing: 1,
			catalog.CategoryLineOfCredit:       1,
		},
		SyncStatus: status.SyncPhaseSuccess,
	}
}

func fallbackReport() *diagnostics.Report {
	return &diagnostics.Report{
		Source:     diagnostics.ProvenanceFallback,
		Label:      diagnostics.ProvenanceFallback.Label(),
		Status:     diagnostics.ProvenanceFallback.Status(),
		SyncStatus: status.SyncPhaseNever,
	}
}

func fallbackProducts(t *testing.T) []catalog.Product {
	t.Helper()
	products, err := diagnostics.FallbackProducts()
	require.NoError(t, err)
	return products
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		query       string
		expectedIDs []string
	}{
		{
			name:        "all products",
			query:       "",
			expectedIDs: []string{"acme-capital-growth-term-loan", "northern-finance-equipment-lease", "acme-capital-revolver"},
		},
		{
			name:        "category alias is normalized",
			query:       "?category=Line%20of%20Credit",
			expectedIDs: []string{"acme-capital-revolver"},
		},
		{
			name:        "country is case insensitive",
			query:       "?country=ca",
			expectedIDs: []string{"northern-finance-equipment-lease", "acme-capital-revolver"},
		},
		{
			name:        "lender substring",
			query:       "?lender=acme",
			expectedIDs: []string{"acme-capital-growth-term-loan", "acme-capital-revolver"},
		},
		{
			name:        "combined filters",
			query:       "?lender=ACME&country=US",
			expectedIDs: []string{"acme-capital-growth-term-loan"},
		},
		{
			name:        "no match",
			query:       "?category=sba",
			expectedIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			manager := syncmocks.NewMockManager(ctrl)
			manager.EXPECT().Snapshot(gomock.Any()).Return(&pkgsync.Snapshot{Report: liveReport(), Products: cachedProducts()}, nil)

			rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products"+tt.query)
			require.Equal(t, http.StatusOK, rr.Code)

			var resp v1.ProductListResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, diagnostics.ProvenanceStaffAPI, resp.Source)
			assert.Equal(t, "Using live data from Staff API", resp.Label)
			assert.Equal(t, len(tt.expectedIDs), resp.Count)

			ids := make([]string, 0, len(resp.Products))
			for _, p := range resp.Products {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
		})
	}
}

func TestListProducts_InvalidCountry(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	// No expectations: the query is rejected before the cache is read
	manager := syncmocks.NewMockManager(ctrl)

	rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products?country=MX")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "country must be US or CA")
}

func TestListProducts_ServesFallbackWhenCacheEmpty(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().Snapshot(gomock.Any()).Return(&pkgsync.Snapshot{
		Report:   fallbackReport(),
		Products: fallbackProducts(t),
	}, nil)

	rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products?country=CA")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp v1.ProductListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, diagnostics.ProvenanceFallback, resp.Source)
	assert.Equal(t, "Using fallback sample data", resp.Label)
	assert.Equal(t, 2, resp.Count)
	for _, p := range resp.Products {
		assert.Equal(t, "Sample Canadian Lender", p.LenderName)
	}
}

func TestListProducts_ReadError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().Snapshot(gomock.Any()).Return(nil, errors.New("disk I/O error"))

	rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk I/O error")
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	t.Run("found in cache", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		revolver := cachedProducts()[2]
		manager.EXPECT().Product(gomock.Any(), "acme-capital-revolver").
			Return(&revolver, diagnostics.ProvenanceStaffAPI, nil)

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products/acme-capital-revolver")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp v1.ProductResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Revolver", resp.Product.Name)
		assert.Equal(t, diagnostics.ProvenanceStaffAPI, resp.Source)
	})

	t.Run("found in fallback", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		var sample catalog.Product
		for _, p := range fallbackProducts(t) {
			if p.ID == "fallback-term-loan-us" {
				sample = p
			}
		}
		manager.EXPECT().Product(gomock.Any(), "fallback-term-loan-us").
			Return(&sample, diagnostics.ProvenanceFallback, nil)

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products/fallback-term-loan-us")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp v1.ProductResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, catalog.CategoryTermLoan, resp.Product.Category)
		assert.Equal(t, diagnostics.ProvenanceFallback, resp.Source)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().Product(gomock.Any(), "missing").
			Return(nil, diagnostics.ProvenanceStaffAPI, fmt.Errorf("failed to read cached product %q: %w", "missing", store.ErrNotFound))

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products/missing")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "product not found")
	})

	t.Run("read error", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().Product(gomock.Any(), "acme-capital-revolver").
			Return(nil, diagnostics.ProvenanceStaffAPI, errors.New("database is locked"))

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products/acme-capital-revolver")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "database is locked")
	})

	t.Run("whitespace id rejected", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/products/acme%20loan")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "id cannot contain whitespace")
	})
}

func TestListCategories(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().Diagnostics(gomock.Any()).Return(liveReport(), nil)

	rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/categories")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp v1.CategoriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Categories[catalog.CategoryTermLoan])
	assert.Len(t, resp.Categories, 3)
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()

	meta := &status.SyncMetadata{
		LastSyncTime:    1760000000000,
		ProductCount:    3,
		SyncStatus:      status.SyncPhaseSuccess,
		LastSuccessTime: 1760000000000,
		Hash:            "abc123",
	}

	t.Run("with scheduler", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().Metadata(gomock.Any()).Return(meta.Copy(), nil)
		scheduler := schedmocks.NewMockScheduler(ctrl)
		scheduler.EXPECT().Status().Return(coordinator.Status{
			State:       coordinator.StateScheduled,
			LastWindow:  "2026-10-19@12",
			LastTrigger: coordinator.TriggerScheduled,
		})

		rr := serve(t, v1.Router(manager, scheduler, nil), http.MethodGet, "/sync/status")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp v1.SyncStatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Metadata.ProductCount)
		assert.Equal(t, "abc123", resp.Metadata.Hash)
		require.NotNil(t, resp.Scheduler)
		assert.Equal(t, coordinator.StateScheduled, resp.Scheduler.State)
		assert.Equal(t, "2026-10-19@12", resp.Scheduler.LastWindow)
	})

	t.Run("without scheduler", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().Metadata(gomock.Any()).Return(status.NewDefaultMetadata(), nil)

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/sync/status")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "scheduler")
		assert.Contains(t, rr.Body.String(), `"syncStatus":"never"`)
	})
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()

	t.Run("success through scheduler", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		scheduler := schedmocks.NewMockScheduler(ctrl)
		scheduler.EXPECT().Trigger(gomock.Any()).Return(&pkgsync.Result{
			Success:      true,
			ProductCount: 3,
			Message:      "Successfully synced 3 products from staff API",
			RunID:        "run-1",
		})

		rr := serve(t, v1.Router(manager, scheduler, nil), http.MethodPost, "/sync")
		require.Equal(t, http.StatusOK, rr.Code)

		var result pkgsync.Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.Equal(t, 3, result.ProductCount)
		assert.Equal(t, "run-1", result.RunID)
	})

	t.Run("failure maps to bad gateway", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		scheduler := schedmocks.NewMockScheduler(ctrl)
		scheduler.EXPECT().Trigger(gomock.Any()).Return(&pkgsync.Result{
			Message: "Sync failed: Staff API error: 500 Internal Server Error",
		})

		rr := serve(t, v1.Router(manager, scheduler, nil), http.MethodPost, "/sync")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, rr.Body.String(), "Staff API error: 500")
	})

	t.Run("caller stopped waiting maps to accepted", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		scheduler := schedmocks.NewMockScheduler(ctrl)
		scheduler.EXPECT().Trigger(gomock.Any()).Return(pkgsync.StillRunning())

		rr := serve(t, v1.Router(manager, scheduler, nil), http.MethodPost, "/sync")
		require.Equal(t, http.StatusAccepted, rr.Code)

		var result pkgsync.Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.True(t, result.InProgress)
		assert.False(t, result.Success)
		assert.Equal(t, pkgsync.MessageStillRunning, result.Message)
		assert.NotContains(t, rr.Body.String(), "Sync failed")
	})

	t.Run("manager still running without scheduler", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().PullLiveData(gomock.Any()).Return(pkgsync.StillRunning())

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodPost, "/sync")
		assert.Equal(t, http.StatusAccepted, rr.Code)
	})

	t.Run("manager used without scheduler", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().PullLiveData(gomock.Any()).Return(&pkgsync.Result{Success: true, ProductCount: 1})

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodPost, "/sync")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("nil result", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().PullLiveData(gomock.Any()).Return(nil)

		rr := serve(t, v1.Router(manager, nil, nil), http.MethodPost, "/sync")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, rr.Body.String(), "no result")
	})

	t.Run("GET not allowed", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		rr := serve(t, v1.Router(syncmocks.NewMockManager(ctrl), nil, nil), http.MethodGet, "/sync")
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	report := liveReport()
	report.Hash = "abc123"
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().Diagnostics(gomock.Any()).Return(report, nil)

	rr := serve(t, v1.Router(manager, nil, nil), http.MethodGet, "/diagnostics")
	require.Equal(t, http.StatusOK, rr.Code)

	var got diagnostics.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, diagnostics.ProvenanceStaffAPI, got.Source)
	assert.Equal(t, "live", got.Status)
	assert.Equal(t, "abc123", got.Hash)
}

func TestNotifications(t *testing.T) {
	t.Parallel()

	t.Run("no feed", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		rr := serve(t, v1.Router(syncmocks.NewMockManager(ctrl), nil, nil), http.MethodGet, "/notifications")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"notifications":[]}`, rr.Body.String())
	})

	t.Run("active notifications", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)

		feed := notify.NewFeed(time.Minute, 10)
		feed.Notify(t.Context(), notify.ForSync(true, "Successfully synced 3 products from staff API", coordinator.TriggerManual))

		rr := serve(t, v1.Router(syncmocks.NewMockManager(ctrl), nil, feed), http.MethodGet, "/notifications")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp v1.NotificationsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, notify.LevelSuccess, resp.Notifications[0].Level)
		assert.Equal(t, "Lender products updated", resp.Notifications[0].Title)
	})
}
