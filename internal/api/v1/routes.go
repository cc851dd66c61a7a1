// Package v1 provides the read and sync endpoints of the catalog API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-financial/catalog-sync/internal/api/common"
	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/diagnostics"
	"github.com/boreal-financial/catalog-sync/internal/normalize"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	"github.com/boreal-financial/catalog-sync/internal/sync/coordinator"
)

// Routes handles the v1 endpoints
type Routes struct {
	manager   pkgsync.Manager
	scheduler coordinator.Scheduler
	feed      *notify.Feed
}

// ProductListResponse is the body of GET /products
type ProductListResponse struct {
	Source   diagnostics.Provenance `json:"source"`
	Label    string                 `json:"label"`
	Count    int                    `json:"count"`
	Products []catalog.Product      `json:"products"`
}

// ProductResponse is the body of GET /products/{id}
type ProductResponse struct {
	Source  diagnostics.Provenance `json:"source"`
	Product catalog.Product        `json:"product"`
}

// CategoriesResponse is the body of GET /categories
type CategoriesResponse struct {
	Source     diagnostics.Provenance   `json:"source"`
	Categories map[catalog.Category]int `json:"categories"`
}

// SyncStatusResponse is the body of GET /sync/status
type SyncStatusResponse struct {
	Metadata  *status.SyncMetadata `json:"metadata"`
	Scheduler *coordinator.Status  `json:"scheduler,omitempty"`
}

// NotificationsResponse is the body of GET /notifications
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Router creates the v1 router. scheduler and feed may be nil.
func Router(manager pkgsync.Manager, scheduler coordinator.Scheduler, feed *notify.Feed) http.Handler {
	routes := &Routes{
		manager:   manager,
		scheduler: scheduler,
		feed:      feed,
	}

	r := chi.NewRouter()
	r.Get("/products", routes.listProducts)
	r.Get("/products/{id}", routes.getProduct)
	r.Get("/categories", routes.listCategories)
	r.Get("/sync/status", routes.syncStatus)
	r.Post("/sync", routes.triggerSync)
	r.Get("/diagnostics", routes.diagnostics)
	r.Get("/notifications", routes.notifications)

	return r
}

// productFilter holds the optional query filters of GET /products
type productFilter struct {
	category catalog.Category
	country  catalog.Country
	lender   string
}

func parseProductFilter(r *http.Request) (productFilter, string) {
	q := r.URL.Query()
	var f productFilter

	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		f.category = normalize.NormalizeCategory(raw)
	}
	if raw := strings.TrimSpace(q.Get("country")); raw != "" {
		f.country = catalog.Country(strings.ToUpper(raw))
		if !f.country.Valid() {
			return f, "country must be US or CA"
		}
	}
	f.lender = strings.ToLower(strings.TrimSpace(q.Get("lender")))
	return f, ""
}

func (f productFilter) matches(p *catalog.Product) bool {
	if f.category != "" && p.Category != f.category {
		return false
	}
	if f.country != "" && p.Country != f.country {
		return false
	}
	if f.lender != "" && !strings.Contains(strings.ToLower(p.LenderName), f.lender) {
		return false
	}
	return true
}

func (routes *Routes) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, problem := parseProductFilter(r)
	if problem != "" {
		common.WriteErrorResponse(w, problem, http.StatusBadRequest)
		return
	}

	// The cache or, when it has never been filled, the fallback catalog
	snap, err := routes.manager.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read products", "error", err)
		common.WriteErrorResponse(w, "failed to read products", http.StatusInternalServerError)
		return
	}

	matched := make([]catalog.Product, 0, len(snap.Products))
	for i := range snap.Products {
		if filter.matches(&snap.Products[i]) {
			matched = append(matched, snap.Products[i])
		}
	}

	common.WriteJSONResponse(w, ProductListResponse{
		Source:   snap.Report.Source,
		Label:    snap.Report.Label,
		Count:    len(matched),
		Products: matched,
	}, http.StatusOK)
}

func (routes *Routes) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathID(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	product, source, err := routes.manager.Product(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		common.WriteErrorResponse(w, "product not found", http.StatusNotFound)
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to read product", "error", err, "product_id", id)
		common.WriteErrorResponse(w, "failed to read products", http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, ProductResponse{Source: source, Product: *product}, http.StatusOK)
	}
}

func (routes *Routes) listCategories(w http.ResponseWriter, r *http.Request) {
	report, err := routes.manager.Diagnostics(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read diagnostics", "error", err)
		common.WriteErrorResponse(w, "failed to read categories", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, CategoriesResponse{
		Source:     report.Source,
		Categories: report.Categories,
	}, http.StatusOK)
}

func (routes *Routes) syncStatus(w http.ResponseWriter, r *http.Request) {
	meta, err := routes.manager.Metadata(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read sync metadata", "error", err)
		common.WriteErrorResponse(w, "failed to read sync status", http.StatusInternalServerError)
		return
	}

	resp := SyncStatusResponse{Metadata: meta}
	if routes.scheduler != nil {
		st := routes.scheduler.Status()
		resp.Scheduler = &st
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// triggerSync runs a pass now. The request context only bounds how long the
// caller waits; the pass itself runs to completion.
func (routes *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var result *pkgsync.Result
	if routes.scheduler != nil {
		result = routes.scheduler.Trigger(r.Context())
	} else {
		result = routes.manager.PullLiveData(r.Context())
	}
	if result == nil {
		common.WriteErrorResponse(w, "Sync failed: no result", http.StatusBadGateway)
		return
	}

	slog.InfoContext(r.Context(), "Manual sync answered",
		"success", result.Success,
		"in_progress", result.InProgress,
		"product_count", result.ProductCount,
		"run_id", result.RunID,
		"wait", time.Since(start))

	code := http.StatusOK
	switch {
	case result.InProgress:
		code = http.StatusAccepted
	case !result.Success:
		code = http.StatusBadGateway
	}
	common.WriteJSONResponse(w, result, code)
}

func (routes *Routes) diagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := routes.manager.Diagnostics(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read diagnostics", "error", err)
		common.WriteErrorResponse(w, "failed to read diagnostics", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, report, http.StatusOK)
}

func (routes *Routes) notifications(w http.ResponseWriter, _ *http.Request) {
	items := []notify.Notification{}
	if routes.feed != nil {
		items = routes.feed.Active()
	}
	common.WriteJSONResponse(w, NotificationsResponse{Notifications: items}, http.StatusOK)
}
