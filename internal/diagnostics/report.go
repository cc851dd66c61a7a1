package diagnostics

import (
	"time"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

// Report summarizes the state of the product cache for operators
type Report struct {
	Source       Provenance               `json:"source"`
	Label        string                   `json:"label"`
	Status       string                   `json:"status"`
	ProductCount int                      `json:"productCount"`
	CachedCount  int                      `json:"cachedCount"`
	Categories   map[catalog.Category]int `json:"categories"`

	SyncStatus      status.SyncPhase `json:"syncStatus"`
	LastSyncTime    *time.Time       `json:"lastSyncTime,omitempty"`
	LastSuccessTime *time.Time       `json:"lastSuccessTime,omitempty"`
	LastError       string           `json:"lastError,omitempty"`
	Hash            string           `json:"hash,omitempty"`
	CatalogSource   string           `json:"catalogSource,omitempty"`

	CheckedAt time.Time `json:"checkedAt"`
}

// NewReport builds a report from the cached products and sync metadata.
// ProductCount and Categories describe the data a reader is served, which is
// the fallback catalog when the cache is empty.
func NewReport(meta *status.SyncMetadata, cached []catalog.Product, now time.Time, staleAfter time.Duration) (*Report, error) {
	report, _, err := Serve(meta, cached, now, staleAfter)
	return report, err
}

// Serve is NewReport that also returns the products the report describes, so
// a reader gets the list and its provenance from the same cache read.
func Serve(
	meta *status.SyncMetadata, cached []catalog.Product, now time.Time, staleAfter time.Duration,
) (*Report, []catalog.Product, error) {
	if meta == nil {
		meta = status.NewDefaultMetadata()
	}

	source := Classify(meta, len(cached), now, staleAfter)
	served := cached
	if source == ProvenanceFallback {
		fallback, err := FallbackProducts()
		if err != nil {
			return nil, nil, err
		}
		served = fallback
	}

	report := &Report{
		Source:        source,
		Label:         source.Label(),
		Status:        source.Status(),
		ProductCount:  len(served),
		CachedCount:   len(cached),
		Categories:    catalog.CountByCategory(served),
		SyncStatus:    meta.SyncStatus,
		LastError:     meta.ErrorMessage,
		Hash:          meta.Hash,
		CatalogSource: meta.Source,
		CheckedAt:     now,
	}
	if meta.LastSyncTime > 0 {
		t := time.UnixMilli(meta.LastSyncTime).UTC()
		report.LastSyncTime = &t
	}
	if meta.HasSucceeded() {
		t := meta.LastSuccess().UTC()
		report.LastSuccessTime = &t
	}
	return report, served, nil
}
