package diagnostics

import (
	"time"

	"github.com/boreal-financial/catalog-sync/internal/status"
)

// Provenance names where served product data comes from
type Provenance string

const (
	// ProvenanceStaffAPI is fresh data from a recent successful sync
	ProvenanceStaffAPI Provenance = "staff_api"
	// ProvenanceCached is data kept from an earlier sync
	ProvenanceCached Provenance = "cached_data"
	// ProvenanceFallback is the embedded sample catalog
	ProvenanceFallback Provenance = "fallback_data"
)

// Label returns the human readable description of p
func (p Provenance) Label() string {
	switch p {
	case ProvenanceStaffAPI:
		return "Using live data from Staff API"
	case ProvenanceCached:
		return "Using cached data from last sync"
	case ProvenanceFallback:
		return "Using fallback sample data"
	default:
		return "Unknown data source"
	}
}

// Status returns a short machine friendly health word for p
func (p Provenance) Status() string {
	switch p {
	case ProvenanceStaffAPI:
		return "live"
	case ProvenanceCached:
		return "stale"
	case ProvenanceFallback:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Classify decides the provenance of the cache. An empty cache is always
// fallback data. A non-empty cache is live only when the last finished
// attempt succeeded and that success is no older than staleAfter. A pass in
// progress does not change the provenance of the generation being served.
func Classify(meta *status.SyncMetadata, cacheCount int, now time.Time, staleAfter time.Duration) Provenance {
	if cacheCount == 0 {
		return ProvenanceFallback
	}
	if meta == nil || !meta.HasSucceeded() {
		return ProvenanceCached
	}
	if meta.SyncStatus != status.SyncPhaseSuccess && meta.SyncStatus != status.SyncPhasePending {
		return ProvenanceCached
	}
	if now.Sub(meta.LastSuccess()) > staleAfter {
		return ProvenanceCached
	}
	return ProvenanceStaffAPI
}
