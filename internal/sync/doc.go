// Package sync pulls the lender catalog from its source and replaces the
// local product cache with it.
//
// # Core Interfaces
//
//   - Manager: runs one sync pass (PullLiveData) and serves the read
//     accessors built on the cache (Products, Metadata, Diagnostics)
//
// # Sync Pass
//
// A pass fetches the catalog, rejects responses that are malformed or empty,
// normalizes every record, applies the optional lender and category filters,
// and swaps the new generation into the store in one atomic ReplaceAll. The
// sync metadata record is then overwritten with the outcome. A failed pass
// never touches the cached products; its metadata keeps the time and hash of
// the last good generation so diagnostics can still report on it.
//
// PullLiveData never returns an error and never panics. Failures are
// reported in the Result and in the metadata record:
//
//	result := manager.PullLiveData(ctx)
//	if !result.Success {
//		slog.Warn("Sync failed", "message", result.Message)
//	}
//
// # Concurrency
//
// Calls made while a pass is in flight join that pass and receive its
// Result, so two overlapping calls produce exactly one generation. When a
// lock path is configured the pass also holds an exclusive file lock, which
// keeps a CLI sync and a running server from interleaving on one cache.
//
// # Coordinator Package
//
// The sync/coordinator subpackage runs passes at the configured checkpoint
// hours, once at startup, and on manual request.
package sync
