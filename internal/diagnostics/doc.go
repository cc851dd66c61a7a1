// Package diagnostics reports where the product data currently being served
// comes from.
//
// Every read is classified into one of three provenances:
//
//   - staff_api: the last sync succeeded recently, so the cache is live data
//   - cached_data: the cache holds products, but the last attempt failed or
//     the last success is older than the staleness threshold
//   - fallback_data: the cache is empty, so readers are given the embedded
//     sample catalog instead
//
// The fallback catalog is compiled into the binary, validated against an
// embedded JSON schema on first use, and never written into the cache.
package diagnostics
