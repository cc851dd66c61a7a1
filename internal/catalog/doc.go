// Package catalog contains the canonical lender-product types shared by the
// normalizer, the cache stores, the sync manager and the read API.
package catalog
