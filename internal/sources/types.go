package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Shape names the envelope a catalog response arrived in
type Shape string

const (
	// ShapeArray is a bare JSON array of records
	ShapeArray Shape = "array"
	// ShapeSuccessProducts is {"success": true, "products": [...]}
	ShapeSuccessProducts Shape = "success_products"
	// ShapeProducts is {"products": [...]}
	ShapeProducts Shape = "products"
	// ShapeData is {"data": [...]}
	ShapeData Shape = "data"
)

var (
	// ErrInvalidFormat is returned when a response is not JSON or matches no known shape.
	// The message is stored verbatim in sync metadata.
	ErrInvalidFormat = errors.New("Invalid API response format") //nolint:staticcheck // user-facing message

	// ErrEmptyCatalog is returned when a well-formed response holds no records
	ErrEmptyCatalog = errors.New("Staff API returned empty product list") //nolint:staticcheck // user-facing message
)

//go:generate mockgen -destination=mocks/mock_catalog_source.go -package=mocks -source=types.go CatalogSource

// CatalogSource fetches one generation of the raw lender catalog
type CatalogSource interface {
	// Fetch retrieves the catalog. An empty catalog is returned as a result,
	// not as ErrEmptyCatalog; deciding what to do with it is up to the caller.
	Fetch(ctx context.Context) (*FetchResult, error)

	// Location describes where the catalog comes from (URL or file path)
	Location() string
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	// Records are the raw catalog entries in source order
	Records []gjson.Result

	// Shape is the envelope the records were found in
	Shape Shape

	// Hash is the SHA-256 of the sorted record keys, for change detection
	Hash string

	// Source is the URL or file path the records came from
	Source string

	// FetchedAt is when the fetch completed
	FetchedAt time.Time
}

// NewFetchResult creates a FetchResult and computes its hash
func NewFetchResult(records []gjson.Result, shape Shape, source string, fetchedAt time.Time) *FetchResult {
	return &FetchResult{
		Records:   records,
		Shape:     shape,
		Hash:      HashRecords(records),
		Source:    source,
		FetchedAt: fetchedAt,
	}
}

// Count returns the number of records
func (r *FetchResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// recordKey identifies a record for hashing: id, then productId, then name
func recordKey(record gjson.Result) string {
	for _, path := range []string{"id", "productId", "name", "productName"} {
		if v := record.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// HashRecords returns a stable hash of the record keys, independent of record order.
// Two generations with the same set of ids hash equal even when other fields differ.
func HashRecords(records []gjson.Result) string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, recordKey(r))
	}
	sort.Strings(keys)

	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(sum[:])
}
