// Package store defines the local product cache and its in-process backends.
//
// A Store holds exactly one generation of products plus the singleton sync
// metadata record. ReplaceAll swaps generations atomically: a concurrent
// reader sees either the previous generation or the new one, never a mix.
// Durable backends live in the sqlite, postgres and redis subpackages.
package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/normalize"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

// ErrNotFound is returned by Get when no product has the requested id
var ErrNotFound = errors.New("product not found")

// ErrDuplicateID is reported for a product whose id was already inserted in the same generation
var ErrDuplicateID = errors.New("duplicate product id")

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store is the local product cache
type Store interface {
	// Init creates the schema if needed. It is idempotent.
	Init(ctx context.Context) error

	// ReplaceAll clears the cache and inserts products in one atomic step.
	// Products that cannot be inserted are logged and skipped; the returned
	// count is the number actually stored.
	ReplaceAll(ctx context.Context, products []catalog.Product) (int, error)

	// GetAll returns every cached product ordered by id. An empty or
	// uninitialized cache returns an empty slice and no error.
	GetAll(ctx context.Context) ([]catalog.Product, error)

	// Get returns one product or ErrNotFound
	Get(ctx context.Context, id string) (*catalog.Product, error)

	// Count returns the number of cached products
	Count(ctx context.Context) (int, error)

	// GetMetadata returns the sync metadata, or the default "never" record if none was written
	GetMetadata(ctx context.Context) (*status.SyncMetadata, error)

	// PutMetadata overwrites the sync metadata record
	PutMetadata(ctx context.Context, meta *status.SyncMetadata) error

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}

// InsertEach validates every product and calls insert for the valid ones.
// Invalid products and insert failures are logged and skipped. It returns
// the number of successful inserts, or the first context error.
func InsertEach(ctx context.Context, products []catalog.Product, insert func(p *catalog.Product) error) (int, error) {
	inserted := 0
	for i := range products {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		p := &products[i]
		if err := normalize.Validate(p); err != nil {
			slog.WarnContext(ctx, "Skipping invalid product", "id", p.ID, "index", i, "error", err)
			continue
		}
		if err := insert(p); err != nil {
			slog.WarnContext(ctx, "Skipping product that failed to insert", "id", p.ID, "index", i, "error", err)
			continue
		}
		inserted++
	}
	return inserted, nil
}
