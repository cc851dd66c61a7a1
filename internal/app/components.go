package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	"github.com/boreal-financial/catalog-sync/internal/sources"
	"github.com/boreal-financial/catalog-sync/internal/store"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	"github.com/boreal-financial/catalog-sync/internal/sync/coordinator"
	"github.com/boreal-financial/catalog-sync/internal/telemetry"
)

// Components groups the wired service components
type Components struct {
	// Telemetry holds the tracer and meter providers
	Telemetry *telemetry.Telemetry

	// Store is the product cache
	Store store.Store

	// Source fetches the raw catalog
	Source sources.CatalogSource

	// Manager runs sync passes against Store
	Manager pkgsync.Manager

	// Scheduler drives Manager at startup and checkpoint windows
	Scheduler coordinator.Scheduler

	// Feed holds transient notifications for the API
	Feed *notify.Feed

	ownsStore     bool
	ownsTelemetry bool
}

// Close releases the store and flushes telemetry. Injected components are left open.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.ownsStore && c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
		c.ownsStore = false
	}
	if c.ownsTelemetry && c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
		c.ownsTelemetry = false
	}
	return errors.Join(errs...)
}

// NewComponents wires the store, source, manager, and scheduler from cfg.
// The caller must Close the result.
func NewComponents(ctx context.Context, cfg *config.Config, opts ...CatalogAppOption) (*Components, error) {
	b, err := baseConfig(append([]CatalogAppOption{WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, b)
}
