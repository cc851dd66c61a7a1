package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CatalogMetricsMeterName is the name used for the catalog metrics meter
	CatalogMetricsMeterName = "github.com/boreal-financial/catalog-sync/catalog"

	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/boreal-financial/catalog-sync/sync"
)

// CatalogMetrics holds the OpenTelemetry instruments for the cached catalog
type CatalogMetrics struct {
	productsTotal metric.Int64Gauge
}

// NewCatalogMetrics creates a new CatalogMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCatalogMetrics(provider metric.MeterProvider) (*CatalogMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CatalogMetricsMeterName)

	productsTotal, err := meter.Int64Gauge(
		"catalog_sync_products",
		metric.WithDescription("Number of cached products per category"),
		metric.WithUnit("{product}"),
	)
	if err != nil {
		return nil, err
	}

	return &CatalogMetrics{
		productsTotal: productsTotal,
	}, nil
}

// RecordProducts records the number of cached products in one category
func (m *CatalogMetrics) RecordProducts(ctx context.Context, category string, count int64) {
	if m == nil || m.productsTotal == nil {
		return
	}

	m.productsTotal.Record(ctx, count, metric.WithAttributes(attribute.String("category", category)))
}

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	skippedRecords metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"catalog_sync_duration_seconds",
		metric.WithDescription("Duration of sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	skippedRecords, err := meter.Int64Counter(
		"catalog_sync_skipped_records_total",
		metric.WithDescription("Records dropped by the filter or rejected by the store"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		skippedRecords: skippedRecords,
	}, nil
}

// RecordSyncDuration records the duration of one sync pass
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordSkippedRecords counts records that did not make it into the cache
func (m *SyncMetrics) RecordSkippedRecords(ctx context.Context, reason string, count int) {
	if m == nil || m.skippedRecords == nil || count <= 0 {
		return
	}

	m.skippedRecords.Add(ctx, int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}
