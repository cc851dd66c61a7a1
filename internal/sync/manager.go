package sync

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/diagnostics"
	"github.com/boreal-financial/catalog-sync/internal/filtering"
	"github.com/boreal-financial/catalog-sync/internal/normalize"
	"github.com/boreal-financial/catalog-sync/internal/otel"
	"github.com/boreal-financial/catalog-sync/internal/sources"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
	"github.com/boreal-financial/catalog-sync/internal/telemetry"
)

const (
	// TracerName is the name of the sync manager's tracer
	TracerName = "github.com/boreal-financial/catalog-sync/sync"

	// DefaultFetchTimeout bounds a single catalog fetch
	DefaultFetchTimeout = 30 * time.Second

	// DefaultLockTimeout bounds how long a pass waits for the cross-process lock
	DefaultLockTimeout = 2 * time.Minute

	// MessageStillRunning is returned to a caller that stops waiting before the pass ends
	MessageStillRunning = "Sync still running"

	lockRetryDelay = 250 * time.Millisecond
	pullKey        = "pull"
)

// Result is the outcome of one sync pass
type Result struct {
	Success      bool          `json:"success"`
	ProductCount int           `json:"productCount"`
	Message      string        `json:"message"`
	Hash         string        `json:"hash,omitempty"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"durationNs"`
	RunID        string        `json:"runId"`

	// InProgress marks a caller that stopped waiting. The pass was neither
	// successful nor failed yet; its outcome lands in the sync metadata.
	InProgress bool `json:"inProgress,omitempty"`
}

// StillRunning is the Result for a caller whose wait ended before the pass did
func StillRunning() *Result {
	return &Result{InProgress: true, Message: MessageStillRunning}
}

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager

// Manager runs sync passes and reads the cache they produce
type Manager interface {
	// PullLiveData runs one sync pass, or joins the pass already in flight.
	// It never panics; failures are reported in the Result.
	PullLiveData(ctx context.Context) *Result

	// Products returns the cached products ordered by id
	Products(ctx context.Context) ([]catalog.Product, error)

	// Metadata returns the sync metadata record
	Metadata(ctx context.Context) (*status.SyncMetadata, error)

	// Diagnostics reports the provenance of the cached data
	Diagnostics(ctx context.Context) (*diagnostics.Report, error)

	// Snapshot returns the products a reader is served together with the
	// report describing them, both taken from one cache read
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Product returns one served product and its provenance, or an error
	// wrapping store.ErrNotFound
	Product(ctx context.Context, id string) (*catalog.Product, diagnostics.Provenance, error)
}

// Snapshot pairs served products with the report that classifies them
type Snapshot struct {
	Report   *diagnostics.Report
	Products []catalog.Product
}

// defaultManager is the default implementation of Manager
type defaultManager struct {
	source sources.CatalogSource
	store  store.Store

	filter        *config.FilterConfig
	filterService filtering.FilterService

	fetchTimeout time.Duration
	lockPath     string
	lockTimeout  time.Duration
	staleAfter   time.Duration
	clock        clock.PassiveClock
	tracer       trace.Tracer

	group singleflight.Group

	syncMetrics    *telemetry.SyncMetrics
	catalogMetrics *telemetry.CatalogMetrics
}

// Option configures the manager
type Option func(*defaultManager)

// WithFilter applies lender and category filters to every pass
func WithFilter(filter *config.FilterConfig) Option {
	return func(m *defaultManager) {
		m.filter = filter
	}
}

// WithFilterService replaces the default filter implementation
func WithFilterService(svc filtering.FilterService) Option {
	return func(m *defaultManager) {
		m.filterService = svc
	}
}

// WithFetchTimeout bounds each catalog fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(m *defaultManager) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithLockPath holds an exclusive file lock at path for the duration of each pass
func WithLockPath(path string) Option {
	return func(m *defaultManager) {
		m.lockPath = path
	}
}

// WithLockTimeout bounds the wait for the file lock
func WithLockTimeout(d time.Duration) Option {
	return func(m *defaultManager) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithStaleAfter sets the age after which a successful sync is reported as cached data
func WithStaleAfter(d time.Duration) Option {
	return func(m *defaultManager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithClock replaces the wall clock
func WithClock(c clock.PassiveClock) Option {
	return func(m *defaultManager) {
		m.clock = c
	}
}

// WithTracer sets the tracer used for sync spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultManager) {
		m.tracer = tracer
	}
}

// WithSyncMetrics sets the sync metrics recorder
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultManager) {
		m.syncMetrics = metrics
	}
}

// WithCatalogMetrics sets the catalog size recorder
func WithCatalogMetrics(metrics *telemetry.CatalogMetrics) Option {
	return func(m *defaultManager) {
		m.catalogMetrics = metrics
	}
}

// NewManager creates a manager that syncs source into st
func NewManager(source sources.CatalogSource, st store.Store, opts ...Option) Manager {
	m := &defaultManager{
		source:        source,
		store:         st,
		filterService: filtering.NewDefaultFilterService(),
		fetchTimeout:  DefaultFetchTimeout,
		lockTimeout:   DefaultLockTimeout,
		staleAfter:    config.DefaultStaleAfter,
		clock:         clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PullLiveData runs a sync pass. Overlapping calls share one pass. The pass
// itself is detached from the caller's cancellation so that a caller giving
// up does not abort the pass other callers are waiting on.
func (m *defaultManager) PullLiveData(ctx context.Context) *Result {
	ch := m.group.DoChan(pullKey, func() (any, error) {
		return m.pull(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		result := *res.Val.(*Result)
		return &result
	case <-ctx.Done():
		slog.InfoContext(ctx, "Caller stopped waiting for sync; pass continues", "reason", ctx.Err())
		return StillRunning()
	}
}

// pull runs one pass and records its outcome
func (m *defaultManager) pull(ctx context.Context) *Result {
	runID := uuid.NewString()
	start := m.clock.Now()

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PullLiveData",
		trace.WithAttributes(
			otel.AttrSyncRunID.String(runID),
			otel.AttrCatalogSource.String(m.source.Location()),
		),
	)
	defer span.End()

	slog.InfoContext(ctx, "Starting sync operation", "run_id", runID, "source", m.source.Location())

	result, syncErr := m.performSyncSafely(ctx)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		slog.ErrorContext(ctx, "Sync failed",
			"run_id", runID,
			"reason", syncErr.Reason,
			"error", syncErr.Message,
			"cause", syncErr.Err)
		result = m.recordFailure(ctx, syncErr)
	} else {
		span.SetAttributes(otel.AttrProductCount.Int(result.ProductCount))
		slog.InfoContext(ctx, "Sync completed successfully",
			"run_id", runID,
			"product_count", result.ProductCount,
			"skipped", result.Skipped,
			"hash", hashPreview(result.Hash))
	}

	result.RunID = runID
	result.Duration = m.clock.Since(start)
	m.syncMetrics.RecordSyncDuration(ctx, result.Duration, result.Success)
	return result
}

// performSyncSafely turns a panic anywhere in the pass into a failed pass
func (m *defaultManager) performSyncSafely(ctx context.Context) (result *Result, syncErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Recovered from panic during sync", "panic", r, "stack", string(debug.Stack()))
			result = nil
			syncErr = &Error{
				Err:     fmt.Errorf("panic: %v", r),
				Message: fmt.Sprintf("unexpected failure: %v", r),
				Reason:  ReasonPanic,
			}
		}
	}()
	return m.performSync(ctx)
}

// performSync fetches, validates, normalizes, filters and stores one generation
func (m *defaultManager) performSync(ctx context.Context) (*Result, *Error) {
	unlock, syncErr := m.acquireLock(ctx)
	if syncErr != nil {
		return nil, syncErr
	}
	defer unlock()

	m.markPending(ctx)

	fetchResult, syncErr := m.fetch(ctx)
	if syncErr != nil {
		return nil, syncErr
	}

	syncedAt := m.clock.Now()
	products := normalize.NormalizeAll(fetchResult.Records, syncedAt)

	if m.filter != nil {
		filtered, err := m.filterService.ApplyFilters(ctx, products, m.filter)
		if err != nil {
			return nil, &Error{Err: err, Message: fmt.Sprintf("Filtering failed: %v", err), Reason: ReasonFilterFailed}
		}
		m.syncMetrics.RecordSkippedRecords(ctx, "filtered", len(products)-len(filtered))
		products = filtered
	}

	if countValid(products) == 0 {
		return nil, &Error{
			Err:     sources.ErrEmptyCatalog,
			Message: fmt.Sprintf("No usable products in %d records from staff API", fetchResult.Count()),
			Reason:  ReasonEmptyCatalog,
		}
	}

	inserted, err := m.store.ReplaceAll(ctx, products)
	if err != nil {
		return nil, &Error{Err: err, Message: fmt.Sprintf("Failed to store products: %v", err), Reason: ReasonStorageFailed}
	}
	skipped := len(products) - inserted
	m.syncMetrics.RecordSkippedRecords(ctx, "invalid", skipped)

	meta := &status.SyncMetadata{
		LastSyncTime:    syncedAt.UnixMilli(),
		ProductCount:    inserted,
		SyncStatus:      status.SyncPhaseSuccess,
		LastSuccessTime: syncedAt.UnixMilli(),
		Hash:            fetchResult.Hash,
		Source:          fetchResult.Source,
	}
	if err := m.store.PutMetadata(ctx, meta); err != nil {
		return nil, &Error{Err: err, Message: fmt.Sprintf("Failed to update sync metadata: %v", err), Reason: ReasonStorageFailed}
	}

	m.recordCatalogSize(ctx, products)

	return &Result{
		Success:      true,
		ProductCount: inserted,
		Message:      fmt.Sprintf("Successfully synced %d products from staff API", inserted),
		Hash:         fetchResult.Hash,
		Skipped:      skipped,
	}, nil
}

// acquireLock takes the cross-process lock when one is configured
func (m *defaultManager) acquireLock(ctx context.Context) (func(), *Error) {
	if m.lockPath == "" {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	fileLock := flock.New(m.lockPath)
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		if err == nil {
			err = fmt.Errorf("lock %s is held by another process", m.lockPath)
		}
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Another sync is already running (lock %s)", m.lockPath),
			Reason:  ReasonLockFailed,
		}
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.WarnContext(ctx, "Failed to release sync lock", "path", m.lockPath, "error", err)
		}
	}, nil
}

// fetch retrieves the catalog within the fetch timeout and rejects an empty one
func (m *defaultManager) fetch(ctx context.Context) (*sources.FetchResult, *Error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	fetchCtx, span := otel.StartSpan(fetchCtx, m.tracer, "sync.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(otel.AttrCatalogSource.String(m.source.Location())),
	)
	defer span.End()

	fetchResult, err := m.source.Fetch(fetchCtx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fetchError(err, m.fetchTimeout)
	}
	span.SetAttributes(otel.AttrResultCount.Int(fetchResult.Count()))

	if fetchResult.Count() == 0 {
		return nil, &Error{
			Err:     sources.ErrEmptyCatalog,
			Message: sources.ErrEmptyCatalog.Error(),
			Reason:  ReasonEmptyCatalog,
		}
	}

	slog.InfoContext(ctx, "Catalog fetched successfully from source",
		"record_count", fetchResult.Count(),
		"shape", fetchResult.Shape,
		"hash", hashPreview(fetchResult.Hash))
	return fetchResult, nil
}

// markPending records that a pass is in flight. The previous generation's
// success time, hash and source are kept. A failed write only costs visibility.
func (m *defaultManager) markPending(ctx context.Context) {
	previous, err := m.store.GetMetadata(ctx)
	if err != nil || previous == nil {
		previous = status.NewDefaultMetadata()
	}

	meta := previous.Copy()
	meta.SyncStatus = status.SyncPhasePending
	meta.LastSyncTime = m.clock.Now().UnixMilli()
	meta.ErrorMessage = ""
	if err := m.store.PutMetadata(ctx, meta); err != nil {
		slog.WarnContext(ctx, "Failed to mark sync as pending", "error", err)
	}
}

// recordFailure writes error metadata and builds the failed Result. The
// previous success time, hash and source are kept so the cached generation
// can still be described.
func (m *defaultManager) recordFailure(ctx context.Context, syncErr *Error) *Result {
	previous, err := m.store.GetMetadata(ctx)
	if err != nil || previous == nil {
		previous = status.NewDefaultMetadata()
	}

	meta := &status.SyncMetadata{
		LastSyncTime:    m.clock.Now().UnixMilli(),
		ProductCount:    0,
		SyncStatus:      status.SyncPhaseError,
		ErrorMessage:    syncErr.Message,
		LastSuccessTime: previous.LastSuccessTime,
		Hash:            previous.Hash,
		Source:          previous.Source,
	}
	if err := m.store.PutMetadata(ctx, meta); err != nil {
		slog.ErrorContext(ctx, "Failed to record sync failure", "error", err)
	}

	return &Result{
		Success:      false,
		ProductCount: 0,
		Message:      "Sync failed: " + syncErr.Message,
	}
}

// recordCatalogSize updates the per-category product gauge, zeroing absent categories
func (m *defaultManager) recordCatalogSize(ctx context.Context, products []catalog.Product) {
	counts := catalog.CountByCategory(products)
	for _, category := range catalog.Categories {
		m.catalogMetrics.RecordProducts(ctx, string(category), int64(counts[category]))
	}
}

// Products returns the cached products
func (m *defaultManager) Products(ctx context.Context) ([]catalog.Product, error) {
	products, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached products: %w", err)
	}
	return products, nil
}

// Metadata returns the sync metadata record
func (m *defaultManager) Metadata(ctx context.Context) (*status.SyncMetadata, error) {
	meta, err := m.store.GetMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}
	return meta, nil
}

// Diagnostics classifies the cached data and summarizes the last sync
func (m *defaultManager) Diagnostics(ctx context.Context) (*diagnostics.Report, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Report, nil
}

// Snapshot reads the cache once and classifies that read
func (m *defaultManager) Snapshot(ctx context.Context) (*Snapshot, error) {
	meta, err := m.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := m.Products(ctx)
	if err != nil {
		return nil, err
	}
	report, served, err := diagnostics.Serve(meta, cached, m.clock.Now(), m.staleAfter)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Report: report, Products: served}, nil
}

// Product looks up one product without loading the whole cache
func (m *defaultManager) Product(ctx context.Context, id string) (*catalog.Product, diagnostics.Provenance, error) {
	meta, err := m.Metadata(ctx)
	if err != nil {
		return nil, "", err
	}
	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count cached products: %w", err)
	}

	source := diagnostics.Classify(meta, count, m.clock.Now(), m.staleAfter)
	if source == diagnostics.ProvenanceFallback {
		fallback, err := diagnostics.FallbackProducts()
		if err != nil {
			return nil, source, err
		}
		for i := range fallback {
			if fallback[i].ID == id {
				return &fallback[i], source, nil
			}
		}
		return nil, source, fmt.Errorf("fallback product %q: %w", id, store.ErrNotFound)
	}

	product, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, source, fmt.Errorf("failed to read cached product %q: %w", id, err)
	}
	return product, source, nil
}

func countValid(products []catalog.Product) int {
	n := 0
	for i := range products {
		if normalize.Validate(&products[i]) == nil {
			n++
		}
	}
	return n
}

func hashPreview(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
