package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/boreal-financial/catalog-sync/internal/api"
	"github.com/boreal-financial/catalog-sync/internal/app/storage"
	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	"github.com/boreal-financial/catalog-sync/internal/sources"
	"github.com/boreal-financial/catalog-sync/internal/store"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	"github.com/boreal-financial/catalog-sync/internal/sync/coordinator"
	"github.com/boreal-financial/catalog-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// CatalogAppOption configures the application builder
type CatalogAppOption func(*catalogAppConfig) error

// catalogAppConfig holds everything needed to wire the application
type catalogAppConfig struct {
	config *config.Config

	// Injected components, built from config when nil
	store     store.Store
	source    sources.CatalogSource
	telemetry *telemetry.Telemetry

	managerOpts   []pkgsync.Option
	schedulerOpts []coordinator.Option

	// HTTP server
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...CatalogAppOption) (*catalogAppConfig, error) {
	cfg := &catalogAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewCatalogApp wires all components and the HTTP server
func NewCatalogApp(ctx context.Context, opts ...CatalogAppOption) (*CatalogApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		_ = components.Close(ctx)
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &CatalogApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := parts[0], parts[1]
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds each API request
func WithRequestTimeout(d time.Duration) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		cfg.requestTimeout = d
		if cfg.writeTimeout <= d {
			cfg.writeTimeout = d + 5*time.Second
		}
		return nil
	}
}

// WithStore injects the product cache instead of building it from config.
// The caller keeps ownership and must close it.
func WithStore(s store.Store) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithCatalogSource injects the catalog source instead of building it from config
func WithCatalogSource(src sources.CatalogSource) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.source = src
		return nil
	}
}

// WithTelemetry injects telemetry providers. The caller keeps ownership.
func WithTelemetry(t *telemetry.Telemetry) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithManagerOptions appends options passed to the sync manager
func WithManagerOptions(opts ...pkgsync.Option) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.managerOpts = append(cfg.managerOpts, opts...)
		return nil
	}
}

// WithSchedulerOptions appends options passed to the scheduler
func WithSchedulerOptions(opts ...coordinator.Option) CatalogAppOption {
	return func(cfg *catalogAppConfig) error {
		cfg.schedulerOpts = append(cfg.schedulerOpts, opts...)
		return nil
	}
}

// buildComponents builds telemetry, storage, source, manager, and scheduler
func buildComponents(ctx context.Context, b *catalogAppConfig) (_ *Components, err error) {
	slog.Info("Initializing sync components")
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close(ctx)
		}
	}()

	c.Telemetry = b.telemetry
	if c.Telemetry == nil {
		c.Telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		c.ownsTelemetry = true
	}

	c.Store = b.store
	if c.Store == nil {
		c.Store, err = storage.NewStore(ctx, &b.config.Storage,
			storage.WithTracer(c.Telemetry.Tracer(store.TracerName)))
		if err != nil {
			return nil, fmt.Errorf("failed to create product cache: %w", err)
		}
		c.ownsStore = true
	}

	c.Source = b.source
	if c.Source == nil {
		c.Source, err = sources.NewCatalogSource(&b.config.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog source: %w", err)
		}
	}

	syncMetrics, err := telemetry.NewSyncMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	catalogMetrics, err := telemetry.NewCatalogMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog metrics: %w", err)
	}

	managerOpts := []pkgsync.Option{
		pkgsync.WithFilter(b.config.Catalog.Filter),
		pkgsync.WithFetchTimeout(b.config.Catalog.GetTimeout()),
		pkgsync.WithLockPath(b.config.Storage.LockPath),
		pkgsync.WithStaleAfter(b.config.Diagnostics.GetStaleAfter()),
		pkgsync.WithTracer(c.Telemetry.Tracer(pkgsync.TracerName)),
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithCatalogMetrics(catalogMetrics),
	}
	c.Manager = pkgsync.NewManager(c.Source, c.Store, append(managerOpts, b.managerOpts...)...)

	c.Feed = notify.NewFeed(b.config.Notifications.GetTTL(), b.config.Notifications.Capacity)

	schedulerOpts := []coordinator.Option{
		coordinator.WithNotifier(notify.Multi(notify.LogNotifier{}, c.Feed)),
		coordinator.WithTracer(c.Telemetry.Tracer(coordinator.TracerName)),
	}
	c.Scheduler = coordinator.New(c.Manager, &b.config.Schedule, append(schedulerOpts, b.schedulerOpts...)...)

	slog.Info("Sync components initialized successfully",
		"catalog_source", c.Source.Location(),
		"storage_type", b.config.Storage.Type)
	return c, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *catalogAppConfig,
	c *Components,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first so they see every request
	metricsMiddleware, err := telemetry.MetricsMiddleware(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	instrumentation := []func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
	}
	if metricsMiddleware != nil {
		instrumentation = append(instrumentation, metricsMiddleware)
	}
	middlewares = append(instrumentation, middlewares...)

	router := api.NewServer(c.Manager, c.Scheduler,
		api.WithMiddlewares(middlewares...),
		api.WithNotificationFeed(c.Feed),
		api.WithReadinessCheck(c.Store.Ping),
		api.WithMetricsHandler(c.Telemetry.MetricsHandler()),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
