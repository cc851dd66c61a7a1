// Package api provides the HTTP API of the catalog sync service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/boreal-financial/catalog-sync/internal/api/v1"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	"github.com/boreal-financial/catalog-sync/internal/sync/coordinator"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	readinessCheck func(ctx context.Context) error
	metricsHandler http.Handler
	feed           *notify.Feed
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithReadinessCheck sets the check behind /readiness, usually the store's Ping
func WithReadinessCheck(check func(ctx context.Context) error) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readinessCheck = check
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithNotificationFeed exposes the feed at /api/v1/notifications
func WithNotificationFeed(feed *notify.Feed) ServerOption {
	return func(cfg *serverConfig) {
		cfg.feed = feed
	}
}

// NewServer creates and configures the HTTP router
func NewServer(manager pkgsync.Manager, scheduler coordinator.Scheduler, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(cfg.readinessCheck))
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}
	r.Mount("/api/v1", v1.Router(manager, scheduler, cfg.feed))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
