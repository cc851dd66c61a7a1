// Package app wires the catalog sync service together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/boreal-financial/catalog-sync/internal/config"
)

// CatalogApp encapsulates all components needed to run the catalog sync service.
// It provides lifecycle management and graceful shutdown capabilities.
type CatalogApp struct {
	config     *config.Config
	components *Components
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the scheduler and then the HTTP server.
// This method blocks until the HTTP server stops or encounters an error.
func (app *CatalogApp) Start() error {
	if err := app.components.Scheduler.Initialize(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop stops the scheduler, shuts down the HTTP server, and releases the components
func (app *CatalogApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	app.components.Scheduler.Destroy()

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		slog.Info("Server shutdown complete")
	}
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *CatalogApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *CatalogApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *CatalogApp) Components() *Components {
	return app.components
}
