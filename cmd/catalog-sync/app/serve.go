package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	internalapp "github.com/boreal-financial/catalog-sync/internal/app"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // Cache reads should respond quickly
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync scheduler and the catalog API",
		Long: `Start the sync scheduler and the catalog API.

A sync pass runs at startup and at every configured checkpoint. The API serves
the cached products, the sync status, and diagnostics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Duration("request-timeout", serverRequestTimeout, "Maximum duration of an API request")
	cmd.Flags().Duration("shutdown-timeout", defaultGracefulTimeout, "Maximum duration of a graceful shutdown")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}
	requestTimeout, err := cmd.Flags().GetDuration("request-timeout")
	if err != nil {
		return fmt.Errorf("failed to get request-timeout flag: %w", err)
	}
	shutdownTimeout, err := cmd.Flags().GetDuration("shutdown-timeout")
	if err != nil {
		return fmt.Errorf("failed to get shutdown-timeout flag: %w", err)
	}

	slog.Info("Starting catalog sync service",
		"address", address,
		"storage_type", cfg.Storage.Type,
		"timezone", cfg.Schedule.Timezone,
		"checkpoints", cfg.Schedule.Checkpoints)

	catalogApp, err := internalapp.NewCatalogApp(ctx,
		internalapp.WithConfig(cfg),
		internalapp.WithAddress(address),
		internalapp.WithRequestTimeout(requestTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- catalogApp.Start()
	}()

	select {
	case err := <-errChan:
		stopErr := catalogApp.Stop(shutdownTimeout)
		if err != nil {
			return err
		}
		return stopErr
	case <-ctx.Done():
	}

	return catalogApp.Stop(shutdownTimeout)
}

// withComponents loads the configuration, wires the components, and closes them after fn
func withComponents(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *internalapp.Components) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	components, err := internalapp.NewComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to close components", "error", err)
		}
	}()

	return fn(ctx, components)
}
