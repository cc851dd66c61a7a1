// Package storage builds the configured product cache backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/store"
	"github.com/boreal-financial/catalog-sync/internal/store/postgres"
	redisstore "github.com/boreal-financial/catalog-sync/internal/store/redis"
	"github.com/boreal-financial/catalog-sync/internal/store/sqlite"
)

// Option configures NewStore
type Option func(*options)

type options struct {
	tracer   trace.Tracer
	skipInit bool
}

// WithTracer wraps the store so every call records a span.
// If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithoutInit skips schema creation, for read-only commands against an existing cache
func WithoutInit() Option {
	return func(o *options) {
		o.skipInit = true
	}
}

// NewStore creates the backend named by cfg.Type and initializes its schema.
// The caller owns the returned store and must Close it.
func NewStore(ctx context.Context, cfg *config.StorageConfig, opts ...Option) (store.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage configuration cannot be nil")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s, system, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s = store.WithTracing(s, o.tracer, system)

	if !o.skipInit {
		if err := s.Init(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
		}
	}

	slog.Info("Product cache ready", "storage_type", cfg.Type)
	return s, nil
}

// newBackend returns the store and the db.system value used to tag its spans
func newBackend(ctx context.Context, cfg *config.StorageConfig) (store.Store, string, error) {
	switch cfg.Type {
	case config.StorageTypeSQLite, "":
		path := config.DefaultSQLitePath
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = cfg.SQLite.Path
		}
		slog.Debug("Opening SQLite storage", "path", path)
		s, err := sqlite.New(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return s, "sqlite", nil

	case config.StorageTypePostgres:
		if cfg.Postgres == nil {
			return nil, "", fmt.Errorf("postgres configuration is required for postgres storage type")
		}
		connString, err := cfg.Postgres.GetConnectionString()
		if err != nil {
			return nil, "", err
		}
		slog.Debug("Opening PostgreSQL storage", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		s, err := postgres.New(ctx, connString, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return s, "postgresql", nil

	case config.StorageTypeRedis:
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, "", err
		}
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = config.DefaultRedisKeyPrefix
		}
		return redisstore.New(client, prefix), "redis", nil

	case config.StorageTypeFile:
		baseDir := config.DefaultFileStorageDir
		if cfg.File != nil && cfg.File.BaseDir != "" {
			baseDir = cfg.File.BaseDir
		}
		slog.Debug("Opening file storage", "base_dir", baseDir)
		return store.NewFileStore(baseDir), "file", nil

	case config.StorageTypeMemory:
		return store.NewMemoryStore(), "memory", nil

	default:
		return nil, "", fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewRedisClient builds a go-redis client from cfg
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required for redis storage type")
	}
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis password: %w", err)
	}
	slog.Debug("Opening Redis storage", "addr", cfg.Addr, "db", cfg.DB)
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	}), nil
}
