// Package redis implements the product cache on Redis.
//
// Products live in one hash keyed by product id; the metadata record is a
// plain string key. ReplaceAll rewrites the hash inside MULTI/EXEC.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
)

// Store is a store.Store backed by a go-redis client
type Store struct {
	client      redis.UniversalClient
	productsKey string
	metadataKey string
}

var _ store.Store = (*Store)(nil)

// New wraps client, namespacing every key under prefix
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		client:      client,
		productsKey: prefix + ":products",
		metadataKey: prefix + ":" + status.MetadataKey,
	}
}

// Init checks the server is reachable; Redis needs no schema
func (s *Store) Init(ctx context.Context) error {
	return s.Ping(ctx)
}

// ReplaceAll deletes the product hash and writes the new generation in one transaction
func (s *Store) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	fields := make(map[string]any, len(products))
	inserted, err := store.InsertEach(ctx, products, func(p *catalog.Product) error {
		if _, exists := fields[p.ID]; exists {
			return store.ErrDuplicateID
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		fields[p.ID] = data
		return nil
	})
	if err != nil {
		return 0, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.productsKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.productsKey, fields)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace products: %w", err)
	}
	return inserted, nil
}

// GetAll returns every product ordered by id
func (s *Store) GetAll(ctx context.Context) ([]catalog.Product, error) {
	values, err := s.client.HGetAll(ctx, s.productsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	products := make([]catalog.Product, 0, len(values))
	for id, raw := range values {
		var p catalog.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product %s: %w", id, err)
		}
		products = append(products, p)
	}
	catalog.SortByID(products)
	return products, nil
}

// Get returns one product
func (s *Store) Get(ctx context.Context, id string) (*catalog.Product, error) {
	raw, err := s.client.HGet(ctx, s.productsKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}

	var p catalog.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product %s: %w", id, err)
	}
	return &p, nil
}

// Count returns the size of the product hash
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.productsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return int(n), nil
}

// GetMetadata reads the metadata key
func (s *Store) GetMetadata(ctx context.Context) (*status.SyncMetadata, error) {
	raw, err := s.client.Get(ctx, s.metadataKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return status.NewDefaultMetadata(), nil
		}
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}

	meta := status.NewDefaultMetadata()
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync metadata: %w", err)
	}
	return meta, nil
}

// PutMetadata overwrites the metadata key
func (s *Store) PutMetadata(ctx context.Context, meta *status.SyncMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal sync metadata: %w", err)
	}
	if err := s.client.Set(ctx, s.metadataKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write sync metadata: %w", err)
	}
	return nil
}

// Ping sends PING
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}
