package store

import (
	"context"
	"sync"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

// MemoryStore keeps the cache in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	meta     *status.SyncMetadata
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]catalog.Product)}
}

// Init is a no-op
func (*MemoryStore) Init(context.Context) error {
	return nil
}

// ReplaceAll builds the new generation aside and swaps it in under the write lock
func (s *MemoryStore) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	next := make(map[string]catalog.Product, len(products))
	inserted, err := InsertEach(ctx, products, func(p *catalog.Product) error {
		if _, exists := next[p.ID]; exists {
			return ErrDuplicateID
		}
		next[p.ID] = *p
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.products = next
	s.mu.Unlock()
	return inserted, nil
}

// GetAll returns the current generation ordered by id
func (s *MemoryStore) GetAll(context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()

	catalog.SortByID(out)
	return out, nil
}

// Get returns one product
func (s *MemoryStore) Get(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Count returns the number of products
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

// GetMetadata returns a copy of the metadata record
func (s *MemoryStore) GetMetadata(context.Context) (*status.SyncMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta == nil {
		return status.NewDefaultMetadata(), nil
	}
	return s.meta.Copy(), nil
}

// PutMetadata stores a copy of meta
func (s *MemoryStore) PutMetadata(_ context.Context, meta *status.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta.Copy()
	return nil
}

// Ping always succeeds
func (*MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (*MemoryStore) Close() error {
	return nil
}
