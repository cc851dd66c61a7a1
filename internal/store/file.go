package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

const (
	// ProductsFileName is the file holding the current product generation
	ProductsFileName = "products.json"

	// MetadataFileName is the file holding the sync metadata record
	MetadataFileName = "sync_metadata.json"
)

// FileStore keeps the cache as JSON files in a directory. Each write goes to a
// temporary file that is renamed over the previous one.
type FileStore struct {
	basePath string

	// mu serializes writers; readers rely on rename being atomic
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at basePath
func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

// Init creates the base directory
func (f *FileStore) Init(context.Context) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

// ReplaceAll writes the new generation and renames it into place
func (f *FileStore) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	seen := make(map[string]struct{}, len(products))
	next := make([]catalog.Product, 0, len(products))
	inserted, err := InsertEach(ctx, products, func(p *catalog.Product) error {
		if _, exists := seen[p.ID]; exists {
			return ErrDuplicateID
		}
		seen[p.ID] = struct{}{}
		next = append(next, *p)
		return nil
	})
	if err != nil {
		return 0, err
	}
	catalog.SortByID(next)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeJSON(ProductsFileName, next); err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetAll reads the current generation
func (f *FileStore) GetAll(context.Context) ([]catalog.Product, error) {
	var products []catalog.Product
	found, err := f.readJSON(ProductsFileName, &products)
	if err != nil {
		return nil, err
	}
	if !found || products == nil {
		return []catalog.Product{}, nil
	}
	return products, nil
}

// Get scans the current generation for id
func (f *FileStore) Get(ctx context.Context, id string) (*catalog.Product, error) {
	products, err := f.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			return &products[i], nil
		}
	}
	return nil, ErrNotFound
}

// Count returns the size of the current generation
func (f *FileStore) Count(ctx context.Context) (int, error) {
	products, err := f.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

// GetMetadata reads the metadata record
func (f *FileStore) GetMetadata(context.Context) (*status.SyncMetadata, error) {
	meta := status.NewDefaultMetadata()
	if _, err := f.readJSON(MetadataFileName, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// PutMetadata overwrites the metadata record
func (f *FileStore) PutMetadata(_ context.Context, meta *status.SyncMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(MetadataFileName, meta)
}

// Ping checks that the base directory exists
func (f *FileStore) Ping(context.Context) error {
	info, err := os.Stat(f.basePath)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", f.basePath)
	}
	return nil
}

// Close is a no-op
func (*FileStore) Close() error {
	return nil
}

func (f *FileStore) writeJSON(name string, v any) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	filePath := filepath.Join(f.basePath, name)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file for %s: %w", name, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}

// readJSON decodes the named file into v and reports whether it existed
func (f *FileStore) readJSON(name string, v any) (bool, error) {
	//nolint:gosec // File path is internally managed, not user input
	data, err := os.ReadFile(filepath.Join(f.basePath, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return true, nil
}
