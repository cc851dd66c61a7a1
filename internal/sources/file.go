package sources

import (
	"context"
	"fmt"
	"os"
	"time"
)

// fileSource reads the catalog from a local JSON file
type fileSource struct {
	path string
}

// NewFileSource creates a source reading path on every fetch
func NewFileSource(path string) CatalogSource {
	return &fileSource{path: path}
}

// Location returns the file path
func (s *fileSource) Location() string {
	return s.path
}

// Fetch reads and parses the file
func (s *fileSource) Fetch(ctx context.Context) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	//nolint:gosec // File path comes from user configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", s.path)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", s.path, err)
	}

	records, shape, err := ExtractRecords(data)
	if err != nil {
		return nil, err
	}

	return NewFetchResult(records, shape, s.path, time.Now()), nil
}
