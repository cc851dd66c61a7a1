package sources

import (
	"fmt"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/httpclient"
)

// NewCatalogSource creates the source selected by the catalog configuration
func NewCatalogSource(cfg *config.CatalogConfig) (CatalogSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog configuration cannot be nil")
	}

	switch cfg.GetSourceType() {
	case config.SourceTypeFile:
		return NewFileSource(cfg.FilePath), nil
	case config.SourceTypeAPI:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("catalog endpoint cannot be empty")
		}
		token, err := cfg.GetToken()
		if err != nil {
			return nil, err
		}
		client := httpclient.NewDefaultClient(cfg.GetTimeout(), httpclient.WithBearerToken(token))
		return NewAPISource(client, cfg.Endpoint, WithMaxAttempts(cfg.MaxAttempts)), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.GetSourceType())
	}
}
