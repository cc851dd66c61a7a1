package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/boreal-financial/catalog-sync/internal/httpclient"
)

// LendersPath is appended to the configured endpoint
const LendersPath = "/public/lenders"

// DefaultRetryInterval is the first delay between fetch attempts
const DefaultRetryInterval = 500 * time.Millisecond

// apiSource fetches the catalog from the staff API
type apiSource struct {
	httpClient    httpclient.Client
	url           string
	maxAttempts   uint
	retryInterval time.Duration
	now           func() time.Time
}

// APIOption configures an API source
type APIOption func(*apiSource)

// WithMaxAttempts sets the number of fetch attempts; values below 1 mean a single attempt
func WithMaxAttempts(n int) APIOption {
	return func(s *apiSource) {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = uint(n)
	}
}

// WithRetryInterval sets the initial backoff interval between attempts
func WithRetryInterval(d time.Duration) APIOption {
	return func(s *apiSource) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// NewAPISource creates a source reading <endpoint>/public/lenders through client
func NewAPISource(client httpclient.Client, endpoint string, opts ...APIOption) CatalogSource {
	s := &apiSource{
		httpClient:    client,
		url:           LendersURL(endpoint),
		maxAttempts:   1,
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LendersURL joins the endpoint and LendersPath without doubling slashes
func LendersURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + LendersPath
}

// Location returns the lenders URL
func (s *apiSource) Location() string {
	return s.url
}

// Fetch retrieves the catalog. Transport errors and 5xx/429 responses are
// retried up to the configured attempt count; other HTTP errors fail at once.
func (s *apiSource) Fetch(ctx context.Context) (*FetchResult, error) {
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := s.httpClient.Get(ctx, s.url)
		if err == nil {
			return body, nil
		}

		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Temporary() {
			return nil, backoff.Permanent(err)
		}

		slog.WarnContext(ctx, "Catalog fetch attempt failed",
			"url", s.url,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err)
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.url, err)
	}

	records, shape, err := ExtractRecords(body)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Fetched catalog from API",
		"url", s.url,
		"shape", shape,
		"record_count", len(records),
		"attempts", attempt)

	return NewFetchResult(records, shape, s.url, s.now()), nil
}
