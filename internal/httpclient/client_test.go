package httpclient_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-financial/catalog-sync/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled so that
// closing one server does not disturb parallel tests sharing the transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, 5 * time.Second, 10 * time.Minute} {
		client := httpclient.NewDefaultClient(timeout)
		require.NotNil(t, client)
	}
}

func TestDefaultClient_Get_Success(t *testing.T) {
	t.Parallel()

	var received http.Header
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"lender":"Acme"}]`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)

	data, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `[{"lender":"Acme"}]`, string(data))
	assert.Equal(t, "catalog-sync/1.0", received.Get("User-Agent"))
	assert.Equal(t, "application/json", received.Get("Accept"))
	assert.Empty(t, received.Get("Authorization"), "no token configured")
}

func TestDefaultClient_Get_AcceptsAny2xx(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	data, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), data)
}

func TestDefaultClient_Get_BearerToken(t *testing.T) {
	t.Parallel()

	var authHeader string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5*time.Second, httpclient.WithBearerToken("s3cret"))

	_, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", authHeader)
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	for _, code := range []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
	} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)

			require.Error(t, err)
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", code))

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, code, httpErr.StatusCode)
		})
	}
}

func TestDefaultClient_Get_RequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		errorContains string
	}{
		{name: "invalid URL scheme", url: "://invalid-url", errorContains: "failed to create request"},
		{name: "unreachable host", url: "http://invalid-host-does-not-exist.local:9999", errorContains: "failed to execute request"},
		{name: "empty URL", url: "", errorContains: "failed to execute request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), tt.url)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDefaultClient_Get_Timeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("client timeout", func(t *testing.T) {
		t.Parallel()
		_, err := httpclient.NewDefaultClient(50*time.Millisecond).Get(context.Background(), server.URL)
		require.Error(t, err)
	})

	t.Run("context deadline", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := httpclient.NewDefaultClient(30*time.Second).Get(ctx, server.URL)
		require.Error(t, err)
	})
}

func TestDefaultClient_Get_SizeLimitExceeded(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", httpclient.MaxResponseSize+1))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")
}
