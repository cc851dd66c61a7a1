package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/boreal-financial/catalog-sync/internal/store"
	schedmocks "github.com/boreal-financial/catalog-sync/internal/sync/coordinator/mocks"
)

// freeAddress returns a loopback address that is free at the time of the call
func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestCatalogApp_StartServesSyncedProducts(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	addr := freeAddress(t)

	app, err := NewCatalogApp(context.Background(),
		WithConfig(createTestConfig(t, "")),
		WithAddress(addr),
		WithStore(st),
	)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	// The startup pass fills the cache and the API serves it
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/products")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var body struct {
			Source string `json:"source"`
			Count  int    `json:"count"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return body.Source == "staff_api" && body.Count == 2
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestCatalogApp_StopDestroysScheduler(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	app, err := NewCatalogApp(context.Background(),
		WithConfig(createTestConfig(t, "")),
		WithAddress(freeAddress(t)),
	)
	require.NoError(t, err)

	scheduler := schedmocks.NewMockScheduler(ctrl)
	scheduler.EXPECT().Destroy().Times(2)
	app.components.Scheduler = scheduler

	require.NoError(t, app.Stop(time.Second))
	// A second Stop is harmless
	require.NoError(t, app.Stop(time.Second))
}

func TestCatalogApp_StartFailsWhenSchedulerFails(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	app, err := NewCatalogApp(context.Background(),
		WithConfig(createTestConfig(t, "")),
		WithAddress(freeAddress(t)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.components.Close(context.Background()) })

	scheduler := schedmocks.NewMockScheduler(ctrl)
	scheduler.EXPECT().Initialize(gomock.Any()).Return(context.Canceled)
	app.components.Scheduler = scheduler

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start scheduler")
}

func TestCatalogApp_StartError_AddressInUse(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	app, err := NewCatalogApp(context.Background(),
		WithConfig(createTestConfig(t, "")),
		WithAddress(listener.Addr().String()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.components.Close(context.Background()) })

	scheduler := schedmocks.NewMockScheduler(ctrl)
	scheduler.EXPECT().Initialize(gomock.Any()).Return(nil)
	app.components.Scheduler = scheduler

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
}

func TestCatalogApp_Accessors(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t, "")
	app, err := NewCatalogApp(context.Background(), WithConfig(cfg), WithAddress(":9092"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.components.Close(context.Background()) })

	assert.Same(t, cfg, app.GetConfig())
	assert.Equal(t, ":9092", app.GetHTTPServer().Addr)
	assert.NotNil(t, app.Components().Manager)
}
