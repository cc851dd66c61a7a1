package coordinator

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
	syncmocks "github.com/boreal-financial/catalog-sync/internal/sync/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu  gosync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) triggers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Trigger)
	}
	return out
}

func (r *recordingNotifier) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func edmontonTime(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Edmonton")
	require.NoError(t, err)
	return time.Date(2025, 6, 1, hour, minute, 0, 0, loc)
}

// waitForTimer blocks until the loop is waiting on the fake clock, which
// means any pass started by the previous wake-up has finished.
func waitForTimer(t *testing.T, clk *clocktesting.FakeClock) {
	t.Helper()
	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
}

func successResult() *pkgsync.Result {
	return &pkgsync.Result{Success: true, ProductCount: 5, Message: "Successfully synced 5 products from staff API"}
}

func scheduleConfig(interval string, runOnStart bool) *config.ScheduleConfig {
	return &config.ScheduleConfig{
		Timezone:      "America/Edmonton",
		Checkpoints:   []int{0, 12},
		WindowMinutes: 5,
		CheckInterval: interval,
		RunOnStart:    ptr.To(runOnStart),
	}
}

func TestScheduler_StartupAndCheckpoint(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()).Times(2)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 11, 30))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(notifier))

	assert.Equal(t, StateUninitialized, scheduler.State())
	require.NoError(t, scheduler.Initialize(context.Background()))
	defer scheduler.Destroy()

	waitForTimer(t, clk)
	assert.Equal(t, []string{TriggerStartup}, notifier.triggers())
	assert.Equal(t, StateScheduled, scheduler.State())

	// The loop wakes at the checkpoint rather than a full interval later.
	clk.Step(30 * time.Minute)
	waitForTimer(t, clk)
	assert.Equal(t, []string{TriggerStartup, TriggerScheduled}, notifier.triggers())
	assert.Equal(t, notify.LevelSuccess, notifier.last().Level)

	clk.Step(time.Hour)
	waitForTimer(t, clk)
	assert.Len(t, notifier.triggers(), 2, "13:00 is outside every window")

	status := scheduler.Status()
	assert.Equal(t, "2025-06-01@12", status.LastWindow)
	assert.Equal(t, TriggerScheduled, status.LastTrigger)
	assert.True(t, edmontonTime(t, 24, 0).Equal(status.NextCheckpoint))
}

func TestScheduler_WindowRunsOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()).Times(1)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 11, 59))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1m", false), WithClock(clk), WithNotifier(notifier))

	require.NoError(t, scheduler.Initialize(context.Background()))
	defer scheduler.Destroy()

	for range 8 {
		waitForTimer(t, clk)
		clk.Step(time.Minute)
	}
	waitForTimer(t, clk)

	assert.Equal(t, []string{TriggerScheduled}, notifier.triggers())
}

func TestScheduler_StartupInsideWindowCountsAsWindowPass(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()).Times(1)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 12, 1))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1m", true), WithClock(clk), WithNotifier(notifier))

	require.NoError(t, scheduler.Initialize(context.Background()))
	defer scheduler.Destroy()

	waitForTimer(t, clk)
	clk.Step(time.Minute)
	waitForTimer(t, clk)

	assert.Equal(t, []string{TriggerStartup}, notifier.triggers())
}

func TestScheduler_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()).Times(1)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 9, 0))
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(&recordingNotifier{}))

	require.NoError(t, scheduler.Initialize(context.Background()))
	require.NoError(t, scheduler.Initialize(context.Background()))
	waitForTimer(t, clk)

	scheduler.Destroy()
	assert.Equal(t, StateStopped, scheduler.State())
}

func TestScheduler_ReinitializeAfterDestroy(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()).Times(2)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 9, 0))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(notifier))

	require.NoError(t, scheduler.Initialize(context.Background()))
	waitForTimer(t, clk)
	scheduler.Destroy()
	assert.Equal(t, StateStopped, scheduler.State())

	// Destroy twice is a no-op.
	scheduler.Destroy()

	require.NoError(t, scheduler.Initialize(context.Background()))
	assert.Eventually(t, func() bool { return len(notifier.triggers()) == 2 }, 5*time.Second, time.Millisecond)
	scheduler.Destroy()
}

func TestScheduler_FailuresDoNotStopScheduling(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	gomock.InOrder(
		manager.EXPECT().PullLiveData(gomock.Any()).Return(&pkgsync.Result{
			Success: false,
			Message: "Sync failed: Staff API error: 500 Internal Server Error",
		}),
		manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()),
	)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 11, 0))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(notifier))

	require.NoError(t, scheduler.Initialize(context.Background()))
	defer scheduler.Destroy()

	waitForTimer(t, clk)
	assert.Equal(t, notify.LevelError, notifier.last().Level)
	assert.Equal(t, "Sync failed: Staff API error: 500 Internal Server Error", notifier.last().Message)

	clk.Step(time.Hour)
	waitForTimer(t, clk)
	assert.Equal(t, notify.LevelSuccess, notifier.last().Level)
}

func TestScheduler_RecoversFromPanickingPass(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	gomock.InOrder(
		manager.EXPECT().PullLiveData(gomock.Any()).DoAndReturn(func(context.Context) *pkgsync.Result {
			panic("boom")
		}),
		manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult()),
	)

	clk := clocktesting.NewFakeClock(edmontonTime(t, 23, 30))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(notifier))

	require.NoError(t, scheduler.Initialize(context.Background()))
	defer scheduler.Destroy()

	waitForTimer(t, clk)
	failed := notifier.last()
	assert.Equal(t, notify.LevelError, failed.Level)
	assert.Equal(t, "Sync failed: unexpected failure: boom", failed.Message)

	clk.Step(30 * time.Minute)
	waitForTimer(t, clk)
	assert.Equal(t, []string{TriggerStartup, TriggerScheduled}, notifier.triggers())
}

func TestScheduler_ManualTrigger(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(successResult())

	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithNotifier(notifier))

	result := scheduler.Trigger(context.Background())
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, []string{TriggerManual}, notifier.triggers())
	assert.Equal(t, StateUninitialized, scheduler.State(), "a manual pass does not start the loop")
	assert.Equal(t, result, scheduler.Status().LastResult)
}

func TestScheduler_TriggerCallerStopsWaiting(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	manager.EXPECT().PullLiveData(gomock.Any()).DoAndReturn(func(ctx context.Context) *pkgsync.Result {
		close(entered)
		<-release
		assert.NoError(t, ctx.Err(), "the pass must outlive the caller")
		return successResult()
	})

	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithNotifier(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	result := scheduler.Trigger(ctx)
	require.NotNil(t, result)
	assert.True(t, result.InProgress)
	assert.False(t, result.Success)
	assert.Equal(t, pkgsync.MessageStillRunning, result.Message)
	assert.Empty(t, notifier.triggers(), "no outcome is known yet")
	assert.Nil(t, scheduler.Status().LastResult)

	close(release)
	require.Eventually(t, func() bool {
		return len(notifier.triggers()) == 1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, notify.LevelSuccess, notifier.last().Level)
	assert.Equal(t, "Successfully synced 5 products from staff API", notifier.last().Message)
	require.Eventually(t, func() bool {
		last := scheduler.Status().LastResult
		return last != nil && last.Success
	}, 5*time.Second, time.Millisecond)
}

func TestScheduler_DestroyDuringStartupPassReportsOutcome(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	manager.EXPECT().PullLiveData(gomock.Any()).DoAndReturn(func(ctx context.Context) *pkgsync.Result {
		close(entered)
		<-release
		assert.NoError(t, ctx.Err(), "Destroy must not cancel a running pass")
		return successResult()
	})

	clk := clocktesting.NewFakeClock(edmontonTime(t, 9, 0))
	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(notifier))
	require.NoError(t, scheduler.Initialize(context.Background()))
	<-entered

	destroyed := make(chan struct{})
	go func() {
		scheduler.Destroy()
		close(destroyed)
	}()

	select {
	case <-destroyed:
		t.Fatal("Destroy returned while the startup pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-destroyed:
	case <-time.After(5 * time.Second):
		t.Fatal("Destroy did not return after the pass finished")
	}

	assert.Equal(t, []string{TriggerStartup}, notifier.triggers())
	assert.Equal(t, notify.LevelSuccess, notifier.last().Level)
	assert.Equal(t, StateStopped, scheduler.State())
	assert.True(t, scheduler.Status().LastResult.Success)
}

func TestScheduler_ManagerStillRunningIsNotAFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PullLiveData(gomock.Any()).Return(pkgsync.StillRunning())

	notifier := &recordingNotifier{}
	scheduler := New(manager, scheduleConfig("1h", true), WithNotifier(notifier))

	result := scheduler.Trigger(context.Background())
	assert.True(t, result.InProgress)
	assert.Empty(t, notifier.triggers())
	assert.Nil(t, scheduler.Status().LastResult)
}

func TestScheduler_StateWhileSyncing(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	manager.EXPECT().PullLiveData(gomock.Any()).DoAndReturn(func(context.Context) *pkgsync.Result {
		close(entered)
		<-release
		return successResult()
	})

	clk := clocktesting.NewFakeClock(edmontonTime(t, 9, 0))
	scheduler := New(manager, scheduleConfig("1h", true), WithClock(clk), WithNotifier(&recordingNotifier{}))

	require.NoError(t, scheduler.Initialize(context.Background()))
	<-entered
	assert.Equal(t, StateSyncing, scheduler.State())

	close(release)
	waitForTimer(t, clk)
	assert.Equal(t, StateScheduled, scheduler.State())
	scheduler.Destroy()
}

func TestScheduler_InitializeWithCancelledContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	scheduler := New(syncmocks.NewMockManager(ctrl), scheduleConfig("1h", true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := scheduler.Initialize(ctx)
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, scheduler.State())
}

func TestScheduler_DestroyBeforeInitialize(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	scheduler := New(syncmocks.NewMockManager(ctrl), nil)

	assert.NotPanics(t, scheduler.Destroy)
	assert.Equal(t, StateUninitialized, scheduler.State())
}

func TestNextWake(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	s := New(syncmocks.NewMockManager(ctrl), scheduleConfig("1h", true)).(*defaultScheduler)

	assert.Equal(t, time.Hour, s.nextWake(edmontonTime(t, 9, 0)))
	assert.Equal(t, 10*time.Minute, s.nextWake(edmontonTime(t, 11, 50)))
}
