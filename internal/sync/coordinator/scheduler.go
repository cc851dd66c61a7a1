package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/notify"
	"github.com/boreal-financial/catalog-sync/internal/otel"
	pkgsync "github.com/boreal-financial/catalog-sync/internal/sync"
)

// TracerName is the name of the scheduler's tracer
const TracerName = "github.com/boreal-financial/catalog-sync/sync/coordinator"

// Triggers recorded on each pass
const (
	TriggerStartup   = "startup"
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// State is the scheduler's lifecycle state
type State string

const (
	// StateUninitialized is the state before the first Initialize
	StateUninitialized State = "uninitialized"
	// StateScheduled means the loop is running and waiting for the next window
	StateScheduled State = "scheduled"
	// StateSyncing means a pass is in progress
	StateSyncing State = "syncing"
	// StateStopped is the state after Destroy
	StateStopped State = "stopped"
)

// Status is a snapshot of the scheduler for status endpoints
type Status struct {
	State          State           `json:"state"`
	NextCheckpoint time.Time       `json:"nextCheckpoint"`
	LastWindow     string          `json:"lastWindow,omitempty"`
	LastTrigger    string          `json:"lastTrigger,omitempty"`
	LastResult     *pkgsync.Result `json:"lastResult,omitempty"`
}

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks -source=scheduler.go Scheduler

// Scheduler runs sync passes at startup, at checkpoint windows, and on demand
type Scheduler interface {
	// Initialize starts the check loop and an immediate pass. Calling it
	// while running is a no-op.
	Initialize(ctx context.Context) error

	// Destroy stops the check loop, letting a scheduled pass in progress
	// finish first. The scheduler may be initialized again.
	Destroy()

	// Trigger runs a pass now, or joins the one in progress. When ctx ends
	// first it returns pkgsync.StillRunning; the pass still completes and is
	// recorded and notified.
	Trigger(ctx context.Context) *pkgsync.Result

	// State returns the current lifecycle state
	State() State

	// Status returns a snapshot of the schedule and the last pass
	Status() Status
}

// defaultScheduler is the default implementation of Scheduler
type defaultScheduler struct {
	manager    pkgsync.Manager
	notifier   notify.Notifier
	clock      clock.Clock
	tracer     trace.Tracer
	window     window
	interval   time.Duration
	runOnStart bool

	mu          gosync.Mutex
	running     bool
	stopped     bool
	inFlight    int
	lastWindow  string
	lastTrigger string
	lastResult  *pkgsync.Result
	cancelFunc  context.CancelFunc
	done        chan struct{}
}

// Option configures the scheduler
type Option func(*defaultScheduler)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.Clock) Option {
	return func(s *defaultScheduler) {
		s.clock = c
	}
}

// WithNotifier sets where pass notifications are sent
func WithNotifier(n notify.Notifier) Option {
	return func(s *defaultScheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTracer sets the tracer used for pass spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *defaultScheduler) {
		s.tracer = tracer
	}
}

// New creates a scheduler for manager using the schedule configuration
func New(manager pkgsync.Manager, cfg *config.ScheduleConfig, opts ...Option) Scheduler {
	if cfg == nil {
		cfg = &config.ScheduleConfig{}
	}
	checkpoints := cfg.Checkpoints
	if len(checkpoints) == 0 {
		checkpoints = config.DefaultCheckpoints
	}
	minutes := cfg.WindowMinutes
	if minutes <= 0 {
		minutes = config.DefaultWindowMinutes
	}

	s := &defaultScheduler{
		manager:    manager,
		notifier:   notify.LogNotifier{},
		clock:      clock.RealClock{},
		window:     newWindow(cfg.GetLocation(), checkpoints, minutes),
		interval:   cfg.GetCheckInterval(),
		runOnStart: cfg.ShouldRunOnStart(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize starts the background loop
func (s *defaultScheduler) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cannot initialize scheduler: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.done = make(chan struct{})
	s.running = true
	s.stopped = false

	slog.Info("Starting sync scheduler",
		"timezone", s.window.location.String(),
		"checkpoints", s.window.checkpoints,
		"window_minutes", s.window.minutes,
		"check_interval", s.interval,
		"run_on_start", s.runOnStart)

	go s.loop(loopCtx, s.done)
	return nil
}

// Destroy cancels the loop and waits for it to exit
func (s *defaultScheduler) Destroy() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	slog.Info("Stopping sync scheduler")
	s.cancelFunc()
	done := s.done
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	<-done
}

// Trigger runs a manual pass
func (s *defaultScheduler) Trigger(ctx context.Context) *pkgsync.Result {
	outcome := make(chan *pkgsync.Result, 1)
	go func() {
		outcome <- s.runPass(context.WithoutCancel(ctx), TriggerManual)
	}()

	select {
	case result := <-outcome:
		return result
	case <-ctx.Done():
		slog.InfoContext(ctx, "Caller stopped waiting for manual sync; pass continues", "reason", ctx.Err())
		return pkgsync.StillRunning()
	}
}

// State returns the lifecycle state
func (s *defaultScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *defaultScheduler) stateLocked() State {
	switch {
	case s.running && s.inFlight > 0:
		return StateSyncing
	case s.running:
		return StateScheduled
	case s.stopped:
		return StateStopped
	default:
		return StateUninitialized
	}
}

// Status returns a snapshot of the scheduler
func (s *defaultScheduler) Status() Status {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:          s.stateLocked(),
		NextCheckpoint: s.window.next(now),
		LastWindow:     s.lastWindow,
		LastTrigger:    s.lastTrigger,
		LastResult:     s.lastResult,
	}
}

// loop runs the startup pass and then wakes at each interval or checkpoint
func (s *defaultScheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		close(done)
		slog.Info("Sync scheduler stopped")
	}()

	if s.runOnStart {
		// A startup pass inside a window counts as that window's pass.
		if key, ok := s.window.key(s.clock.Now()); ok {
			s.mu.Lock()
			s.lastWindow = key
			s.mu.Unlock()
		}
		s.runPass(context.WithoutCancel(ctx), TriggerStartup)
	}

	for {
		timer := s.clock.NewTimer(s.nextWake(s.clock.Now()))
		select {
		case <-timer.C():
			s.checkWindow(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// nextWake returns how long to sleep: the check interval, cut short at the next checkpoint
func (s *defaultScheduler) nextWake(now time.Time) time.Duration {
	untilCheckpoint := s.window.next(now).Sub(now)
	if untilCheckpoint < s.interval {
		return untilCheckpoint
	}
	return s.interval
}

// checkWindow starts a scheduled pass when now opens a window that has not run yet
func (s *defaultScheduler) checkWindow(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Recovered from panic in scheduler check", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	key, ok := s.window.key(s.clock.Now())
	if !ok {
		slog.DebugContext(ctx, "Outside sync window")
		return
	}

	s.mu.Lock()
	if s.lastWindow == key {
		s.mu.Unlock()
		slog.DebugContext(ctx, "Sync window already handled", "window", key)
		return
	}
	s.lastWindow = key
	s.mu.Unlock()

	slog.InfoContext(ctx, "Sync window opened", "window", key)
	s.runPass(context.WithoutCancel(ctx), TriggerScheduled)
}

// runPass delegates to the manager and notifies the outcome. ctx must not be
// cancellable, so the notification always carries the pass outcome. A
// panicking manager is reported as a failed pass.
func (s *defaultScheduler) runPass(ctx context.Context, trigger string) (result *pkgsync.Result) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	ctx, span := otel.StartSpan(ctx, s.tracer, "scheduler.RunPass",
		trace.WithAttributes(otel.AttrSyncTrigger.String(trigger)))

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Recovered from panic during sync pass",
				"trigger", trigger, "panic", r, "stack", string(debug.Stack()))
			result = &pkgsync.Result{Success: false, Message: fmt.Sprintf("Sync failed: unexpected failure: %v", r)}
		}

		s.mu.Lock()
		s.inFlight--
		if !result.InProgress {
			s.lastTrigger = trigger
			s.lastResult = result
		}
		s.mu.Unlock()

		if result.InProgress {
			span.End()
			return
		}

		if !result.Success {
			otel.RecordError(span, errors.New(result.Message))
		}
		span.End()
		s.notifier.Notify(ctx, notify.ForSync(result.Success, result.Message, trigger))
	}()

	slog.InfoContext(ctx, "Running sync pass", "trigger", trigger)
	result = s.manager.PullLiveData(ctx)
	if result == nil {
		result = &pkgsync.Result{Success: false, Message: "Sync failed: no result"}
	}
	return result
}
