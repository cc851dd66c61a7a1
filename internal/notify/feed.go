package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Feed keeps the most recent notifications until they expire.
// It is the server-side stand-in for an on-screen toast.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	ttl      time.Duration
	capacity int
	clock    clock.PassiveClock
}

var _ Notifier = (*Feed)(nil)

// FeedOption configures a Feed
type FeedOption func(*Feed)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.PassiveClock) FeedOption {
	return func(f *Feed) {
		f.clock = c
	}
}

// NewFeed creates a feed that keeps at most capacity notifications for ttl each
func NewFeed(ttl time.Duration, capacity int, opts ...FeedOption) *Feed {
	if capacity <= 0 {
		capacity = 1
	}
	f := &Feed{
		ttl:      ttl,
		capacity: capacity,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Notify stamps n and appends it, dropping the oldest entry when full
func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.clock.Now()
	}
	n.ExpiresAt = n.CreatedAt.Add(f.ttl)

	f.items = append(f.items, n)
	if len(f.items) > f.capacity {
		f.items = append([]Notification(nil), f.items[len(f.items)-f.capacity:]...)
	}
}

// Active returns the unexpired notifications, newest first
func (f *Feed) Active() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	live := f.items[:0]
	for _, n := range f.items {
		if now.Before(n.ExpiresAt) {
			live = append(live, n)
		}
	}
	f.items = live

	out := make([]Notification, len(live))
	for i, n := range live {
		out[len(live)-1-i] = n
	}
	return out
}
