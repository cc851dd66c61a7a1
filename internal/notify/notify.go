// Package notify delivers the short-lived success and failure notices produced
// by every sync pass.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Level is the severity of a notification
type Level string

const (
	// LevelSuccess reports a completed sync
	LevelSuccess Level = "success"
	// LevelError reports a failed sync
	LevelError Level = "error"
	// LevelInfo reports anything else worth showing
	LevelInfo Level = "info"
)

// Notification is one transient notice
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Trigger   string    `json:"trigger,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ForSync builds the notification for one sync outcome
func ForSync(success bool, message, trigger string) Notification {
	if success {
		return Notification{Level: LevelSuccess, Title: "Lender products updated", Message: message, Trigger: trigger}
	}
	return Notification{Level: LevelError, Title: "Lender product sync failed", Message: message, Trigger: trigger}
}

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks -source=notify.go Notifier

// Notifier receives notifications. Implementations must not block for long;
// they are called from the sync path.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes every notification to slog
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

// Notify logs n at a level matching its severity
func (LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelError
	}
	slog.Log(ctx, level, n.Title, "message", n.Message, "trigger", n.Trigger)
}

type multi []Notifier

// Multi fans a notification out to every non-nil notifier in order
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}
