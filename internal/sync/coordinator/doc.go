// Package coordinator schedules sync passes.
//
// The Scheduler sits on top of sync.Manager and decides when a pass runs:
//
//   - once when it is initialized
//   - at each checkpoint hour (00:00 and 12:00 in the reference timezone by
//     default), once per window
//   - whenever Trigger is called
//
// Overlapping passes are coalesced by the manager, so a manual trigger that
// lands during a scheduled pass simply receives that pass's result.
//
// # Lifecycle
//
//	Uninitialized --Initialize--> Scheduled <--> Syncing
//	                                  |
//	                               Destroy
//	                                  v
//	                               Stopped --Initialize--> Scheduled
//
// Initialize is idempotent while running. Destroy cancels the check loop and
// waits for it to exit; a pass already inside the manager finishes on its own.
//
// # Windows
//
// The loop wakes at the earlier of the next check interval and the next
// checkpoint hour, so a checkpoint is never skipped when the interval is
// longer than the window. A wake-up inside the first windowMinutes of a
// checkpoint hour starts a pass unless that window (date and hour in the
// reference zone) already had one.
//
// # Usage Example
//
//	scheduler := coordinator.New(manager, &cfg.Schedule,
//		coordinator.WithNotifier(feed),
//	)
//	if err := scheduler.Initialize(ctx); err != nil {
//		return err
//	}
//	defer scheduler.Destroy()
package coordinator
