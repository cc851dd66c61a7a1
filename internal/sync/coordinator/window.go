package coordinator

import (
	"fmt"
	"slices"
	"time"
)

// window describes the checkpoint schedule in one reference zone
type window struct {
	location    *time.Location
	checkpoints []int
	minutes     int
}

func newWindow(location *time.Location, checkpoints []int, minutes int) window {
	hours := slices.Clone(checkpoints)
	slices.Sort(hours)
	return window{location: location, checkpoints: slices.Compact(hours), minutes: minutes}
}

// key returns the window identifier for now, and false when now is outside every window
func (w window) key(now time.Time) (string, bool) {
	local := now.In(w.location)
	if !slices.Contains(w.checkpoints, local.Hour()) || local.Minute() >= w.minutes {
		return "", false
	}
	return fmt.Sprintf("%s@%02d", local.Format(time.DateOnly), local.Hour()), true
}

// next returns the start of the first checkpoint hour strictly after now
func (w window) next(now time.Time) time.Time {
	local := now.In(w.location)
	for day := 0; day <= 1; day++ {
		for _, hour := range w.checkpoints {
			t := time.Date(local.Year(), local.Month(), local.Day()+day, hour, 0, 0, 0, w.location)
			if t.After(now) {
				return t
			}
		}
	}
	// no checkpoints configured
	return now.Add(24 * time.Hour)
}
