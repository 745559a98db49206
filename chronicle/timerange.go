package chronicle

import (
	"fmt"
	"net/url"
	"time"
)

// MaxHoursBack bounds look-back windows to one year.
const MaxHoursBack = 24 * 365

// TimeRange is a half-open [Start, End) window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// LastHours returns the window ending at now and starting hours earlier.
func LastHours(now time.Time, hours int) TimeRange {
	now = now.UTC()
	return TimeRange{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

// Validate rejects empty or inverted windows.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("chronicle: time range start and end are required")
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("chronicle: time range start %s must be before end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

func (r TimeRange) encode(q url.Values, prefix string) {
	q.Set(prefix+".startTime", r.Start.UTC().Format(time.RFC3339))
	q.Set(prefix+".endTime", r.End.UTC().Format(time.RFC3339))
}
