package bonus

import (
	"fmt"
	"time"
)

// Window is the closed [Start, End] interval earnings are aggregated over
// for one evaluation. Bounds are always UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Anchor returns the deterministic dedupe key for this window, derived
// from its epoch-second bounds. Awards are unique per
// (rule, worker, anchor).
func (w Window) Anchor() string {
	return fmt.Sprintf("%d-%d", w.Start.Unix(), w.End.Unix())
}

// BusinessDate returns the window's calendar date, meaningful for
// calendar_day windows only.
func (w Window) BusinessDate() time.Time {
	return time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveWindow maps (windowType, asOf) to window bounds. Pure and
// deterministic: calendar_day covers the UTC date of asOf, calendar_month
// the UTC month. The end bound is the last representable millisecond so
// BETWEEN-style queries include the whole final second.
func ResolveWindow(windowType WindowType, asOf time.Time) (Window, error) {
	t := asOf.UTC()
	switch windowType {
	case WindowCalendarDay:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return Window{
			Start: start,
			End:   start.AddDate(0, 0, 1).Add(-time.Millisecond),
		}, nil
	case WindowCalendarMonth:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{
			Start: start,
			End:   start.AddDate(0, 1, 0).Add(-time.Millisecond),
		}, nil
	default:
		return Window{}, ErrUnsupportedWindow
	}
}
