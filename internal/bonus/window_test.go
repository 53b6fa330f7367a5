package bonus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWindow_CalendarDay(t *testing.T) {
	asOf := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	w, err := ResolveWindow(WindowCalendarDay, asOf)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, 999000000, time.UTC), w.End)
}

func TestResolveWindow_CalendarMonth_LeapYear(t *testing.T) {
	asOf := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	w, err := ResolveWindow(WindowCalendarMonth, asOf)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC), w.End)
}

func TestResolveWindow_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 UTC+5 is the previous day 21:30 UTC.
	asOf := time.Date(2024, 3, 15, 2, 30, 0, 0, loc)

	w, err := ResolveWindow(WindowCalendarDay, asOf)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestResolveWindow_Unsupported(t *testing.T) {
	_, err := ResolveWindow(WindowType("calendar_week"), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedWindow)
}

func TestWindowAnchor(t *testing.T) {
	w := Window{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 1, 23, 59, 59, 999000000, time.UTC),
	}
	assert.Equal(t, "1714521600-1714607999", w.Anchor())

	// Same window resolved twice yields the same anchor.
	again, err := ResolveWindow(WindowCalendarDay, time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, w.Anchor(), again.Anchor())
}

func TestWindowBusinessDate(t *testing.T) {
	w, err := ResolveWindow(WindowCalendarDay, time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), w.BusinessDate())
}
