package bolt12

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPeriodStartFixedUnits asserts second and day periods are plain
// arithmetic.
func TestPeriodStartFixedUnits(t *testing.T) {
	t.Parallel()

	basetime := uint64(1_600_000_000)

	seconds := &Recurrence{TimeUnit: UnitSeconds, Period: 90}
	require.Equal(t, basetime, seconds.PeriodStart(basetime, 0))
	require.Equal(t, basetime+90, seconds.PeriodStart(basetime, 1))
	require.Equal(t, basetime+270, seconds.PeriodStart(basetime, 3))

	days := &Recurrence{TimeUnit: UnitDays, Period: 30}
	require.Equal(
		t, basetime+30*86400, days.PeriodStart(basetime, 1),
	)
	require.Equal(
		t, basetime+60*86400, days.PeriodStart(basetime, 2),
	)
}

// TestPeriodStartCalendarUnits asserts months and years step through the
// Gregorian calendar rather than fixed-length approximations.
func TestPeriodStartCalendarUnits(t *testing.T) {
	t.Parallel()

	months := &Recurrence{TimeUnit: UnitMonths, Period: 1}

	// A month from Jan 15 lands on Feb 15, not 30 days later.
	jan15 := time.Date(2021, time.January, 15, 8, 0, 0, 0, time.UTC)
	feb15 := time.Date(2021, time.February, 15, 8, 0, 0, 0, time.UTC)
	require.Equal(
		t, uint64(feb15.Unix()),
		months.PeriodStart(uint64(jan15.Unix()), 1),
	)

	// Month arithmetic normalizes, it does not clamp: Jan 31 plus one
	// month is Mar 3 in a non-leap year.
	jan31 := time.Date(2021, time.January, 31, 0, 0, 0, 0, time.UTC)
	mar3 := time.Date(2021, time.March, 3, 0, 0, 0, 0, time.UTC)
	require.Equal(
		t, uint64(mar3.Unix()),
		months.PeriodStart(uint64(jan31.Unix()), 1),
	)

	years := &Recurrence{TimeUnit: UnitYears, Period: 1}

	// A year spanning a leap day is 366 days long.
	jan1 := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(
		t, uint64(next.Unix()),
		years.PeriodStart(uint64(jan1.Unix()), 1),
	)
	require.Equal(t, uint64(366*86400), uint64(next.Unix()-jan1.Unix()))
}

// TestPaywindow asserts the explicit and default paywindow bounds.
func TestPaywindow(t *testing.T) {
	t.Parallel()

	basetime := uint64(1_600_000_000)
	recurrence := &Recurrence{TimeUnit: UnitDays, Period: 30}

	// Explicit paywindow brackets the period start.
	pw := &RecurrencePaywindow{
		SecondsBefore: 3600,
		SecondsAfter:  7200,
	}
	start, end := Paywindow(recurrence, pw, basetime, 1)
	periodStart := basetime + 30*86400
	require.Equal(t, periodStart-3600, start)
	require.Equal(t, periodStart+7200, end)

	// The default window opens a minute early and runs to the end of
	// the period.
	start, end = Paywindow(recurrence, nil, basetime, 1)
	require.Equal(t, periodStart-60, start)
	require.Equal(t, basetime+60*86400-1, end)
}

// TestPaywindowUnderflow asserts window starts clamp at the epoch.
func TestPaywindowUnderflow(t *testing.T) {
	t.Parallel()

	recurrence := &Recurrence{TimeUnit: UnitSeconds, Period: 10}
	pw := &RecurrencePaywindow{SecondsBefore: 100}

	start, _ := Paywindow(recurrence, pw, 30, 0)
	require.Equal(t, uint64(0), start)
}
