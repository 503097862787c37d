package cycle

import "time"

// =============================================================================
// CALENDAR DATES - Timezone-naive days (midnight UTC)
// =============================================================================

// NewDate returns the calendar date year-month-day at midnight UTC.
// Out-of-range months and days are normalized the way time.Date does it,
// so February 30 becomes March 1 (or March 2 outside leap years).
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf strips the clock from t, keeping the calendar date as seen in t's
// own location.
func DateOf(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date in the local timezone.
func Today() time.Time {
	return DateOf(time.Now())
}

// EndOfMonth returns the last day of the given month ("day 0 of next month").
func EndOfMonth(year int, month time.Month) time.Time {
	return NewDate(year, month+1, 0)
}

// EndOfDay returns the last representable millisecond of t's day in t's
// location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// DaysBetween counts whole calendar days from one date to another.
// Negative when to is before from.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// Quarter returns the quarter (1-4) a 1-based month falls into.
func Quarter(month int) int {
	return (month + 2) / 3
}
