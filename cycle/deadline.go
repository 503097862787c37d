package cycle

import (
	"math"
	"time"
)

// =============================================================================
// PERSONAL / NUMBERED CYCLE DEADLINES
// =============================================================================

// CycleType is the cycle vocabulary used by tracked (per-user) benefits.
// It is richer than Frequency: it adds half-years and cycles anchored on a
// user-chosen start date.
type CycleType string

const (
	CycleMonthly       CycleType = "MONTHLY"
	CycleCalendarMonth CycleType = "CALENDAR_MONTH"
	CycleQuarterly     CycleType = "QUARTERLY"
	CycleSemiAnnually  CycleType = "SEMI_ANNUALLY"
	CycleAnnually      CycleType = "ANNUALLY"
)

// DeadlineParams selects a cycle instance.
type DeadlineParams struct {
	CycleType CycleType

	// Personal cycles run from CustomStart for the cycle's duration.
	IsPersonal  bool
	CustomStart *time.Time

	// Fixed cycles are addressed by year and 1-based cycle number
	// (month 1-12, quarter 1-4, half 1-2). Zero means "the current one".
	Year        int
	CycleNumber int
}

// months returns the length of one cycle in months.
func (c CycleType) months() int {
	switch c {
	case CycleMonthly, CycleCalendarMonth:
		return 1
	case CycleQuarterly:
		return 3
	case CycleSemiAnnually:
		return 6
	case CycleAnnually:
		return 12
	}
	return 0
}

// Deadline returns the last instant (23:59:59.999) of the selected cycle.
// ok is false for an empty or unknown cycle type.
func Deadline(p DeadlineParams, now time.Time) (time.Time, bool) {
	if p.CycleType == "" {
		return time.Time{}, false
	}

	if p.IsPersonal && p.CustomStart != nil {
		n := p.CycleType.months()
		if n == 0 {
			return time.Time{}, false
		}
		start := *p.CustomStart
		end := time.Date(start.Year(), start.Month()+time.Month(n), start.Day()-1, 0, 0, 0, 0, start.Location())
		return EndOfDay(end), true
	}

	loc := now.Location()
	lastDay := func(year int, month time.Month) time.Time {
		return EndOfDay(time.Date(year, month+1, 0, 0, 0, 0, 0, loc))
	}
	cn := p.CycleNumber

	switch p.CycleType {
	case CycleMonthly, CycleCalendarMonth:
		if cn >= 1 && cn <= 12 {
			return lastDay(p.Year, time.Month(cn)), true
		}
		return lastDay(now.Year(), now.Month()), true

	case CycleQuarterly:
		if cn >= 1 && cn <= 4 {
			return lastDay(p.Year, time.Month(cn*3)), true
		}
		return lastDay(now.Year(), time.Month(Quarter(int(now.Month()))*3)), true

	case CycleSemiAnnually:
		switch cn {
		case 1:
			return lastDay(p.Year, time.June), true
		case 2:
			return lastDay(p.Year, time.December), true
		}
		if now.Month() <= time.June {
			return lastDay(now.Year(), time.June), true
		}
		return lastDay(now.Year(), time.December), true

	case CycleAnnually:
		return lastDay(p.Year, time.December), true
	}
	return time.Time{}, false
}

// ExpiringWithin reports whether deadline falls between now and now+days.
// A zero deadline never expires.
func ExpiringWithin(deadline time.Time, days int, now time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	limit := now.Add(time.Duration(days) * 24 * time.Hour)
	return !deadline.Before(now) && !deadline.After(limit)
}

// DaysRemaining rounds the time left until deadline up to whole days.
// Past deadlines report 0; a zero deadline reports ok == false.
func DaysRemaining(deadline time.Time, now time.Time) (int, bool) {
	if deadline.IsZero() {
		return 0, false
	}
	if deadline.Before(now) {
		return 0, true
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24)), true
}
