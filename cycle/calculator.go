/*
Package cycle computes renewal-cycle boundaries and labels for card benefits.

PURPOSE:
  A benefit resets on a schedule: every month, every quarter, once a year on
  an anniversary date, or never (one-time). This package answers two
  questions for any such schedule:
  - When does the current cycle end?
  - How should the cycle be described to the user (zh-TW or en)?

PURITY:
  Every operation is a pure function of its inputs. The current date is
  always passed in explicitly; production callers pass cycle.Today() or a
  time in the configured timezone, tests pass fixed dates. Nothing here
  returns an error: partial or unknown input degrades to "no period end"
  (ok == false) or the "-" placeholder.

FREQUENCIES:
  MONTHLY:   last day of the current month
  QUARTERLY: last day of the current quarter (Mar 31, Jun 30, Sep 30, Dec 31)
  YEARLY:    EndMonth/EndDay of the current year, defaulting to Dec 31
  ONE_TIME:  EndMonth/EndDay of the current year, only when both are set

DAY OVERFLOW:
  EndDay is not validated against the length of EndMonth. YEARLY 2/30 is
  March 1 (leap year) or March 2. Callers needing strict dates validate
  upstream.

SEE ALSO:
  - labels.go:   CycleLabel, CurrentCycleLabel, FormatDate
  - deadline.go: personal-cycle deadlines (start date + duration)
*/
package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency describes how often a benefit's cycle resets.
type Frequency string

const (
	FrequencyNone Frequency = ""
	Monthly       Frequency = "MONTHLY"
	Quarterly     Frequency = "QUARTERLY"
	Yearly        Frequency = "YEARLY"
	OneTime       Frequency = "ONE_TIME"

	// legacyOnce is how older benefit records spell ONE_TIME.
	legacyOnce Frequency = "ONCE"
)

// ErrUnknownFrequency is returned by ParseFrequency for values outside the enum.
var ErrUnknownFrequency = errors.New("unknown frequency")

// Normalize maps legacy spellings onto the canonical enum values.
func (f Frequency) Normalize() Frequency {
	if f == legacyOnce {
		return OneTime
	}
	return f
}

// IsRecurring reports whether the frequency has a "current instance" such
// as this month or this quarter.
func (f Frequency) IsRecurring() bool {
	switch f.Normalize() {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Valid reports whether f is one of the four known frequencies.
func (f Frequency) Valid() bool {
	return f.IsRecurring() || f.Normalize() == OneTime
}

// ParseFrequency parses user input case-insensitively. An empty string is
// FrequencyNone and is not an error.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s))).Normalize()
	if f == FrequencyNone || f.Valid() {
		return f, nil
	}
	return FrequencyNone, fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

// Schedule is the recurrence data stored on a benefit.
type Schedule struct {
	Frequency Frequency `json:"frequency,omitempty"`
	EndMonth  int       `json:"end_month,omitempty"` // 1-12, 0 when unset
	EndDay    int       `json:"end_day,omitempty"`   // 1-31, 0 when unset
}

// PeriodEnd returns the end of the schedule's cycle containing now.
func (s Schedule) PeriodEnd(now time.Time) (time.Time, bool) {
	return PeriodEnd(s.Frequency, s.EndMonth, s.EndDay, now)
}

// PeriodEnd computes the last calendar day of the cycle containing now.
// ok is false when the benefit has no schedule, when a ONE_TIME benefit is
// missing its end month or day, or when the frequency is unknown; callers
// treat that as non-expiring.
func PeriodEnd(f Frequency, endMonth, endDay int, now time.Time) (time.Time, bool) {
	year, month := now.Year(), now.Month()

	switch f.Normalize() {
	case Monthly:
		return EndOfMonth(year, month), true

	case Quarterly:
		quarterEndMonth := time.Month(Quarter(int(month)) * 3)
		return EndOfMonth(year, quarterEndMonth), true

	case Yearly:
		if endMonth == 0 {
			endMonth = 12
		}
		if endDay == 0 {
			endDay = 31
		}
		return NewDate(year, time.Month(endMonth), endDay), true

	case OneTime:
		if endMonth == 0 || endDay == 0 {
			return time.Time{}, false
		}
		return NewDate(year, time.Month(endMonth), endDay), true

	default:
		return time.Time{}, false
	}
}

// CycleNumber identifies the cycle instance containing now: the month for
// MONTHLY, the quarter for QUARTERLY, zero otherwise.
func CycleNumber(f Frequency, now time.Time) int {
	switch f.Normalize() {
	case Monthly:
		return int(now.Month())
	case Quarterly:
		return Quarter(int(now.Month()))
	}
	return 0
}
