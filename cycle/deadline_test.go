package cycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardperks/benefit-engine/cycle"
)

func day(t time.Time) string { return t.Format("2006-01-02") }

func TestDeadline_Personal(t *testing.T) {
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		cycle cycle.CycleType
		want  string
	}{
		{cycle.CycleMonthly, "2024-02-14"},
		{cycle.CycleCalendarMonth, "2024-02-14"},
		{cycle.CycleQuarterly, "2024-04-14"},
		{cycle.CycleSemiAnnually, "2024-07-14"},
		{cycle.CycleAnnually, "2025-01-14"},
	}

	for _, tt := range tests {
		t.Run(string(tt.cycle), func(t *testing.T) {
			got, ok := cycle.Deadline(cycle.DeadlineParams{
				CycleType:   tt.cycle,
				IsPersonal:  true,
				CustomStart: &start,
			}, now)
			require.True(t, ok)
			assert.Equal(t, tt.want, day(got))
			assert.Equal(t, 23, got.Hour())
			assert.Equal(t, 59, got.Minute())
		})
	}
}

func TestDeadline_PersonalMonthOverflow(t *testing.T) {
	// Jan 31 + 1 month overflows to Mar 2 (2024), minus one day.
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	got, ok := cycle.Deadline(cycle.DeadlineParams{
		CycleType: cycle.CycleMonthly, IsPersonal: true, CustomStart: &start,
	}, start)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", day(got))
}

func TestDeadline_Fixed(t *testing.T) {
	now := time.Date(2025, time.August, 20, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params cycle.DeadlineParams
		want   string
	}{
		{"month by number", cycle.DeadlineParams{CycleType: cycle.CycleMonthly, Year: 2024, CycleNumber: 2}, "2024-02-29"},
		{"current month", cycle.DeadlineParams{CycleType: cycle.CycleCalendarMonth, Year: 2024}, "2025-08-31"},
		{"month number out of range", cycle.DeadlineParams{CycleType: cycle.CycleMonthly, Year: 2024, CycleNumber: 13}, "2025-08-31"},
		{"quarter by number", cycle.DeadlineParams{CycleType: cycle.CycleQuarterly, Year: 2024, CycleNumber: 2}, "2024-06-30"},
		{"current quarter", cycle.DeadlineParams{CycleType: cycle.CycleQuarterly, Year: 2024}, "2025-09-30"},
		{"first half", cycle.DeadlineParams{CycleType: cycle.CycleSemiAnnually, Year: 2024, CycleNumber: 1}, "2024-06-30"},
		{"second half", cycle.DeadlineParams{CycleType: cycle.CycleSemiAnnually, Year: 2024, CycleNumber: 2}, "2024-12-31"},
		{"current half", cycle.DeadlineParams{CycleType: cycle.CycleSemiAnnually}, "2025-12-31"},
		{"annual", cycle.DeadlineParams{CycleType: cycle.CycleAnnually, Year: 2024}, "2024-12-31"},
		{"personal without start uses fixed", cycle.DeadlineParams{CycleType: cycle.CycleAnnually, IsPersonal: true, Year: 2026}, "2026-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cycle.Deadline(tt.params, now)
			require.True(t, ok)
			assert.Equal(t, tt.want, day(got))
		})
	}
}

func TestDeadline_NoCycle(t *testing.T) {
	now := time.Now()
	_, ok := cycle.Deadline(cycle.DeadlineParams{}, now)
	assert.False(t, ok)

	_, ok = cycle.Deadline(cycle.DeadlineParams{CycleType: "FORTNIGHTLY", Year: 2024}, now)
	assert.False(t, ok)
}

func TestExpiringWithin(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, cycle.ExpiringWithin(now.Add(48*time.Hour), 3, now))
	assert.True(t, cycle.ExpiringWithin(now.Add(72*time.Hour), 3, now), "boundary is inclusive")
	assert.False(t, cycle.ExpiringWithin(now.Add(73*time.Hour), 3, now))
	assert.False(t, cycle.ExpiringWithin(now.Add(-time.Hour), 3, now), "already passed")
	assert.False(t, cycle.ExpiringWithin(time.Time{}, 3, now))
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	_, ok := cycle.DaysRemaining(time.Time{}, now)
	assert.False(t, ok)

	n, ok := cycle.DaysRemaining(now.Add(-time.Minute), now)
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	n, _ = cycle.DaysRemaining(now.Add(25*time.Hour), now)
	assert.Equal(t, 2, n)

	n, _ = cycle.DaysRemaining(now.Add(24*time.Hour), now)
	assert.Equal(t, 1, n)
}
