package cronspec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAfter(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 5, 15, 10, 7, 30, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"every minute", "* * * * *", time.Date(2024, 5, 15, 10, 8, 0, 0, time.UTC)},
		{"every 5 minutes", "*/5 * * * *", time.Date(2024, 5, 15, 10, 10, 0, 0, time.UTC)},
		{"every 15 minutes", "*/15 * * * *", time.Date(2024, 5, 15, 10, 15, 0, 0, time.UTC)},
		{"every 45 minutes", "*/45 * * * *", time.Date(2024, 5, 15, 10, 45, 0, 0, time.UTC)},
		{"fixed minute later this hour", "30 * * * *", time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)},
		{"fixed minute passed", "5 * * * *", time.Date(2024, 5, 15, 11, 5, 0, 0, time.UTC)},
		{"fixed minute equal rolls", "7 * * * *", time.Date(2024, 5, 15, 11, 7, 0, 0, time.UTC)},
		{"daily later today", "0 18 * * *", time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC)},
		{"daily passed", "0 9 * * *", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)},
		{"weekly monday", "0 10 * * 1", time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)},
		{"weekly today later", "0 12 * * 3", time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)},
		{"weekly today passed", "0 9 * * 3", time.Date(2024, 5, 22, 9, 0, 0, 0, time.UTC)},
		{"weekdays", "0 9 * * 1-5", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)},
		{"weekend", "0 18 * * 0,6", time.Date(2024, 5, 18, 18, 0, 0, 0, time.UTC)},
		{"sunday as seven", "0 8 * * 7", time.Date(2024, 5, 19, 8, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAfter(tt.expr, now)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNextAfterRollsIntoNextHour(t *testing.T) {
	now := time.Date(2024, 5, 15, 23, 58, 10, 0, time.UTC)

	got := NextAfter("*/5 * * * *", now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), *got)
}

func TestNextAfterUnsupported(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 7, 30, 0, time.UTC)

	for _, expr := range []string{
		"not a cron",
		"",
		"0 9 1 * *",
		"0 9 * 6 *",
		"0,30 9 * * *",
		"0 9,18 * * *",
		"0 */2 * * *",
		"*/0 * * * *",
		"0 9 * * 5-1",
	} {
		t.Run(expr, func(t *testing.T) {
			assert.Nil(t, NextAfter(expr, now))
		})
	}
}

func TestCalculatorProperties(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	for i := 0; i < 24*60; i += 7 {
		now := start.Add(time.Duration(i)*time.Minute + 13*time.Second)
		calc := NewCalculator(loc).WithClock(func() time.Time { return now })

		every := calc.Next("* * * * *")
		require.NotNil(t, every)
		assert.True(t, every.After(now))
		assert.Zero(t, every.Second())

		five := calc.Next("*/5 * * * *")
		require.NotNil(t, five)
		assert.Zero(t, five.Minute()%5)
		assert.True(t, five.After(now))

		nine := calc.Next("0 9 * * *")
		require.NotNil(t, nine)
		assert.Equal(t, 9, nine.Hour())
		assert.Equal(t, 0, nine.Minute())
		assert.True(t, nine.After(now))
		assert.True(t, nine.Sub(now) <= 24*time.Hour)
	}
}

func TestCalculatorUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC) // 08:00 in New York
	calc := NewCalculator(loc).WithClock(func() time.Time { return now })

	got := calc.Next("0 9 * * *")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 5, 15, 9, 0, 0, 0, loc), *got)
	assert.Equal(t, loc, got.Location())
}

func TestCalculatorUpcoming(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	calc := NewCalculator(time.UTC).WithClock(func() time.Time { return now })

	// Covered shapes agree with Next
	assert.Equal(t, calc.Next("0 9 * * *"), calc.Upcoming("0 9 * * *"))

	// Pinned dates fall back to the full evaluator
	got := calc.Upcoming("30 14 5 3 *")
	require.NotNil(t, got)
	assert.True(t, time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC).Equal(*got), got.String())

	assert.Nil(t, calc.Upcoming("not a cron"))
}
