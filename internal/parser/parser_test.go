package parser

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2024-05-15 10:07:30 in Tokyo
func fixedParser(t *testing.T) (*Parser, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	now := time.Date(2024, 5, 15, 10, 7, 30, 0, loc)
	return New(loc, LocaleEnglish).WithClock(func() time.Time { return now }), now
}

func TestParseScenarios(t *testing.T) {
	p, _ := fixedParser(t)

	tests := []struct {
		input string
		want  string
	}{
		{"0 9 * * 1-5", "0 9 * * 1-5"},
		{"*/10 * * * *", "*/10 * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"Every 1 minute", "*/1 * * * *"},
		{"15分ごと", "*/15 * * * *"},
		{"15分毎", "*/15 * * * *"},
		{"every hour", "0 * * * *"},
		{"毎時", "0 * * * *"},
		{"1時間ごと", "0 * * * *"},
		{"every 3 hours", "0 */3 * * *"},
		{"6時間毎", "0 */6 * * *"},
		{"every day at 9:00", "0 9 * * *"},
		{"daily 7am", "0 7 * * *"},
		{"everyday at 10:15pm", "15 22 * * *"},
		{"毎日9時", "0 9 * * *"},
		{"毎日 9時30分", "30 9 * * *"},
		{"every monday at 10:00", "0 10 * * 1"},
		{"every fri 5pm", "0 17 * * 5"},
		{"every Sunday at 8", "0 8 * * 0"},
		{"毎週金曜日 17時30分", "30 17 * * 5"},
		{"毎週月曜9時", "0 9 * * 1"},
		{"毎週土 8:00", "0 8 * * 6"},
		{"weekdays at 9:00", "0 9 * * 1-5"},
		{"every weekday at 8:30am", "30 8 * * 1-5"},
		{"平日 9:00", "0 9 * * 1-5"},
		{"weekends at 11am", "0 11 * * 0,6"},
		{"週末18時", "0 18 * * 0,6"},
		{"11:09", "9 11 * * *"},
		{"7時", "0 7 * * *"},
		{"  EVERY DAY AT 9:00  ", "0 9 * * *"},
		{"毎日９時", "0 9 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := p.Parse(tt.input)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.want, res.CronExpression)
			assert.NotEmpty(t, res.HumanReadable)
			assert.Empty(t, res.Error)
			assert.False(t, res.OneShot)
		})
	}
}

func TestParseIntervalRange(t *testing.T) {
	p, _ := fixedParser(t)

	for n := 1; n <= 59; n++ {
		want := fmt.Sprintf("*/%d * * * *", n)
		assert.Equal(t, want, p.Parse(fmt.Sprintf("every %d minutes", n)).CronExpression)
		assert.Equal(t, want, p.Parse(fmt.Sprintf("%d分ごと", n)).CronExpression)
	}
	for n := 1; n <= 23; n++ {
		assert.Equal(t, fmt.Sprintf("0 */%d * * *", n), p.Parse(fmt.Sprintf("every %d hours", n)).CronExpression)
	}
}

func TestParseFailures(t *testing.T) {
	p, _ := fixedParser(t)

	for _, input := range []string{
		"every day at 25:00",
		"every day at 9:99",
		"every 0 minutes",
		"every 60 minutes",
		"every 24 hours",
		"0時間ごと",
		"every monday at 13pm",
		"明日 25時",
		"99 9 * * *",
		"whenever you like",
		"9",
		"",
		"0 分後",
	} {
		t.Run(input, func(t *testing.T) {
			res := p.Parse(input)
			assert.False(t, res.Success)
			assert.Empty(t, res.CronExpression)
			assert.NotEmpty(t, res.Error)
			assert.NotEmpty(t, res.Examples)
		})
	}
}

func TestInterpretErrors(t *testing.T) {
	p, _ := fixedParser(t)

	_, err := p.Interpret("whenever you like")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedSchedule))
	assert.Contains(t, err.Error(), "whenever you like")
	assert.Contains(t, errors.FlattenHints(err), "every 5 minutes")

	_, err = p.Interpret("every 90 minutes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = p.Interpret("every day at 25:00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTime))

	res := p.Parse("whenever you like")
	assert.Contains(t, res.Error, "whenever you like")
	assert.Contains(t, res.Error, "every day at 9:00")
}

func TestParseRelative(t *testing.T) {
	p, now := fixedParser(t)
	oneShot := regexp.MustCompile(`^\d+ \d+ \d+ \d+ \*$`)

	tests := []struct {
		input  string
		offset time.Duration
	}{
		{"5分後", 5 * time.Minute},
		{"in 5 minutes", 5 * time.Minute},
		{"in 90 mins", 90 * time.Minute},
		{"2時間後", 2 * time.Hour},
		{"in 1 hour", time.Hour},
		{"in 20 hours", 20 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := p.Parse(tt.input)
			require.True(t, res.Success, res.Error)
			assert.True(t, res.OneShot)
			assert.Regexp(t, oneShot, res.CronExpression)

			at := now.Add(tt.offset)
			want := fmt.Sprintf("%d %d %d %d *", at.Minute(), at.Hour(), at.Day(), int(at.Month()))
			assert.Equal(t, want, res.CronExpression)
		})
	}
}

func TestParseTomorrow(t *testing.T) {
	p, _ := fixedParser(t)

	res := p.Parse("明日 9時")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "0 9 16 5 *", res.CronExpression)
	assert.True(t, res.OneShot)

	res = p.Parse("tomorrow at 8:30pm")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "30 20 16 5 *", res.CronExpression)
}

func TestParseTomorrowRollsMonth(t *testing.T) {
	now := time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC)
	p := New(time.UTC, LocaleEnglish).WithClock(func() time.Time { return now })

	res := p.Parse("tomorrow 7:00")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "0 7 1 1 *", res.CronExpression)
}

func TestParseRoundTrip(t *testing.T) {
	p, _ := fixedParser(t)

	inputs := []string{
		"every 5 minutes", "every hour", "every 2 hours", "every day at 9:00",
		"every tuesday at 14:15", "weekdays at 9am", "週末18時", "5分後", "3時間後",
		"明日 7時", "11:09", "毎週水曜日 6時", "0 9 * * 1-5",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first := p.Parse(input)
			require.True(t, first.Success, first.Error)

			second := p.Parse(first.CronExpression)
			require.True(t, second.Success, second.Error)
			assert.Equal(t, first.CronExpression, second.CronExpression)
		})
	}
}

func TestParsePassthroughBeforeProse(t *testing.T) {
	p, _ := fixedParser(t)

	// Valid cron must never be reinterpreted by a later rule
	res := p.Parse("0 9 * * *")
	require.True(t, res.Success)
	assert.Equal(t, "Custom schedule (cron: 0 9 * * *)", res.HumanReadable)

	res = p.Parse("30   8  *  * 1")
	require.True(t, res.Success)
	assert.Equal(t, "30 8 * * 1", res.CronExpression)
}

func TestParseJapaneseSummaries(t *testing.T) {
	loc := time.UTC
	p := New(loc, LocaleJapanese)

	assert.Equal(t, "毎日 09:00", p.Parse("every day at 9:00").HumanReadable)
	assert.Equal(t, "毎週月曜日 10:00", p.Parse("every monday at 10:00").HumanReadable)
	assert.Equal(t, "15分ごと", p.Parse("15分ごと").HumanReadable)
}

func TestDetectLocale(t *testing.T) {
	assert.Equal(t, LocaleJapanese, DetectLocale("ja_JP.UTF-8"))
	assert.Equal(t, LocaleEnglish, DetectLocale("en-US"))

	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "ja_JP.UTF-8")
	assert.Equal(t, LocaleJapanese, DetectLocale(""))

	t.Setenv("LANG", "C")
	assert.Equal(t, LocaleEnglish, DetectLocale(""))
}
