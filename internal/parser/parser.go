// Package parser turns free-form English or Japanese schedule phrases, or raw
// cron expressions, into canonical five-field cron expressions.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/width"

	"github.com/t77yq/promptcron/internal/cronspec"
	"github.com/t77yq/promptcron/internal/model"
)

var (
	// ErrUnrecognizedSchedule is returned when no rule matches the input
	ErrUnrecognizedSchedule = errors.New("unrecognized schedule")

	// ErrOutOfRange is returned when a rule matched but a number is out of bounds
	ErrOutOfRange = errors.New("schedule value out of range")
)

// maxRelativeOffset keeps one-time schedules inside a single year, where the
// minute/hour/day/month fields match exactly once.
const maxRelativeOffset = 365 * 24 * time.Hour

// Parser interprets schedule text relative to a location and a clock
type Parser struct {
	loc    *time.Location
	locale Locale
	now    func() time.Time
}

// New creates a parser. A nil location means time.Local.
func New(loc *time.Location, locale Locale) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if locale == "" {
		locale = LocaleEnglish
	}
	return &Parser{loc: loc, locale: locale, now: time.Now}
}

// WithClock returns a copy of the parser reading the current time from now
func (p *Parser) WithClock(now func() time.Time) *Parser {
	return &Parser{loc: p.loc, locale: p.locale, now: now}
}

// Parse interprets text and reports the outcome as a ParseResult
func (p *Parser) Parse(text string) model.ParseResult {
	result, err := p.Interpret(text)
	if err != nil {
		return model.ParseResult{
			Success:  false,
			Error:    fmt.Sprintf("%s (%s)", err, errors.FlattenHints(err)),
			Examples: Examples,
		}
	}
	return result
}

// Interpret interprets text. Failures carry a hint listing accepted forms.
func (p *Parser) Interpret(text string) (model.ParseResult, error) {
	input := normalize(text)
	if input == "" {
		return model.ParseResult{}, withExamples(errors.Wrap(ErrUnrecognizedSchedule, "schedule text is empty"))
	}

	now := p.now().In(p.loc)
	sum := summarizer{locale: p.locale}

	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		out, err := r.build(m, now, sum)
		if err != nil {
			return model.ParseResult{}, withExamples(errors.Wrapf(err, "schedule %q", strings.TrimSpace(text)))
		}
		if err := cronspec.Validate(out.expr); err != nil {
			return model.ParseResult{}, withExamples(errors.Wrapf(err, "schedule %q", strings.TrimSpace(text)))
		}
		return model.ParseResult{
			Success:        true,
			CronExpression: out.expr,
			HumanReadable:  out.summary,
			OneShot:        out.oneShot,
		}, nil
	}

	return model.ParseResult{}, withExamples(errors.Wrapf(ErrUnrecognizedSchedule, "could not interpret %q", strings.TrimSpace(text)))
}

func withExamples(err error) error {
	return errors.WithHint(err, "accepted forms include: "+strings.Join(Examples, ", "))
}

// normalize folds full-width characters, case and whitespace
func normalize(text string) string {
	s := width.Fold.String(text)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

type built struct {
	expr    string
	summary string
	oneShot bool
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string, now time.Time, sum summarizer) (built, error)
}

var (
	weekdaysEN = weekdayAlternation(false)
	weekdaysJA = weekdayAlternation(true)
)

// rules are tried in order; the first whose pattern matches decides the outcome
var rules = []rule{
	{
		name:    "cron",
		pattern: regexp.MustCompile(`^` + strings.Repeat(cronspec.FieldPattern+` `, 4) + cronspec.FieldPattern + `$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			return built{expr: m[0], summary: sum.cron(m[0])}, nil
		},
	},
	{
		name:    "interval-minutes",
		pattern: regexp.MustCompile(`^(?:every (\d+) ?(?:minutes?|mins?)|(\d+) ?分(?:ごと|毎|おき))$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			n, err := boundedInt(firstNonEmpty(m[1:]...), 1, 59, "minute interval")
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("*/%d * * * *", n), summary: sum.everyMinutes(n)}, nil
		},
	},
	{
		name:    "hourly",
		pattern: regexp.MustCompile(`^(?:every hour|hourly|毎時|1 ?時間(?:ごと|毎|おき))$`),
		build: func(_ []string, _ time.Time, sum summarizer) (built, error) {
			return built{expr: "0 * * * *", summary: sum.hourly()}, nil
		},
	},
	{
		name:    "interval-hours",
		pattern: regexp.MustCompile(`^(?:every (\d+) ?(?:hours?|hrs?)|(\d+) ?時間(?:ごと|毎|おき))$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			n, err := boundedInt(firstNonEmpty(m[1:]...), 1, 23, "hour interval")
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("0 */%d * * *", n), summary: sum.everyHours(n)}, nil
		},
	},
	{
		name:    "daily",
		pattern: regexp.MustCompile(`^(?:(?:every ?day|daily)(?: at)? ` + timePattern + `|毎日 ?の? ?` + timePattern + `)$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			h, min, err := ParseTimeOfDay(firstNonEmpty(m[1:]...))
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("%d %d * * *", min, h), summary: sum.daily(h, min)}, nil
		},
	},
	{
		name: "weekly",
		pattern: regexp.MustCompile(`^(?:every ` + weekdaysEN + `(?: at)? ` + timePattern +
			`|毎週 ?` + weekdaysJA + ` ?の? ?` + timePattern + `)$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			day := weekdayNames[firstNonEmpty(m[1], m[3])]
			h, min, err := ParseTimeOfDay(firstNonEmpty(m[2], m[4]))
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("%d %d * * %d", min, h, int(day)), summary: sum.weekly(day, h, min)}, nil
		},
	},
	{
		name:    "weekdays",
		pattern: regexp.MustCompile(`^(?:(?:every |on )?weekdays?(?: at)? ` + timePattern + `|平日 ?の? ?` + timePattern + `)$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			h, min, err := ParseTimeOfDay(firstNonEmpty(m[1:]...))
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("%d %d * * 1-5", min, h), summary: sum.weekdays(h, min)}, nil
		},
	},
	{
		name:    "weekend",
		pattern: regexp.MustCompile(`^(?:(?:every |on )?weekends?(?: at)? ` + timePattern + `|週末 ?の? ?` + timePattern + `)$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			h, min, err := ParseTimeOfDay(firstNonEmpty(m[1:]...))
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("%d %d * * 0,6", min, h), summary: sum.weekends(h, min)}, nil
		},
	},
	{
		name:    "relative-minutes",
		pattern: regexp.MustCompile(`^(?:(\d+) ?分後|in (\d+) ?(?:minutes?|mins?))$`),
		build: func(m []string, now time.Time, sum summarizer) (built, error) {
			return relative(firstNonEmpty(m[1:]...), time.Minute, now, sum)
		},
	},
	{
		name:    "relative-hours",
		pattern: regexp.MustCompile(`^(?:(\d+) ?時間後|in (\d+) ?(?:hours?|hrs?))$`),
		build: func(m []string, now time.Time, sum summarizer) (built, error) {
			return relative(firstNonEmpty(m[1:]...), time.Hour, now, sum)
		},
	},
	{
		name:    "tomorrow",
		pattern: regexp.MustCompile(`^(?:明日 ?の? ?` + timePattern + `|tomorrow(?: at)? ` + timePattern + `)$`),
		build: func(m []string, now time.Time, sum summarizer) (built, error) {
			h, min, err := ParseTimeOfDay(firstNonEmpty(m[1:]...))
			if err != nil {
				return built{}, err
			}
			day := time.Date(now.Year(), now.Month(), now.Day()+1, h, min, 0, 0, now.Location())
			return built{
				expr:    fmt.Sprintf("%d %d %d %d *", day.Minute(), day.Hour(), day.Day(), int(day.Month())),
				summary: sum.tomorrow(day),
				oneShot: true,
			}, nil
		},
	},
	{
		name:    "time-literal",
		pattern: regexp.MustCompile(`^(\d{1,2}:\d{2}|\d{1,2}時(?:\d{1,2}分)?)$`),
		build: func(m []string, _ time.Time, sum summarizer) (built, error) {
			h, min, err := ParseTimeOfDay(m[1])
			if err != nil {
				return built{}, err
			}
			return built{expr: fmt.Sprintf("%d %d * * *", min, h), summary: sum.daily(h, min)}, nil
		},
	},
}

func relative(raw string, unit time.Duration, now time.Time, sum summarizer) (built, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || time.Duration(n)*unit >= maxRelativeOffset {
		return built{}, errors.Wrapf(ErrOutOfRange, "relative offset %q must be at least 1 and under a year", raw)
	}
	at := now.Add(time.Duration(n) * unit)
	return built{
		expr:    fmt.Sprintf("%d %d %d %d *", at.Minute(), at.Hour(), at.Day(), int(at.Month())),
		summary: sum.once(at),
		oneShot: true,
	}, nil
}

func boundedInt(raw string, lo, hi int, what string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, errors.Wrapf(ErrOutOfRange, "%s %q must be between %d and %d", what, raw, lo, hi)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
