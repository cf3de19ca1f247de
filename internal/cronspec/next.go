package cronspec

import (
	"strconv"
	"strings"
	"time"
)

// maxWeekScan bounds the day-by-day search for daily and weekly expressions
const maxWeekScan = 7

// Calculator computes next run times for the structural cases the scheduler
// reports on. Anything else yields nil, meaning "currently unavailable".
type Calculator struct {
	loc *time.Location
	now func() time.Time
}

// NewCalculator creates a calculator for the given location. A nil location
// means time.Local.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{loc: loc, now: time.Now}
}

// WithClock returns a copy of the calculator reading the current time from now
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	return &Calculator{loc: c.loc, now: now}
}

// Next returns the earliest instant strictly after now matching expr
func (c *Calculator) Next(expr string) *time.Time {
	return NextAfter(expr, c.now().In(c.loc))
}

// Upcoming returns Next, falling back to the full cron evaluator for shapes
// Next does not cover. It returns nil only for invalid expressions.
func (c *Calculator) Upcoming(expr string) *time.Time {
	if next := c.Next(expr); next != nil {
		return next
	}

	sched, err := Parse(expr)
	if err != nil {
		return nil
	}
	next := sched.Next(c.now().In(c.loc))
	if next.IsZero() {
		return nil
	}
	return &next
}

// NextAfter returns the earliest instant strictly after now (interpreted in
// now's location) matching expr, or nil when expr is not one of the supported
// shapes: every minute, */N minutes, fixed minute, or fixed minute and hour with
// an optional day-of-week constraint.
func NextAfter(expr string, now time.Time) *time.Time {
	fields := Fields(expr)
	if len(fields) != 5 {
		return nil
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if dom != "*" || month != "*" {
		return nil
	}

	// Rebuilt from the wall clock so zones with sub-minute offsets stay aligned.
	base := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())

	switch {
	case minute == "*" && hour == "*" && dow == "*":
		next := base.Add(time.Minute)
		return &next

	case strings.HasPrefix(minute, "*/") && hour == "*" && dow == "*":
		n, err := strconv.Atoi(strings.TrimPrefix(minute, "*/"))
		if err != nil || n <= 0 || n > 59 {
			return nil
		}
		m := (now.Minute()/n + 1) * n
		hourStart := base.Add(-time.Duration(now.Minute()) * time.Minute)
		if m >= 60 {
			next := hourStart.Add(time.Hour)
			return &next
		}
		next := hourStart.Add(time.Duration(m) * time.Minute)
		return &next

	case hour == "*" && dow == "*":
		m, ok := singleValue(minute, 59)
		if !ok {
			return nil
		}
		hourStart := base.Add(-time.Duration(now.Minute()) * time.Minute)
		if now.Minute() >= m {
			hourStart = hourStart.Add(time.Hour)
		}
		next := hourStart.Add(time.Duration(m) * time.Minute)
		return &next

	default:
		m, ok := singleValue(minute, 59)
		if !ok {
			return nil
		}
		h, ok := singleValue(hour, 23)
		if !ok {
			return nil
		}
		days, ok := parseWeekdays(dow)
		if !ok {
			return nil
		}
		for i := 0; i <= maxWeekScan; i++ {
			candidate := time.Date(now.Year(), now.Month(), now.Day()+i, h, m, 0, 0, now.Location())
			if !candidate.After(now) {
				continue
			}
			if !days[candidate.Weekday()] {
				continue
			}
			return &candidate
		}
		return nil
	}
}

func singleValue(field string, max int) (int, bool) {
	v, err := strconv.Atoi(field)
	if err != nil || v < 0 || v > max {
		return 0, false
	}
	return v, true
}

// parseWeekdays accepts `*`, a single day, an inclusive D-D range, or a comma
// list of those. 7 is treated as Sunday.
func parseWeekdays(field string) (map[time.Weekday]bool, bool) {
	days := make(map[time.Weekday]bool, 7)
	if field == "*" {
		for d := time.Sunday; d <= time.Saturday; d++ {
			days[d] = true
		}
		return days, true
	}
	for _, part := range strings.Split(field, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		start, ok := singleValue(lo, 7)
		if !ok {
			return nil, false
		}
		end := start
		if isRange {
			if end, ok = singleValue(hi, 7); !ok || end < start {
				return nil, false
			}
		}
		for d := start; d <= end; d++ {
			days[time.Weekday(d%7)] = true
		}
	}
	return days, true
}
