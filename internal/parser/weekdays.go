package parser

import (
	"sort"
	"strings"
	"time"
)

// weekdayNames maps every accepted weekday spelling to its cron index (0 = Sunday)
var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,

	"日曜日": time.Sunday, "日曜": time.Sunday, "日": time.Sunday,
	"月曜日": time.Monday, "月曜": time.Monday, "月": time.Monday,
	"火曜日": time.Tuesday, "火曜": time.Tuesday, "火": time.Tuesday,
	"水曜日": time.Wednesday, "水曜": time.Wednesday, "水": time.Wednesday,
	"木曜日": time.Thursday, "木曜": time.Thursday, "木": time.Thursday,
	"金曜日": time.Friday, "金曜": time.Friday, "金": time.Friday,
	"土曜日": time.Saturday, "土曜": time.Saturday, "土": time.Saturday,
}

var japaneseWeekdayLabels = [...]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}

// weekdayAlternation builds a regexp alternation of the names accepted for a
// script, longest first so "monday" wins over "mon".
func weekdayAlternation(japanese bool) string {
	var names []string
	for name := range weekdayNames {
		if isASCII(name) == !japanese {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return "(" + strings.Join(names, "|") + ")"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
