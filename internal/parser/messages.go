package parser

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Locale selects the language of human readable summaries
type Locale string

const (
	LocaleEnglish  Locale = "en"
	LocaleJapanese Locale = "ja"
)

// ParseLocale normalizes values such as "ja_JP.UTF-8" or "en-US". Unknown
// values fall back to English.
func ParseLocale(s string) Locale {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "ja") {
		return LocaleJapanese
	}
	return LocaleEnglish
}

// DetectLocale resolves the locale from an explicit override, then the
// inherited LC_ALL / LANG environment, then English.
func DetectLocale(override string) Locale {
	if override != "" {
		return ParseLocale(override)
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return ParseLocale(v)
		}
	}
	return LocaleEnglish
}

// Examples lists accepted schedule phrasings shown on parse failures
var Examples = []string{
	"every 5 minutes",
	"every hour",
	"every 2 hours",
	"every day at 9:00",
	"every monday at 10:00",
	"weekdays at 9am",
	"weekends at 18:00",
	"in 30 minutes",
	"tomorrow at 8:30",
	"30分ごと",
	"毎日9時",
	"毎週金曜日 17時30分",
	"平日 9:00",
	"5分後",
	"明日 9時",
	"0 9 * * 1-5",
}

type summarizer struct {
	locale Locale
}

func clock(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (s summarizer) cron(expr string) string {
	if s.locale == LocaleJapanese {
		return fmt.Sprintf("カスタムスケジュール (cron: %s)", expr)
	}
	return fmt.Sprintf("Custom schedule (cron: %s)", expr)
}

func (s summarizer) everyMinutes(n int) string {
	if s.locale == LocaleJapanese {
		return fmt.Sprintf("%d分ごと", n)
	}
	if n == 1 {
		return "Every minute"
	}
	return fmt.Sprintf("Every %d minutes", n)
}

func (s summarizer) hourly() string {
	if s.locale == LocaleJapanese {
		return "毎時0分"
	}
	return "Every hour"
}

func (s summarizer) everyHours(n int) string {
	if s.locale == LocaleJapanese {
		return fmt.Sprintf("%d時間ごと", n)
	}
	if n == 1 {
		return "Every hour"
	}
	return fmt.Sprintf("Every %d hours", n)
}

func (s summarizer) daily(h, m int) string {
	if s.locale == LocaleJapanese {
		return "毎日 " + clock(h, m)
	}
	return "Every day at " + clock(h, m)
}

func (s summarizer) weekly(d time.Weekday, h, m int) string {
	if s.locale == LocaleJapanese {
		return fmt.Sprintf("毎週%s %s", japaneseWeekdayLabels[d], clock(h, m))
	}
	return fmt.Sprintf("Every %s at %s", d, clock(h, m))
}

func (s summarizer) weekdays(h, m int) string {
	if s.locale == LocaleJapanese {
		return "平日 " + clock(h, m)
	}
	return "Weekdays at " + clock(h, m)
}

func (s summarizer) weekends(h, m int) string {
	if s.locale == LocaleJapanese {
		return "週末 " + clock(h, m)
	}
	return "Weekends at " + clock(h, m)
}

func (s summarizer) once(at time.Time) string {
	stamp := at.Format("2006-01-02 15:04")
	if s.locale == LocaleJapanese {
		return stamp + " に1回実行"
	}
	return "Once at " + stamp
}

func (s summarizer) tomorrow(at time.Time) string {
	if s.locale == LocaleJapanese {
		return fmt.Sprintf("明日 (%s) %s", at.Format("2006-01-02"), clock(at.Hour(), at.Minute()))
	}
	return fmt.Sprintf("Tomorrow (%s) at %s", at.Format("2006-01-02"), clock(at.Hour(), at.Minute()))
}
