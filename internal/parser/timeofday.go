package parser

import (
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
)

// ErrInvalidTime is returned for time tokens that are malformed or out of range
var ErrInvalidTime = errors.New("invalid time of day")

type timeForm int

const (
	formColon timeForm = iota + 1
	formMeridiem
	formLocalized
	formBareHour
)

var (
	colonTime     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridiemTime  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	localizedTime = regexp.MustCompile(`^(\d{1,2})時(?:(\d{1,2})分)?$`)
	bareHourTime  = regexp.MustCompile(`^(\d{1,2})$`)
)

// timePattern matches any token accepted by ParseTimeOfDay. Longer forms come
// first so the bare hour alternative never shadows them.
const timePattern = `(\d{1,2}:\d{2}|\d{1,2}(?::\d{2})?\s*(?:am|pm)|\d{1,2}時(?:\d{1,2}分)?|\d{1,2})`

// ParseTimeOfDay converts a single time token into an hour in [0,23] and a
// minute in [0,59]. Accepted forms, in precedence order: "9:05", "9pm" or
// "9:30 pm", "9時" or "9時30分", and a bare hour "9".
func ParseTimeOfDay(token string) (hour, minute int, err error) {
	_, hour, minute, err = parseTimeToken(token)
	return hour, minute, err
}

func parseTimeToken(token string) (timeForm, int, int, error) {
	if m := colonTime.FindStringSubmatch(token); m != nil {
		h, min, err := checkClock(m[1], m[2], token)
		return formColon, h, min, err
	}

	if m := meridiemTime.FindStringSubmatch(token); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return 0, 0, 0, errors.Wrapf(ErrInvalidTime, "%q: 12-hour clock hour must be 1-12", token)
		}
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
			if min > 59 {
				return 0, 0, 0, errors.Wrapf(ErrInvalidTime, "%q: minute must be 0-59", token)
			}
		}
		switch {
		case m[3] == "pm" && h != 12:
			h += 12
		case m[3] == "am" && h == 12:
			h = 0
		}
		return formMeridiem, h, min, nil
	}

	if m := localizedTime.FindStringSubmatch(token); m != nil {
		minute := m[2]
		if minute == "" {
			minute = "0"
		}
		h, min, err := checkClock(m[1], minute, token)
		return formLocalized, h, min, err
	}

	if m := bareHourTime.FindStringSubmatch(token); m != nil {
		h, min, err := checkClock(m[1], "0", token)
		return formBareHour, h, min, err
	}

	return 0, 0, 0, errors.Wrapf(ErrInvalidTime, "%q is not a recognized time", token)
}

func checkClock(hourStr, minuteStr, token string) (int, int, error) {
	h, err := strconv.Atoi(hourStr)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, errors.Wrapf(ErrInvalidTime, "%q: hour must be 0-23", token)
	}
	m, err := strconv.Atoi(minuteStr)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, errors.Wrapf(ErrInvalidTime, "%q: minute must be 0-59", token)
	}
	return h, m, nil
}
