// Package cronspec holds the five-field cron grammar shared by the schedule
// language parser, the scheduler and the next-run calculator.
package cronspec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned for expressions outside the cron grammar
var ErrInvalidExpression = errors.New("invalid cron expression")

// FieldPattern matches a single field: `*`, `*/N`, or a list of numbers and
// ranges separated by commas.
const FieldPattern = `(?:\*|\*/\d+|\d+(?:-\d+)?(?:,\d+(?:-\d+)?)*)`

var fieldPattern = regexp.MustCompile(`^` + FieldPattern + `$`)

// standardParser mirrors the parser the scheduler arms timers with
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Fields splits an expression into its whitespace separated fields
func Fields(expr string) []string {
	return strings.Fields(expr)
}

// MatchesGrammar reports whether expr has exactly five fields, each of which
// is `*`, `*/N` or a comma separated list of numbers and ranges.
func MatchesGrammar(expr string) bool {
	fields := Fields(expr)
	if len(fields) != 5 {
		return false
	}
	for _, f := range fields {
		if !fieldPattern.MatchString(f) {
			return false
		}
	}
	return true
}

// Validate checks the grammar and the value ranges of every field
func Validate(expr string) error {
	if !MatchesGrammar(expr) {
		return fmt.Errorf("%w: %q must have 5 fields of *, */N or number lists", ErrInvalidExpression, expr)
	}
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return nil
}

// Parse validates expr and returns the schedule used to arm timers
func Parse(expr string) (cron.Schedule, error) {
	if err := Validate(expr); err != nil {
		return nil, err
	}
	return standardParser.Parse(expr)
}
