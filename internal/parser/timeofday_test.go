package parser

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		token  string
		hour   int
		minute int
	}{
		{"9:00", 9, 0},
		{"09:30", 9, 30},
		{"23:59", 23, 59},
		{"0:00", 0, 0},
		{"9pm", 21, 0},
		{"9 pm", 21, 0},
		{"12pm", 12, 0},
		{"12am", 0, 0},
		{"1am", 1, 0},
		{"9:45pm", 21, 45},
		{"9時", 9, 0},
		{"9時30分", 9, 30},
		{"18時5分", 18, 5},
		{"7", 7, 0},
		{"23", 23, 0},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			h, m, err := ParseTimeOfDay(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}

func TestParseTimeOfDayRejects(t *testing.T) {
	for _, token := range []string{
		"25:00",
		"9:99",
		"9:5",
		"13pm",
		"0am",
		"24時",
		"9時60分",
		"24",
		"noon",
		"",
		"9.30",
	} {
		t.Run(token, func(t *testing.T) {
			_, _, err := ParseTimeOfDay(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTime))
		})
	}
}
