package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeSpent(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"1h 30m", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"2d", 16 * time.Hour},
		{"1w", 40 * time.Hour},
		{"1w 2d 3h 4m", 40*time.Hour + 16*time.Hour + 3*time.Hour + 4*time.Minute},
		{"  2H ", 2 * time.Hour},
		{"1 h", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeSpent(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeSpentRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "h", "10", "5x", "0m", "1h-2m", "9999999h", "128103w", "64052w", "999999w 999999w"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTimeSpent(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTimeSpent)
		})
	}
}

func TestParseTimeSpentRejectsOverflow(t *testing.T) {
	for _, input := range []string{"128103w", "64052w", "100000w 100000w"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTimeSpent(input)
			require.ErrorIs(t, err, ErrInvalidTimeSpent)
			assert.Contains(t, err.Error(), "value too large")
		})
	}

	got, err := ParseTimeSpent("12000w")
	require.NoError(t, err)
	assert.Equal(t, 12000*WorkWeek, got)
}

func TestFormatTimeSpent(t *testing.T) {
	assert.Equal(t, "0m", FormatTimeSpent(30*time.Second))
	assert.Equal(t, "1h 30m", FormatTimeSpent(90*time.Minute))
	assert.Equal(t, "1w 1d 1m", FormatTimeSpent(WorkWeek+WorkDay+time.Minute))
}

func TestFormatThenParseTimeSpent(t *testing.T) {
	d := 2*WorkDay + 45*time.Minute
	got, err := ParseTimeSpent(FormatTimeSpent(d))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}
