package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidTimeSpent is returned when a time-spent string cannot be parsed.
var ErrInvalidTimeSpent = errors.New("invalid time spent")

// Jira's default working-time units.
const (
	WorkDay  = 8 * time.Hour
	WorkWeek = 5 * WorkDay
)

var timeSpentUnits = map[byte]time.Duration{
	'w': WorkWeek,
	'd': WorkDay,
	'h': time.Hour,
	'm': time.Minute,
}

// ParseTimeSpent parses Jira duration notation such as "1w 2d 3h 4m",
// "90m" or "1h30m". Weeks and days use working time (5d and 8h).
func ParseTimeSpent(s string) (time.Duration, error) {
	input := strings.ToLower(strings.TrimSpace(s))
	if input == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimeSpent)
	}

	var total time.Duration
	i := 0
	for i < len(input) {
		if input[i] == ' ' {
			i++
			continue
		}

		start := i
		for i < len(input) && input[i] >= '0' && input[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("%w: %q: expected a number at offset %d", ErrInvalidTimeSpent, s, start)
		}
		if i-start > 6 {
			return 0, fmt.Errorf("%w: %q: value too large", ErrInvalidTimeSpent, s)
		}

		var n int64
		for _, c := range input[start:i] {
			n = n*10 + int64(c-'0')
		}

		for i < len(input) && input[i] == ' ' {
			i++
		}
		if i >= len(input) {
			return 0, fmt.Errorf("%w: %q: missing unit", ErrInvalidTimeSpent, s)
		}
		unit, ok := timeSpentUnits[input[i]]
		if !ok {
			return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidTimeSpent, s, input[i])
		}
		i++

		if time.Duration(n) > (math.MaxInt64-total)/unit {
			return 0, fmt.Errorf("%w: %q: value too large", ErrInvalidTimeSpent, s)
		}
		total += time.Duration(n) * unit
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q: must be positive", ErrInvalidTimeSpent, s)
	}
	return total, nil
}

// FormatTimeSpent renders d in Jira notation, largest units first.
// Seconds are dropped.
func FormatTimeSpent(d time.Duration) string {
	if d < time.Minute {
		return "0m"
	}

	var parts []string
	for _, u := range []struct {
		suffix string
		size   time.Duration
	}{
		{"w", WorkWeek},
		{"d", WorkDay},
		{"h", time.Hour},
		{"m", time.Minute},
	} {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
