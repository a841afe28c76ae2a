package pipeline

import (
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultLookback = time.Hour

	// AbsoluteTimeLayout is the only accepted format for absolute lookup periods.
	AbsoluteTimeLayout = "2006-01-02T15:04:05Z"

	maxRelativeLen = 5
)

// ParseLookback resolves a lookup period into an absolute lower bound.
// Short strings are relative ("30m", "2h", "7d", "3M", "1Y"; m is minutes,
// M is months), longer ones are absolute timestamps in AbsoluteTimeLayout.
// An empty period means DefaultLookback.
func ParseLookback(period string, now time.Time) (time.Time, error) {
	now = now.UTC()
	if period == "" {
		return now.Add(-DefaultLookback), nil
	}

	if len(period) > maxRelativeLen {
		t, err := time.Parse(AbsoluteTimeLayout, period)
		if err != nil {
			return time.Time{}, InvalidField("lookup_period", "", fmt.Sprintf("%q is not a %s timestamp", period, AbsoluteTimeLayout))
		}
		return t.UTC(), nil
	}

	if len(period) < 2 {
		return time.Time{}, InvalidField("lookup_period", "", fmt.Sprintf("%q is not a relative period", period))
	}
	n, err := strconv.Atoi(period[:len(period)-1])
	if err != nil || n < 0 {
		return time.Time{}, InvalidField("lookup_period", "", fmt.Sprintf("%q has an invalid amount", period))
	}

	switch period[len(period)-1] {
	case 'm':
		return now.Add(-time.Duration(n) * time.Minute), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'M':
		return now.AddDate(0, -n, 0), nil
	case 'Y':
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, InvalidField("lookup_period", "", fmt.Sprintf("%q has an unknown unit", period))
	}
}

// ValidateLookback checks a lookup period at config decode time.
func ValidateLookback(component, period string) error {
	if _, err := ParseLookback(period, time.Now()); err != nil {
		return InvalidField(component, "lookup_period", fmt.Sprintf("invalid value %q", period))
	}
	return nil
}
