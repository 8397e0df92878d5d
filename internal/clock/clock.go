// Package clock supplies the relative-time capability used by `$fromNow`.
package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the UTC timestamp format of every time the evaluator emits.
const Layout = "2006-01-02T15:04:05.000Z"

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f).UTC() }

// Format renders t in Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a timestamp in Layout or RFC 3339.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

const day = 24 * time.Hour

var units = map[string]time.Duration{
	"year":   365 * day,
	"month":  30 * day,
	"week":   7 * day,
	"day":    day,
	"hour":   time.Hour,
	"minute": time.Minute,
	"second": time.Second,
}

// unitAliases maps accepted spellings to their canonical unit.
var unitAliases = map[string]string{
	"y": "year", "yr": "year", "yrs": "year", "years": "year",
	"mo": "month", "months": "month",
	"w": "week", "wk": "week", "wks": "week", "weeks": "week",
	"d": "day", "days": "day",
	"h": "hour", "hr": "hour", "hrs": "hour", "hours": "hour",
	"m": "minute", "min": "minute", "mins": "minute", "minutes": "minute",
	"s": "second", "sec": "second", "secs": "second", "seconds": "second",
}

var termRegex = regexp.MustCompile(`^(\d+)\s*([a-z]+)`)

// ParseOffset parses a relative offset such as "1 hour", "-2 days 3 hours"
// or "+1y 2mo". The empty string is a zero offset.
func ParseOffset(s string) (time.Duration, error) {
	rest := strings.ToLower(strings.TrimSpace(s))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(rest, "-"):
		sign = -1
		rest = strings.TrimSpace(rest[1:])
	case strings.HasPrefix(rest, "+"):
		rest = strings.TrimSpace(rest[1:])
	}

	var total time.Duration
	for rest != "" {
		m := termRegex.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("invalid time offset %q", s)
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time offset %q: %w", s, err)
		}
		unit, ok := units[m[2]]
		if !ok {
			canonical, alias := unitAliases[m[2]]
			if !alias {
				return 0, fmt.Errorf("invalid time offset %q: unknown unit %q", s, m[2])
			}
			unit = units[canonical]
		}
		total += time.Duration(n) * unit
		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	return sign * total, nil
}

// FromNow returns Format(reference + offset).
func FromNow(offset string, reference time.Time) (string, error) {
	d, err := ParseOffset(offset)
	if err != nil {
		return "", err
	}
	return Format(reference.Add(d)), nil
}
