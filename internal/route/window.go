package route

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window is a concrete, bounded date range for metric queries.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
	Days  int       `json:"days"`
}

// WindowOfDays builds a window ending now and reaching back the given number
// of days.
func WindowOfDays(days int, now time.Time) Window {
	return Window{
		Since: now.AddDate(0, 0, -days),
		Until: now,
		Days:  days,
	}
}

var (
	relDaysRe  = regexp.MustCompile(`(?:past|last|previous)\s+(\d+)\s+days?`)
	bareDaysRe = regexp.MustCompile(`(\d+)\s+days?`)
)

// ParseWindow extracts a date range from free text. "past week", "last 30
// days" and bare day counts are recognized; anything else falls back to
// defaultDays.
func ParseWindow(query string, now time.Time, defaultDays int) Window {
	q := strings.ToLower(query)

	if m := relDaysRe.FindStringSubmatch(q); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
			return WindowOfDays(days, now)
		}
	}
	switch {
	case strings.Contains(q, "past week"), strings.Contains(q, "last week"), strings.Contains(q, "this week"):
		return WindowOfDays(7, now)
	case strings.Contains(q, "past month"), strings.Contains(q, "last month"), strings.Contains(q, "this month"):
		return WindowOfDays(30, now)
	case strings.Contains(q, "yesterday"), strings.Contains(q, "today"):
		return WindowOfDays(1, now)
	}
	if m := bareDaysRe.FindStringSubmatch(q); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
			return WindowOfDays(days, now)
		}
	}
	return WindowOfDays(defaultDays, now)
}
