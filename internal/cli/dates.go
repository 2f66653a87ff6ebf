package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/model"
)

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// parseDay reads a day relative to today: today, tomorrow, yesterday,
// +N / -N days, a weekday of the current week, or YYYY-MM-DD.
func parseDay(s string, today model.Date) (model.Date, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		if n, err := strconv.Atoi(s); err == nil {
			return today.AddDays(n), nil
		}
	}
	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}
	if wd, ok := model.ParseWeekday(s); ok {
		for _, d := range board.WeekOfDate(today).Days() {
			if d.Weekday() == wd {
				return d, nil
			}
		}
	}
	return model.Date{}, fmt.Errorf("invalid date %q (use today, tomorrow, a weekday or YYYY-MM-DD)", s)
}

// parseClock normalizes HH:MM
func parseClock(s string) (string, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2]), nil
}

// splitList splits a comma separated flag value, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// refTime returns the moment whose week commands operate on
func refTime() (time.Time, error) {
	if weekRef == "" {
		return now(), nil
	}
	d, err := parseDay(weekRef, model.DateOf(now()))
	if err != nil {
		return time.Time{}, err
	}
	return d.Time(), nil
}
