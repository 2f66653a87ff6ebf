package model

import (
	"fmt"
	"strings"
	"time"
)

// weekdayCodes are the two-letter day codes indexed by time.Weekday
var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// mondayFirst is the display and encoding order of a week
var mondayFirst = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayCode returns the two-letter code for a weekday (MO, TU, ...)
func WeekdayCode(w time.Weekday) string {
	return weekdayCodes[w]
}

// ParseWeekday converts a two-letter code or an English day name to a weekday
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, false
	}
	for i, code := range weekdayCodes {
		if s == code || (len(s) >= 3 && strings.HasPrefix(strings.ToUpper(time.Weekday(i).String()), s)) {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Rule is a weekly recurrence on a set of weekdays, stored as
// "FREQ=WEEKLY;BYDAY=MO,WE"
type Rule struct {
	days uint8
}

// NewRule builds a rule firing on the given weekdays
func NewRule(days ...time.Weekday) Rule {
	var r Rule
	for _, d := range days {
		r.days |= 1 << uint(d)
	}
	return r
}

// ParseRule reads the BYDAY list of a rule string. Unknown day codes are
// ignored and a rule without BYDAY has no days.
func ParseRule(s string) Rule {
	_, list, ok := strings.Cut(s, "BYDAY=")
	if !ok {
		return Rule{}
	}
	list, _, _ = strings.Cut(list, ";")
	var r Rule
	for _, code := range strings.Split(list, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		for i, c := range weekdayCodes {
			if code == c {
				r.days |= 1 << uint(i)
			}
		}
	}
	return r
}

// ParseDayList parses a comma separated list of day codes or names, e.g. "mo,wed"
func ParseDayList(s string) (Rule, error) {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, ok := ParseWeekday(part)
		if !ok {
			return Rule{}, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return Rule{}, fmt.Errorf("no weekdays given")
	}
	return NewRule(days...), nil
}

// Includes reports whether the rule fires on w
func (r Rule) Includes(w time.Weekday) bool {
	return r.days&(1<<uint(w)) != 0
}

// IsEmpty reports whether the rule fires on no day at all
func (r Rule) IsEmpty() bool {
	return r.days == 0
}

// Days returns the weekdays of the rule, Monday first
func (r Rule) Days() []time.Weekday {
	var days []time.Weekday
	for _, d := range mondayFirst {
		if r.Includes(d) {
			days = append(days, d)
		}
	}
	return days
}

// Codes returns the day codes of the rule, Monday first
func (r Rule) Codes() []string {
	days := r.Days()
	codes := make([]string, len(days))
	for i, d := range days {
		codes[i] = WeekdayCode(d)
	}
	return codes
}

func (r Rule) String() string {
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(r.Codes(), ",")
}
