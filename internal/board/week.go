package board

import (
	"time"

	"github.com/existflow/hearth/internal/model"
)

// Week is a Monday to Sunday span, both ends inclusive
type Week struct {
	Start model.Date
	End   model.Date
}

// WeekOf returns the week containing ref's calendar day
func WeekOf(ref time.Time) Week {
	return WeekOfDate(model.DateOf(ref))
}

// WeekOfDate returns the week containing d
func WeekOfDate(d model.Date) Week {
	offset := (int(d.Weekday()) + 6) % 7 // days since Monday
	start := d.AddDays(-offset)
	return Week{Start: start, End: start.AddDays(6)}
}

// Days returns the seven days of the week, Monday first
func (w Week) Days() []model.Date {
	days := make([]model.Date, 7)
	for i := range days {
		days[i] = w.Start.AddDays(i)
	}
	return days
}

// Contains reports whether d falls inside the week
func (w Week) Contains(d model.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Next returns the following week
func (w Week) Next() Week {
	return WeekOfDate(w.Start.AddDays(7))
}

// Prev returns the preceding week
func (w Week) Prev() Week {
	return WeekOfDate(w.Start.AddDays(-7))
}

func (w Week) String() string {
	return w.Start.String() + ".." + w.End.String()
}
