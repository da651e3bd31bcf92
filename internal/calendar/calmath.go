// Package calendar holds the pure date logic behind every calendar view:
// day boundaries, month grids, temporal status of events and day buckets.
//
// All functions take the reference instant explicitly and never read the
// wall clock, so results are deterministic and safe for concurrent use.
package calendar

import (
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

// Calendar pins the time zone used for every day computation in a session.
// The zero value uses time.Local.
type Calendar struct {
	loc *time.Location
}

// GridCell is one cell of a month grid. Day is 0 for leading blank cells.
type GridCell struct {
	Day  int
	Date time.Time
}

func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// StartOfDay truncates t to local midnight of its calendar day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

// EndOfDay is the exclusive upper bound of t's calendar day: the next local
// midnight. Outside DST transitions this is StartOfDay(t) + 24h.
func (c Calendar) EndOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.Location()).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.Location())
}

// Date builds local midnight for the given calendar components.
func (c Calendar) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.Location())
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOffset returns the weekday of the 1st of the month,
// 0=Sunday..6=Saturday: the number of blank cells in a Sunday-first grid.
func FirstWeekdayOffset(year int, month time.Month) int {
	return int(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday())
}

// GridOffset is FirstWeekdayOffset for a grid whose first column is weekStart.
func GridOffset(year int, month time.Month, weekStart time.Weekday) int {
	return (FirstWeekdayOffset(year, month) - int(weekStart) + 7) % 7
}

// MonthGrid lays out a month as blank padding cells followed by one cell per day.
func (c Calendar) MonthGrid(year int, month time.Month, weekStart time.Weekday) []GridCell {
	offset := GridOffset(year, month, weekStart)
	days := DaysInMonth(year, month)

	cells := make([]GridCell, 0, offset+days)
	for i := 0; i < offset; i++ {
		cells = append(cells, GridCell{})
	}
	for day := 1; day <= days; day++ {
		cells = append(cells, GridCell{Day: day, Date: c.Date(year, month, day)})
	}
	return cells
}

// AddMonths moves (year, month) by delta months.
func AddMonths(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// WeekdayLabels returns short weekday names starting at weekStart.
func WeekdayLabels(weekStart time.Weekday) []string {
	labels := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		labels = append(labels, time.Weekday((int(weekStart)+i)%7).String()[:3])
	}
	return labels
}

func (c Calendar) DayKeyOf(t time.Time) model.DayKey {
	local := t.In(c.Location())
	return model.DayKey{Year: local.Year(), YearDay: local.YearDay()}
}

// DaysBetween counts calendar days from a's day to b's day; negative when b
// falls on an earlier day.
func (c Calendar) DaysBetween(a, b time.Time) int {
	return int(c.civilDay(b) - c.civilDay(a))
}

func (c Calendar) SameDay(a, b time.Time) bool {
	return c.civilDay(a) == c.civilDay(b)
}

func (c Calendar) IsToday(t, ref time.Time) bool {
	return c.DaysBetween(ref, t) == 0
}

func (c Calendar) IsTomorrow(t, ref time.Time) bool {
	return c.DaysBetween(ref, t) == 1
}

// civilDay numbers calendar days independently of DST so that day
// differences are exact.
func (c Calendar) civilDay(t time.Time) int64 {
	y, m, d := t.In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
