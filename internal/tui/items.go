package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Joseda-hg/lazycal/internal/calendar"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/planner"
)

// listRow is one line of the upcoming pane: a day header or an event.
type listRow struct {
	header string
	event  *model.Event
}

func buildUpcomingRows(buckets []calendar.DayBucket) []listRow {
	rows := make([]listRow, 0, len(buckets)*2)
	for _, bucket := range buckets {
		rows = append(rows, listRow{header: formatDayHeader(bucket.Day)})
		for i := range bucket.Events {
			rows = append(rows, listRow{event: &bucket.Events[i]})
		}
	}
	return rows
}

// eventRowIndexes maps selectable event positions to row positions.
func eventRowIndexes(rows []listRow) []int {
	indexes := make([]int, 0, len(rows))
	for i, row := range rows {
		if row.event != nil {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func formatDayHeader(day time.Time) string {
	return day.Format("Monday, January 2")
}

func timeLabel(event model.Event, loc *time.Location) string {
	return planner.ClockText(event, loc)
}

// relativeLabel prefers "today" and "tomorrow" over humanized distances.
func relativeLabel(cal calendar.Calendar, t, now time.Time) string {
	switch {
	case cal.IsToday(t, now):
		return "today, " + humanize.RelTime(t, now, "ago", "from now")
	case cal.IsTomorrow(t, now):
		return "tomorrow"
	default:
		return humanize.RelTime(t, now, "ago", "from now")
	}
}

func formatEventSummary(cal calendar.Calendar, event model.Event, now time.Time) string {
	return fmt.Sprintf("%s %s | %s", timeLabel(event, cal.Location()), event.Title, cal.ClassifyEvent(event, now))
}

// monthLines renders a month grid as text. Each cell is four columns: a
// prefix ('>' selected, '@' today), the day number and a marker ('*' upcoming
// event, '.' other event).
func monthLines(cal calendar.Calendar, view planner.MonthView, weekStart time.Weekday, selected, now time.Time) []string {
	lines := []string{}

	header := make([]string, 0, 7)
	for _, label := range calendar.WeekdayLabels(weekStart) {
		header = append(header, fmt.Sprintf(" %-3s", truncate(label, 2)))
	}
	lines = append(lines, strings.Join(header, ""))

	var b strings.Builder
	for i, cell := range view.Cells {
		if i > 0 && i%7 == 0 {
			lines = append(lines, strings.TrimRight(b.String(), " "))
			b.Reset()
		}
		if cell.Day == 0 {
			b.WriteString("    ")
			continue
		}

		prefix := " "
		switch {
		case cal.SameDay(cell.Date, selected):
			prefix = ">"
		case cal.SameDay(cell.Date, now):
			prefix = "@"
		}

		marker := " "
		if m, ok := view.Markers[cell.Day]; ok && m.HasEvent {
			marker = "."
			if m.IsUpcoming {
				marker = "*"
			}
		}
		fmt.Fprintf(&b, "%s%2d%s", prefix, cell.Day, marker)
	}
	if b.Len() > 0 {
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}

	lines = append(lines, "", "* upcoming  . event  @ today")
	return lines
}

func truncate(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
