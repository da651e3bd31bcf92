package calendar

import (
	"fmt"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

// Status is the temporal position of an event relative to a reference instant.
type Status int

const (
	Past Status = iota
	Today
	ThisWeek
	Upcoming
)

// thisWeekDays is the last day offset, counted from the reference day, that
// still classifies as ThisWeek.
const thisWeekDays = 6

func Statuses() []Status {
	return []Status{Past, Today, ThisWeek, Upcoming}
}

func (s Status) String() string {
	switch s {
	case Past:
		return "Past"
	case Today:
		return "Today"
	case ThisWeek:
		return "This Week"
	case Upcoming:
		return "Upcoming"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case Past:
		return []byte("past"), nil
	case Today:
		return []byte("today"), nil
	case ThisWeek:
		return []byte("this_week"), nil
	case Upcoming:
		return []byte("upcoming"), nil
	default:
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
}

// Classify places ts relative to ref. Rules apply in order: same day is
// Today, an earlier day is Past, the next six days are ThisWeek and anything
// later is Upcoming.
func (c Calendar) Classify(ts, ref time.Time) Status {
	days := c.DaysBetween(ref, ts)
	switch {
	case days == 0:
		return Today
	case days < 0:
		return Past
	case days <= thisWeekDays:
		return ThisWeek
	default:
		return Upcoming
	}
}

func (c Calendar) ClassifyEvent(event model.Event, ref time.Time) Status {
	return c.Classify(event.Timestamp, ref)
}

// Partition buckets events by status. Input order is kept inside each bucket.
func (c Calendar) Partition(events []model.Event, ref time.Time) map[Status][]model.Event {
	result := make(map[Status][]model.Event)
	for _, event := range events {
		status := c.ClassifyEvent(event, ref)
		result[status] = append(result[status], event)
	}
	return result
}
