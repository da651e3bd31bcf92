package calendar

import (
	"slices"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

// DefaultHorizonDays is the forward window that defines "upcoming".
const DefaultHorizonDays = 7

// DayBucket groups the events of one calendar day.
type DayBucket struct {
	Key    model.DayKey
	Day    time.Time
	Events []model.Event
}

// GridMarker describes a month-grid day that has at least one event.
type GridMarker struct {
	HasEvent   bool `json:"has_event"`
	IsUpcoming bool `json:"is_upcoming"`
}

// EventsOnDay returns the events in [StartOfDay(day), EndOfDay(day)) sorted by
// timestamp. Equal timestamps keep their input order.
func (c Calendar) EventsOnDay(events []model.Event, day time.Time) []model.Event {
	start := c.StartOfDay(day)
	end := c.EndOfDay(day)

	result := make([]model.Event, 0)
	for _, event := range events {
		if event.Timestamp.Before(start) || !event.Timestamp.Before(end) {
			continue
		}
		result = append(result, event)
	}
	sortByTimestamp(result)
	return result
}

// UpcomingEvents returns the events in [ref, ref+horizonDays*24h], both ends
// inclusive, sorted by timestamp. A non-positive horizon is an empty window
// that keeps only events exactly at ref. Callers pick the default.
func (c Calendar) UpcomingEvents(events []model.Event, ref time.Time, horizonDays int) []model.Event {
	horizonDays = max(horizonDays, 0)
	limit := ref.Add(time.Duration(horizonDays) * 24 * time.Hour)

	result := make([]model.Event, 0)
	for _, event := range events {
		if event.Timestamp.Before(ref) || event.Timestamp.After(limit) {
			continue
		}
		result = append(result, event)
	}
	sortByTimestamp(result)
	return result
}

// GroupByDay splits events into per-day buckets in ascending day order.
func (c Calendar) GroupByDay(events []model.Event) []DayBucket {
	sorted := slices.Clone(events)
	sortByTimestamp(sorted)

	buckets := make([]DayBucket, 0)
	for _, event := range sorted {
		key := c.DayKeyOf(event.Timestamp)
		if n := len(buckets); n > 0 && buckets[n-1].Key == key {
			buckets[n-1].Events = append(buckets[n-1].Events, event)
			continue
		}
		buckets = append(buckets, DayBucket{
			Key:    key,
			Day:    c.StartOfDay(event.Timestamp),
			Events: []model.Event{event},
		})
	}
	return buckets
}

func (c Calendar) UpcomingByDay(events []model.Event, ref time.Time, horizonDays int) []DayBucket {
	return c.GroupByDay(c.UpcomingEvents(events, ref, horizonDays))
}

// MonthGridMarkers maps each day of the month that has an event in
// events or upcoming to its marker. Days without events have no entry.
// An event counts as upcoming when the same event (by ID, or by timestamp
// for unsaved events) appears in upcoming.
func (c Calendar) MonthGridMarkers(events, upcoming []model.Event, year int, month time.Month) map[int]GridMarker {
	upcomingKeys := make(map[eventKey]struct{}, len(upcoming))
	for _, event := range upcoming {
		upcomingKeys[keyOf(event)] = struct{}{}
	}

	markers := make(map[int]GridMarker)
	mark := func(event model.Event) {
		local := event.Timestamp.In(c.Location())
		if local.Year() != year || local.Month() != month {
			return
		}
		marker := markers[local.Day()]
		marker.HasEvent = true
		if _, ok := upcomingKeys[keyOf(event)]; ok {
			marker.IsUpcoming = true
		}
		markers[local.Day()] = marker
	}

	for _, event := range events {
		mark(event)
	}
	for _, event := range upcoming {
		mark(event)
	}
	return markers
}

type eventKey struct {
	id    int64
	nanos int64
}

func keyOf(event model.Event) eventKey {
	if event.ID != 0 {
		return eventKey{id: event.ID}
	}
	return eventKey{nanos: event.Timestamp.UnixNano()}
}

func sortByTimestamp(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
