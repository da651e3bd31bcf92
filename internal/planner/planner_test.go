package planner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Joseda-hg/lazycal/internal/calendar"
	"github.com/Joseda-hg/lazycal/internal/memstore"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/planner"
)

var zone = time.FixedZone("planner", -4*60*60)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, zone)
}

type countingStore struct {
	*memstore.Store
	inserts int
	updates int
}

func (s *countingStore) Insert(ctx context.Context, event model.Event) (model.Event, error) {
	s.inserts++
	return s.Store.Insert(ctx, event)
}

func (s *countingStore) Update(ctx context.Context, event model.Event) error {
	s.updates++
	return s.Store.Update(ctx, event)
}

func seed(store planner.Store, events ...model.Event) []model.Event {
	created := make([]model.Event, 0, len(events))
	for _, event := range events {
		saved, err := store.Insert(context.Background(), event)
		So(err, ShouldBeNil)
		created = append(created, saved)
	}
	return created
}

func TestPlannerQueries(t *testing.T) {
	Convey("Given a planner over an in-memory store", t, func() {
		store := memstore.New()
		ref := at(time.June, 10, 10, 0)
		p := planner.New(store, planner.WithLocation(zone), planner.WithClock(func() time.Time { return ref }))
		ctx := context.Background()

		saved := seed(store,
			model.Event{Title: "breakfast", Timestamp: at(time.June, 10, 8, 0)},
			model.Event{Title: "lunch", Timestamp: at(time.June, 10, 12, 0)},
			model.Event{Title: "late", Timestamp: at(time.June, 10, 23, 59)},
			model.Event{Title: "midnight", Timestamp: at(time.June, 11, 0, 0)},
			model.Event{Title: "edge", Timestamp: ref.Add(7 * 24 * time.Hour)},
			model.Event{Title: "beyond", Timestamp: ref.Add(7*24*time.Hour + time.Millisecond)},
			model.Event{Title: "last month", Timestamp: at(time.May, 30, 9, 0)},
		)

		Convey("DayEvents keeps midnight on the later day", func() {
			events, err := p.DayEvents(ctx, ref)
			So(err, ShouldBeNil)
			So(titles(events), ShouldResemble, []string{"breakfast", "lunch", "late"})

			next, err := p.DayEvents(ctx, at(time.June, 11, 15, 0))
			So(err, ShouldBeNil)
			So(titles(next), ShouldResemble, []string{"midnight"})
		})

		Convey("Upcoming starts at the reference instant and includes the horizon end", func() {
			events, err := p.Upcoming(ctx, ref)
			So(err, ShouldBeNil)
			So(titles(events), ShouldResemble, []string{"lunch", "late", "midnight", "edge"})
		})

		Convey("UpcomingByDay groups by calendar day", func() {
			buckets, err := p.UpcomingByDay(ctx, ref)
			So(err, ShouldBeNil)
			So(buckets, ShouldHaveLength, 3)
			So(buckets[0].Events, ShouldHaveLength, 2)
			So(buckets[1].Day.Day(), ShouldEqual, 11)
			So(buckets[2].Day.Day(), ShouldEqual, 17)
		})

		Convey("Month marks event days and flags upcoming ones", func() {
			view, err := p.Month(ctx, 2024, time.June, ref)
			So(err, ShouldBeNil)
			So(view.Offset, ShouldEqual, 6)
			So(view.Days, ShouldEqual, 30)
			So(view.Markers, ShouldHaveLength, 3)
			So(view.Markers[10], ShouldResemble, calendar.GridMarker{HasEvent: true, IsUpcoming: true})
			So(view.Markers[11].IsUpcoming, ShouldBeTrue)
			So(view.Markers[17].IsUpcoming, ShouldBeTrue)

			may, err := p.Month(ctx, 2024, time.May, ref)
			So(err, ShouldBeNil)
			So(may.Markers[30].HasEvent, ShouldBeTrue)
			So(may.Markers[30].IsUpcoming, ShouldBeFalse)
		})

		Convey("Status uses the injected clock", func() {
			So(p.Status(saved[0]).String(), ShouldEqual, "Today")
			So(p.Status(saved[6]).String(), ShouldEqual, "Past")
			So(p.Status(saved[4]).String(), ShouldEqual, "Upcoming")
		})

		Convey("A closed store surfaces as unavailable", func() {
			So(store.Close(), ShouldBeNil)
			_, err := p.DayEvents(ctx, ref)
			So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}

func TestPlannerMutations(t *testing.T) {
	Convey("Given a planner that counts store writes", t, func() {
		store := &countingStore{Store: memstore.New()}
		p := planner.New(store, planner.WithLocation(zone))
		ctx := context.Background()

		Convey("Create rejects a blank title before reaching the store", func() {
			_, err := p.Create(ctx, model.Event{Title: "  ", Timestamp: at(time.June, 10, 9, 0)})
			var validation *model.ValidationError
			So(errors.As(err, &validation), ShouldBeTrue)
			So(validation.Field, ShouldEqual, "title")
			So(store.inserts, ShouldEqual, 0)
		})

		Convey("Update rejects a missing timestamp before reaching the store", func() {
			err := p.Update(ctx, model.Event{ID: 1, Title: "x"})
			var validation *model.ValidationError
			So(errors.As(err, &validation), ShouldBeTrue)
			So(validation.Field, ShouldEqual, "timestamp")
			So(store.updates, ShouldEqual, 0)
		})

		Convey("Create assigns an id and Get reads it back", func() {
			created, err := p.Create(ctx, model.Event{ID: 50, Title: "Call", Timestamp: at(time.June, 10, 9, 0)})
			So(err, ShouldBeNil)
			So(created.ID, ShouldEqual, 1)

			got, err := p.Get(ctx, created.ID)
			So(err, ShouldBeNil)
			So(got.Title, ShouldEqual, "Call")
		})

		Convey("Delete of a missing id is not found", func() {
			err := p.Delete(ctx, 9)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestBuildEvent(t *testing.T) {
	Convey("Given form input", t, func() {
		now := at(time.June, 10, 10, 0)
		p := planner.New(memstore.New(), planner.WithLocation(zone), planner.WithClock(func() time.Time { return now }))

		Convey("A full form becomes an event in the planner zone", func() {
			event, err := p.BuildEvent(planner.Input{Title: " Dentist ", Date: "2024-06-12", Time: "14:30"})
			So(err, ShouldBeNil)
			So(event.Title, ShouldEqual, "Dentist")
			So(event.Timestamp.Equal(at(time.June, 12, 14, 30)), ShouldBeTrue)
			So(event.TimeLabel, ShouldEqual, "14:30")
		})

		Convey("A blank date means today", func() {
			event, err := p.BuildEvent(planner.Input{Title: "Now", Time: "18:05"})
			So(err, ShouldBeNil)
			So(event.Timestamp.Equal(at(time.June, 10, 18, 5)), ShouldBeTrue)
		})

		Convey("Time is required", func() {
			_, err := p.BuildEvent(planner.Input{Title: "No time", Date: "2024-06-12"})
			var validation *model.ValidationError
			So(errors.As(err, &validation), ShouldBeTrue)
			So(validation.Field, ShouldEqual, "time")
		})

		Convey("A malformed date is rejected", func() {
			_, err := p.BuildEvent(planner.Input{Title: "Bad", Date: "12/06/2024", Time: "09:00"})
			var validation *model.ValidationError
			So(errors.As(err, &validation), ShouldBeTrue)
			So(validation.Field, ShouldEqual, "date")
		})

		Convey("InputFor round-trips an event", func() {
			input := p.InputFor(model.Event{Title: "Dentist", Timestamp: at(time.June, 12, 14, 30)})
			So(input.Date, ShouldEqual, "2024-06-12")
			So(input.Time, ShouldEqual, "14:30")
		})

		Convey("An event labeled in another zone keeps its instant through edit and save", func() {
			other := time.FixedZone("CEST", 2*60*60)
			original := model.Event{Title: "Call", Timestamp: time.Date(2024, time.June, 12, 14, 30, 0, 0, other), TimeLabel: "14:30"}

			input := p.InputFor(original)
			So(input.Date, ShouldEqual, "2024-06-12")
			So(input.Time, ShouldEqual, "08:30")

			rebuilt, err := p.BuildEvent(input)
			So(err, ShouldBeNil)
			So(rebuilt.Timestamp.Equal(original.Timestamp), ShouldBeTrue)
			So(rebuilt.TimeLabel, ShouldEqual, "08:30")
		})
	})
}

func TestClockText(t *testing.T) {
	Convey("Given an event at 14:30 planner time", t, func() {
		event := model.Event{Title: "Dentist", Timestamp: at(time.June, 12, 14, 30)}

		Convey("A matching label is shown", func() {
			event.TimeLabel = "14:30"
			So(planner.ClockText(event, zone), ShouldEqual, "14:30")
		})

		Convey("A label naming another clock time falls back to the local time", func() {
			event.TimeLabel = "20:30"
			So(planner.ClockText(event, zone), ShouldEqual, "14:30")
			So(planner.ClockText(event, time.UTC), ShouldEqual, "18:30")
		})

		Convey("A missing label uses the local time", func() {
			So(planner.ClockText(event, zone), ShouldEqual, "14:30")
		})
	})
}

func TestSubscribe(t *testing.T) {
	Convey("Given a subscription on a day", t, func() {
		store := memstore.New()
		p := planner.New(store, planner.WithLocation(zone))
		day := at(time.June, 10, 0, 0)
		sub := p.Subscribe(context.Background(), planner.DayQuery(day))
		defer sub.Close()

		Convey("It emits the current sequence first", func() {
			snapshot := receive(sub)
			So(snapshot.Err, ShouldBeNil)
			So(snapshot.Events, ShouldBeEmpty)

			Convey("And a fresh sequence after each change", func() {
				_, err := store.Insert(context.Background(), model.Event{Title: "later", Timestamp: at(time.June, 10, 18, 0)})
				So(err, ShouldBeNil)
				snapshot = receive(sub)
				So(titles(snapshot.Events), ShouldResemble, []string{"later"})

				_, err = store.Insert(context.Background(), model.Event{Title: "earlier", Timestamp: at(time.June, 10, 7, 0)})
				So(err, ShouldBeNil)
				snapshot = receive(sub)
				So(titles(snapshot.Events), ShouldResemble, []string{"earlier", "later"})
			})
		})

		Convey("Close ends the update stream", func() {
			sub.Close()
			for range sub.Updates() {
			}
			So(true, ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		store := memstore.New()
		p := planner.New(store)
		ctx, cancel := context.WithCancel(context.Background())
		sub := p.Subscribe(ctx, planner.UpcomingQuery(time.Time{}))
		cancel()

		Convey("The stream closes", func() {
			closed := false
			timeout := time.After(2 * time.Second)
			for !closed {
				select {
				case _, ok := <-sub.Updates():
					closed = !ok
				case <-timeout:
					So("timeout", ShouldBeEmpty)
					return
				}
			}
			So(closed, ShouldBeTrue)
		})
	})
}

func receive(sub *planner.Subscription) planner.Snapshot {
	select {
	case snapshot, ok := <-sub.Updates():
		So(ok, ShouldBeTrue)
		return snapshot
	case <-time.After(2 * time.Second):
		So("no snapshot before timeout", ShouldBeEmpty)
		return planner.Snapshot{}
	}
}

func titles(events []model.Event) []string {
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.Title)
	}
	return names
}

func TestHorizonDefault(t *testing.T) {
	Convey("Given planners built with different horizons", t, func() {
		Convey("An unset or non-positive horizon falls back to the default week", func() {
			So(planner.New(memstore.New()).Horizon(), ShouldEqual, calendar.DefaultHorizonDays)
			So(planner.New(memstore.New(), planner.WithHorizon(0)).Horizon(), ShouldEqual, calendar.DefaultHorizonDays)
			So(planner.New(memstore.New(), planner.WithHorizon(-2)).Horizon(), ShouldEqual, calendar.DefaultHorizonDays)
		})

		Convey("A positive horizon is kept", func() {
			So(planner.New(memstore.New(), planner.WithHorizon(3)).Horizon(), ShouldEqual, 3)
		})
	})
}
