// Package planner combines an event store with the calendar rules to answer
// the questions every view asks: what happens on a day, what is coming up,
// and which days of a month carry markers.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Joseda-hg/lazycal/internal/calendar"
	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/model"
)

type Planner struct {
	store     Store
	cal       calendar.Calendar
	horizon   int
	weekStart time.Weekday
	log       logger.Logger
	now       func() time.Time
}

type Option func(*Planner)

func WithLocation(loc *time.Location) Option {
	return func(p *Planner) { p.cal = calendar.New(loc) }
}

// WithHorizon sets the upcoming window in days. Values <= 0 keep the default.
func WithHorizon(days int) Option {
	return func(p *Planner) {
		if days > 0 {
			p.horizon = days
		}
	}
}

func WithWeekStart(day time.Weekday) Option {
	return func(p *Planner) { p.weekStart = day }
}

func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		p.log = logger.OrNop(l).Named("planner")
	}
}

// WithClock replaces the wall clock used for live reference instants.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

func New(store Store, opts ...Option) *Planner {
	p := &Planner{
		store:     store,
		cal:       calendar.New(nil),
		horizon:   calendar.DefaultHorizonDays,
		weekStart: time.Sunday,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) Calendar() calendar.Calendar { return p.cal }
func (p *Planner) Horizon() int                { return p.horizon }
func (p *Planner) WeekStart() time.Weekday     { return p.weekStart }

// Now returns the clock reading in the planner's zone.
func (p *Planner) Now() time.Time {
	return p.now().In(p.cal.Location())
}

// MonthView is everything needed to draw one month grid.
type MonthView struct {
	Year    int                         `json:"year"`
	Month   time.Month                  `json:"month"`
	Offset  int                         `json:"offset"`
	Days    int                         `json:"days"`
	Cells   []calendar.GridCell         `json:"-"`
	Markers map[int]calendar.GridMarker `json:"markers"`
}

// DayEvents returns the events of day's calendar day in timestamp order.
func (p *Planner) DayEvents(ctx context.Context, day time.Time) ([]model.Event, error) {
	events, err := p.store.Query(ctx, p.cal.StartOfDay(day), p.cal.EndOfDay(day))
	if err != nil {
		return nil, fmt.Errorf("day events: %w", err)
	}
	return p.cal.EventsOnDay(events, day), nil
}

// Upcoming returns events in [ref, ref+horizon]. The store is read from the
// start of ref's day and the window is applied here.
func (p *Planner) Upcoming(ctx context.Context, ref time.Time) ([]model.Event, error) {
	events, err := p.store.QueryFrom(ctx, p.cal.StartOfDay(ref))
	if err != nil {
		return nil, fmt.Errorf("upcoming events: %w", err)
	}
	return p.cal.UpcomingEvents(events, ref, p.horizon), nil
}

func (p *Planner) UpcomingByDay(ctx context.Context, ref time.Time) ([]calendar.DayBucket, error) {
	events, err := p.Upcoming(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.cal.GroupByDay(events), nil
}

func (p *Planner) Month(ctx context.Context, year int, month time.Month, ref time.Time) (MonthView, error) {
	start := p.cal.Date(year, month, 1)
	end := p.cal.Date(year, month+1, 1)

	events, err := p.store.Query(ctx, start, end)
	if err != nil {
		return MonthView{}, fmt.Errorf("month events: %w", err)
	}
	upcoming, err := p.Upcoming(ctx, ref)
	if err != nil {
		return MonthView{}, err
	}

	return MonthView{
		Year:    year,
		Month:   month,
		Offset:  calendar.GridOffset(year, month, p.weekStart),
		Days:    calendar.DaysInMonth(year, month),
		Cells:   p.cal.MonthGrid(year, month, p.weekStart),
		Markers: p.cal.MonthGridMarkers(events, upcoming, year, month),
	}, nil
}

// Status classifies event against the current clock.
func (p *Planner) Status(event model.Event) calendar.Status {
	return p.cal.ClassifyEvent(event, p.Now())
}

// Get loads one event when the store supports single-event reads.
func (p *Planner) Get(ctx context.Context, id int64) (model.Event, error) {
	g, ok := p.store.(getter)
	if !ok {
		return model.Event{}, errors.New("get event: store does not support lookups")
	}
	return g.Get(ctx, id)
}

func (p *Planner) Create(ctx context.Context, event model.Event) (model.Event, error) {
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}
	event.ID = 0
	created, err := p.store.Insert(ctx, event)
	if err != nil {
		p.log.Error(ctx, "create event failed", logger.Error(err))
		return model.Event{}, err
	}
	p.log.Debug(ctx, "event created", logger.Int64("id", created.ID))
	return created, nil
}

func (p *Planner) Update(ctx context.Context, event model.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := p.store.Update(ctx, event); err != nil {
		p.log.Error(ctx, "update event failed", logger.Int64("id", event.ID), logger.Error(err))
		return err
	}
	return nil
}

func (p *Planner) Delete(ctx context.Context, id int64) error {
	if err := p.store.Delete(ctx, id); err != nil {
		p.log.Error(ctx, "delete event failed", logger.Int64("id", id), logger.Error(err))
		return err
	}
	return nil
}

// All returns every stored event in timestamp order.
func (p *Planner) All(ctx context.Context) ([]model.Event, error) {
	events, err := p.store.QueryFrom(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("all events: %w", err)
	}
	return events, nil
}
