// Package memstore is a process-local event store. It backs tests and the
// ":memory:" database path when nothing should touch disk.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/watch"
)

type Store struct {
	mu     sync.RWMutex
	nextID int64
	events map[int64]model.Event
	closed bool

	hub *watch.Hub
}

func New() *Store {
	return &Store{
		nextID: 1,
		events: make(map[int64]model.Event),
		hub:    watch.NewHub(),
	}
}

func (s *Store) Query(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	return s.collect(ctx, "query", func(e model.Event) bool {
		return !e.Timestamp.Before(start) && e.Timestamp.Before(end)
	}, byTimestamp)
}

func (s *Store) QueryFrom(ctx context.Context, from time.Time) ([]model.Event, error) {
	return s.collect(ctx, "query from", func(e model.Event) bool {
		return !e.Timestamp.Before(from)
	}, byTimestampThenLabel)
}

func (s *Store) Insert(ctx context.Context, event model.Event) (model.Event, error) {
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, unavailable("insert")
	}
	event.ID = s.nextID
	s.nextID++
	event = normalize(event)
	s.events[event.ID] = event
	s.mu.Unlock()

	s.hub.Notify()
	return event, nil
}

func (s *Store) Update(ctx context.Context, event model.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return unavailable("update")
	}
	if _, ok := s.events[event.ID]; !ok {
		s.mu.Unlock()
		return &model.NotFoundError{ID: event.ID}
	}
	s.events[event.ID] = normalize(event)
	s.mu.Unlock()

	s.hub.Notify()
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return unavailable("delete")
	}
	if _, ok := s.events[id]; !ok {
		s.mu.Unlock()
		return &model.NotFoundError{ID: id}
	}
	delete(s.events, id)
	s.mu.Unlock()

	s.hub.Notify()
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Event{}, unavailable("get")
	}
	event, ok := s.events[id]
	if !ok {
		return model.Event{}, &model.NotFoundError{ID: id}
	}
	return event, nil
}

// Watch signals after every mutation. Signals coalesce while unread.
func (s *Store) Watch() (<-chan struct{}, func()) {
	return s.hub.Subscribe()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

func (s *Store) collect(ctx context.Context, op string, keep func(model.Event) bool, order func(a, b model.Event) int) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable(op)
	}

	result := make([]model.Event, 0)
	for _, event := range s.events {
		if keep(event) {
			result = append(result, event)
		}
	}
	slices.SortFunc(result, order)
	return result, nil
}

func byTimestamp(a, b model.Event) int {
	return cmpOr(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
}

func byTimestampThenLabel(a, b model.Event) int {
	return cmpOr(
		a.Timestamp.Compare(b.Timestamp),
		strings.Compare(a.TimeLabel, b.TimeLabel),
		cmp.Compare(a.ID, b.ID),
	)
}

// normalize matches what the SQLite store keeps: trimmed text and
// millisecond precision.
func normalize(event model.Event) model.Event {
	event.Title = strings.TrimSpace(event.Title)
	event.TimeLabel = strings.TrimSpace(event.TimeLabel)
	event.Timestamp = time.UnixMilli(event.Timestamp.UnixMilli())
	return event
}

func unavailable(op string) error {
	return &model.StoreUnavailableError{Op: op, Err: errors.New("store closed")}
}

// cmpOr mirrors cmp.Or from Go 1.22 for older toolchains: it returns the
// first of its arguments that is not the zero value.
func cmpOr(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
