package planner

import (
	"context"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

// Store is the persistence contract the planner needs. Implementations
// serialize their own writers and signal watchers after each committed
// mutation.
type Store interface {
	// Query returns events with timestamps in [start, end) in ascending order.
	Query(ctx context.Context, start, end time.Time) ([]model.Event, error)
	// QueryFrom returns events at or after from, ordered by timestamp, then
	// time label, then id.
	QueryFrom(ctx context.Context, from time.Time) ([]model.Event, error)
	// Insert persists a new event and returns it with its assigned ID.
	Insert(ctx context.Context, event model.Event) (model.Event, error)
	Update(ctx context.Context, event model.Event) error
	Delete(ctx context.Context, id int64) error
	// Watch returns a change signal channel and a func that disposes it.
	Watch() (<-chan struct{}, func())
}

// getter is implemented by stores that can load a single event.
type getter interface {
	Get(ctx context.Context, id int64) (model.Event, error)
}
