package planner

import (
	"context"
	"sync"
	"time"

	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/model"
)

// Query produces the event sequence a subscription keeps current.
type Query func(ctx context.Context, p *Planner) ([]model.Event, error)

// DayQuery tracks the events of day's calendar day.
func DayQuery(day time.Time) Query {
	return func(ctx context.Context, p *Planner) ([]model.Event, error) {
		return p.DayEvents(ctx, day)
	}
}

// UpcomingQuery tracks the upcoming window from ref. A zero ref reads the
// planner clock on every refresh.
func UpcomingQuery(ref time.Time) Query {
	return func(ctx context.Context, p *Planner) ([]model.Event, error) {
		at := ref
		if at.IsZero() {
			at = p.Now()
		}
		return p.Upcoming(ctx, at)
	}
}

// Snapshot is one evaluation of a subscription's query.
type Snapshot struct {
	Events []model.Event
	Err    error
}

// Subscription re-runs its query whenever the store changes.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Subscribe starts a subscription that emits a snapshot immediately and
// again after every store change. It ends when ctx is cancelled, Close is
// called, or the store stops delivering change signals; Updates is closed
// then.
func (p *Planner) Subscribe(ctx context.Context, query Query) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	changes, stop := p.store.Watch()
	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		defer stop()

		for {
			events, err := query(ctx, p)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.log.Warn(ctx, "subscription refresh failed", logger.Error(err))
			}

			select {
			case sub.updates <- Snapshot{Events: events, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub
}

func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
