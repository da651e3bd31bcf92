package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	store := New()
	at := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)

	first, err := store.Insert(context.Background(), model.Event{ID: 7, Title: "One", Timestamp: at})
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := store.Insert(context.Background(), model.Event{Title: "Two", Timestamp: at})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
}

func TestQueryRangesAndOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()
	day := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

	for _, event := range []model.Event{
		{Title: "next day", Timestamp: day.AddDate(0, 0, 1)},
		{Title: "b", Timestamp: day.Add(9 * time.Hour), TimeLabel: "09:00b"},
		{Title: "a", Timestamp: day.Add(9 * time.Hour), TimeLabel: "09:00a"},
		{Title: "midnight", Timestamp: day},
	} {
		if _, err := store.Insert(ctx, event); err != nil {
			t.Fatalf("insert %s: %v", event.Title, err)
		}
	}

	events, err := store.Query(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 || events[0].Title != "midnight" || events[1].Title != "b" || events[2].Title != "a" {
		t.Fatalf("expected midnight,b,a by timestamp then id, got %+v", events)
	}

	events, err = store.QueryFrom(ctx, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("query from: %v", err)
	}
	if len(events) != 3 || events[0].Title != "a" || events[1].Title != "b" || events[2].Title != "next day" {
		t.Fatalf("expected a,b,next day, got %+v", events)
	}
}

func TestMutationsOnMissingIDs(t *testing.T) {
	store := New()

	err := store.Update(context.Background(), model.Event{ID: 3, Title: "x", Timestamp: time.Now()})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(context.Background(), 3); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateReplacesAndSignals(t *testing.T) {
	store := New()
	ctx := context.Background()
	changes, cancel := store.Watch()
	defer cancel()

	created, err := store.Insert(ctx, model.Event{Title: "Draft", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	<-changes

	created.Title = "Final"
	if err := store.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case <-changes:
	default:
		t.Fatalf("expected change signal after update")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Final" {
		t.Fatalf("expected replaced title, got %q", got.Title)
	}
}

func TestClosedStore(t *testing.T) {
	store := New()
	changes, _ := store.Watch()
	_ = store.Close()

	if _, ok := <-changes; ok {
		t.Fatalf("expected watch closed")
	}
	if _, err := store.QueryFrom(context.Background(), time.Now()); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
