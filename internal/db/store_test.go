package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

var testZone = time.FixedZone("test", 2*60*60)

func TestInsertAssignsIDAndRecordsHistory(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created, err := store.Insert(context.Background(), model.Event{
		ID:          99,
		Title:       "  Dentist  ",
		Description: "Bring card",
		Timestamp:   time.Date(2024, time.June, 10, 14, 30, 0, 0, testZone),
		TimeLabel:   "14:30",
	})
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if created.ID == 0 || created.ID == 99 {
		t.Fatalf("expected store assigned ID, got %d", created.ID)
	}
	if created.Title != "Dentist" {
		t.Fatalf("expected trimmed title 'Dentist', got %q", created.Title)
	}
	if !created.Timestamp.Equal(time.Date(2024, time.June, 10, 14, 30, 0, 0, testZone)) {
		t.Fatalf("unexpected timestamp %v", created.Timestamp)
	}

	history, err := store.ListHistory(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].EventType != "created" {
		t.Fatalf("expected history event 'created', got %q", history[0].EventType)
	}
	if !strings.Contains(history[0].Details, "title='Dentist'") {
		t.Fatalf("expected created details to name the title, got %q", history[0].Details)
	}
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Insert(context.Background(), model.Event{Title: "   ", Timestamp: time.Now()})
	var validation *model.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Field != "title" {
		t.Fatalf("expected title field, got %q", validation.Field)
	}

	events, err := store.ListEvents(context.Background(), model.Filter{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected nothing persisted, got %d events", len(events))
	}
}

func TestQueryUsesHalfOpenRange(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, testZone)
	end := start.AddDate(0, 0, 1)
	mustInsert(t, store, "before", start.Add(-time.Millisecond))
	mustInsert(t, store, "midnight", start)
	mustInsert(t, store, "evening", start.Add(23*time.Hour))
	mustInsert(t, store, "next midnight", end)

	events, err := store.Query(context.Background(), start, end)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := titles(events); got != "midnight,evening" {
		t.Fatalf("expected midnight,evening, got %s", got)
	}
}

func TestQueryFromOrdersByTimestampThenTimeLabel(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	at := time.Date(2024, time.June, 10, 9, 0, 0, 0, testZone)
	for _, event := range []model.Event{
		{Title: "later", Timestamp: at.Add(time.Hour), TimeLabel: "10:00"},
		{Title: "b", Timestamp: at, TimeLabel: "09:00b"},
		{Title: "a", Timestamp: at, TimeLabel: "09:00a"},
		{Title: "old", Timestamp: at.Add(-48 * time.Hour), TimeLabel: "09:00"},
	} {
		if _, err := store.Insert(context.Background(), event); err != nil {
			t.Fatalf("insert %s: %v", event.Title, err)
		}
	}

	events, err := store.QueryFrom(context.Background(), at.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query from: %v", err)
	}
	if got := titles(events); got != "a,b,later" {
		t.Fatalf("expected a,b,later, got %s", got)
	}
}

func TestUpdateReplacesRecordAndRecordsDiff(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created := mustInsert(t, store, "Standup", time.Date(2024, time.June, 10, 9, 0, 0, 0, testZone))
	before := created.Timestamp
	created.Title = "Retro"
	created.Description = ""
	created.Timestamp = created.Timestamp.Add(2 * time.Hour)
	created.TimeLabel = "11:00"

	if err := store.Update(context.Background(), created); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Title != "Retro" || reloaded.TimeLabel != "11:00" {
		t.Fatalf("expected replaced record, got %+v", reloaded)
	}

	history, err := store.ListHistory(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].EventType != "updated" {
		t.Fatalf("expected newest entry 'updated', got %q", history[0].EventType)
	}
	if !strings.Contains(history[0].Details, "title: 'Standup' -> 'Retro'") {
		t.Fatalf("expected title diff, got %q", history[0].Details)
	}
	if want := formatChange("at", formatWhen(before), formatWhen(reloaded.Timestamp)); !strings.Contains(history[0].Details, want) {
		t.Fatalf("expected timestamp diff, got %q", history[0].Details)
	}
}

func TestUpdateAndDeleteMissingEvent(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	err := store.Update(context.Background(), model.Event{ID: 42, Title: "Ghost", Timestamp: time.Now()})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	var notFound *model.NotFoundError
	if !errors.As(err, &notFound) || notFound.ID != 42 {
		t.Fatalf("expected NotFoundError for 42, got %v", err)
	}

	if err := store.Delete(context.Background(), 42); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestDeleteRemovesEventAndKeepsHistory(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created := mustInsert(t, store, "Flight", time.Date(2024, time.June, 12, 6, 0, 0, 0, testZone))
	if err := store.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(context.Background(), created.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected deleted event to be gone, got %v", err)
	}

	history, err := store.ListHistory(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 || history[0].EventType != "deleted" {
		t.Fatalf("expected deleted history entry, got %+v", history)
	}
}

func TestListEventsFilters(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	day := time.Date(2024, time.June, 10, 8, 0, 0, 0, testZone)
	mustInsert(t, store, "Gym", day)
	mustInsert(t, store, "Gym again", day.AddDate(0, 0, 2))
	mustInsert(t, store, "Lunch", day.AddDate(0, 0, 2))

	events, err := store.ListEvents(context.Background(), model.Filter{Query: "gym"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := titles(events); got != "Gym,Gym again" {
		t.Fatalf("expected gym matches, got %s", got)
	}

	from := day.AddDate(0, 0, 1)
	events, err = store.ListEvents(context.Background(), model.Filter{From: &from})
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if got := titles(events); got != "Gym again,Lunch" {
		t.Fatalf("expected events after from, got %s", got)
	}
}

func TestListEventsQueryIsLiteral(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	day := time.Date(2024, time.June, 10, 8, 0, 0, 0, testZone)
	mustInsert(t, store, "Sale 50% off", day)
	mustInsert(t, store, "Budget 500", day.Add(time.Hour))
	mustInsert(t, store, "read_me", day.Add(2*time.Hour))
	mustInsert(t, store, "readme", day.Add(3*time.Hour))
	mustInsert(t, store, `C:\temp`, day.Add(4*time.Hour))

	cases := []struct {
		query string
		want  string
	}{
		{query: "50%", want: "Sale 50% off"},
		{query: "read_me", want: "read_me"},
		{query: "%", want: "Sale 50% off"},
		{query: `\t`, want: `C:\temp`},
	}
	for _, tc := range cases {
		events, err := store.ListEvents(context.Background(), model.Filter{Query: tc.query})
		if err != nil {
			t.Fatalf("list %q: %v", tc.query, err)
		}
		if got := titles(events); got != tc.want {
			t.Fatalf("query %q: expected %q, got %q", tc.query, tc.want, got)
		}
	}
}

func TestWatchSignalsAfterMutation(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	changes, cancel := store.Watch()
	defer cancel()

	mustInsert(t, store, "Ping", time.Date(2024, time.June, 10, 8, 0, 0, 0, testZone))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatalf("expected change signal after insert")
	}

	cancel()
	if _, ok := <-changes; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := NewStore(db)
	changes, _ := store.Watch()

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-changes; ok {
		t.Fatalf("expected watch channel closed with the store")
	}

	_, err = store.Query(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	_, err = store.Insert(context.Background(), model.Event{Title: "Late", Timestamp: time.Now()})
	var unavailable *model.StoreUnavailableError
	if !errors.As(err, &unavailable) || unavailable.Op != "insert" {
		t.Fatalf("expected StoreUnavailableError for insert, got %v", err)
	}
}

func TestSchemaDeclaresTimeLabelColumn(t *testing.T) {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if !strings.Contains(string(schemaSQL), "time_label TEXT NOT NULL DEFAULT ''") {
		t.Fatalf("expected events.time_label in schema.sql")
	}

	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	raw.SetMaxOpenConns(1)
	if _, err := raw.Exec(string(schemaSQL)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	var exists int
	if err := raw.QueryRow("SELECT 1 FROM pragma_table_info('events') WHERE name = 'time_label'").Scan(&exists); err != nil {
		t.Fatalf("expected time_label column from schema alone: %v", err)
	}
}

func TestOpenAddsTimeLabelColumnToOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		timestamp_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create old table: %v", err)
	}
	_ = raw.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open old db: %v", err)
	}
	store := NewStore(db)
	defer store.Close()

	created, err := store.Insert(context.Background(), model.Event{Title: "Call", Timestamp: time.Date(2024, time.June, 10, 9, 0, 0, 0, testZone), TimeLabel: "09:00"})
	if err != nil {
		t.Fatalf("insert into upgraded db: %v", err)
	}
	reloaded, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.TimeLabel != "09:00" {
		t.Fatalf("expected time label kept after upgrade, got %q", reloaded.TimeLabel)
	}
}

func mustInsert(t *testing.T, store *Store, title string, at time.Time) model.Event {
	t.Helper()
	created, err := store.Insert(context.Background(), model.Event{Title: title, Timestamp: at})
	if err != nil {
		t.Fatalf("insert %s: %v", title, err)
	}
	return created
}

func titles(events []model.Event) string {
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.Title)
	}
	return strings.Join(names, ",")
}

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := NewStore(db)
	return store, func() {
		_ = store.Close()
	}
}

func TestNilLoggerOptionFallsBackToNop(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := NewStore(db, WithLogger(nil))
	defer store.Close()

	if _, err := store.Insert(context.Background(), model.Event{Title: "Quiet", Timestamp: time.Now()}); err != nil {
		t.Fatalf("insert with nil logger: %v", err)
	}
}
