package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/metrics"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/watch"
)

const eventColumns = "id, title, description, timestamp_ms, time_label"

// Store persists events in SQLite and records an audit history of every
// mutation.
type Store struct {
	DB *sql.DB

	hub     *watch.Hub
	metrics *metrics.Manager
	log     logger.Logger
	closed  atomic.Bool
}

type Option func(*Store)

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Store) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = logger.OrNop(l).Named("store")
	}
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, hub: watch.NewHub(), log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns events with timestamps in [start, end) ordered by timestamp.
func (s *Store) Query(ctx context.Context, start, end time.Time) (events []model.Event, err error) {
	defer s.observe("query", time.Now(), &err)
	if err := s.available("query"); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE timestamp_ms >= ? AND timestamp_ms < ? ORDER BY timestamp_ms ASC, id ASC",
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, s.wrap("query", err)
	}
	return s.scanEvents("query", rows)
}

// QueryFrom returns events at or after from, ordered by timestamp and then
// by the display time label.
func (s *Store) QueryFrom(ctx context.Context, from time.Time) (events []model.Event, err error) {
	defer s.observe("query_from", time.Now(), &err)
	if err := s.available("query from"); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE timestamp_ms >= ? ORDER BY timestamp_ms ASC, time_label ASC, id ASC",
		from.UnixMilli())
	if err != nil {
		return nil, s.wrap("query from", err)
	}
	return s.scanEvents("query from", rows)
}

func (s *Store) Insert(ctx context.Context, event model.Event) (created model.Event, err error) {
	defer s.observe("insert", time.Now(), &err)
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}
	if err := s.available("insert"); err != nil {
		return model.Event{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, s.wrap("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	result, err := tx.ExecContext(ctx,
		"INSERT INTO events (title, description, timestamp_ms, time_label, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		strings.TrimSpace(event.Title), event.Description, event.Millis(), strings.TrimSpace(event.TimeLabel), now, now)
	if err != nil {
		return model.Event{}, s.wrap("insert", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Event{}, s.wrap("insert", err)
	}

	created, err = getEvent(ctx, tx, id)
	if err != nil {
		return model.Event{}, s.wrap("insert", err)
	}

	if err := addHistory(ctx, tx, id, "created", formatCreatedDetails(created)); err != nil {
		return model.Event{}, s.wrap("insert", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, s.wrap("insert", err)
	}

	s.log.Info(ctx, "event created", logger.Int64("id", created.ID), logger.String("at", created.Timestamp.Format(time.RFC3339)))
	s.hub.Notify()
	return created, nil
}

// Update replaces the stored record with event. The whole record is
// written; there are no partial updates.
func (s *Store) Update(ctx context.Context, event model.Event) (err error) {
	defer s.observe("update", time.Now(), &err)
	if err := event.Validate(); err != nil {
		return err
	}
	if err := s.available("update"); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("update", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := getEvent(ctx, tx, event.ID)
	if err != nil {
		return s.wrap("update", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE events SET title = ?, description = ?, timestamp_ms = ?, time_label = ?, updated_at = ? WHERE id = ?",
		strings.TrimSpace(event.Title), event.Description, event.Millis(), strings.TrimSpace(event.TimeLabel), time.Now().UnixMilli(), event.ID); err != nil {
		return s.wrap("update", err)
	}

	after, err := getEvent(ctx, tx, event.ID)
	if err != nil {
		return s.wrap("update", err)
	}

	if err := addHistory(ctx, tx, event.ID, "updated", formatEventDiff(before, after)); err != nil {
		return s.wrap("update", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("update", err)
	}

	s.log.Info(ctx, "event updated", logger.Int64("id", event.ID))
	s.hub.Notify()
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) (err error) {
	defer s.observe("delete", time.Now(), &err)
	if err := s.available("delete"); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := getEvent(ctx, tx, id)
	if err != nil {
		return s.wrap("delete", err)
	}

	if err := addHistory(ctx, tx, id, "deleted", formatDeletedDetails(before)); err != nil {
		return s.wrap("delete", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id); err != nil {
		return s.wrap("delete", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("delete", err)
	}

	s.log.Info(ctx, "event deleted", logger.Int64("id", id))
	s.hub.Notify()
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (event model.Event, err error) {
	defer s.observe("get", time.Now(), &err)
	if err := s.available("get"); err != nil {
		return model.Event{}, err
	}

	event, err = getEvent(ctx, s.DB, id)
	if err != nil {
		return model.Event{}, s.wrap("get", err)
	}
	return event, nil
}

// likeEscaper makes search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListEvents returns every event matching filter in timestamp order. The
// query is a case-insensitive substring; % and _ in it are literal.
func (s *Store) ListEvents(ctx context.Context, filter model.Filter) (events []model.Event, err error) {
	defer s.observe("list", time.Now(), &err)
	if err := s.available("list"); err != nil {
		return nil, err
	}

	clauses := []string{}
	args := []any{}
	if query := strings.TrimSpace(filter.Query); query != "" {
		clauses = append(clauses, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(query) + "%"
		args = append(args, pattern, pattern)
	}
	if filter.From != nil {
		clauses = append(clauses, "timestamp_ms >= ?")
		args = append(args, filter.From.UnixMilli())
	}
	if filter.To != nil {
		clauses = append(clauses, "timestamp_ms < ?")
		args = append(args, filter.To.UnixMilli())
	}

	statement := "SELECT " + eventColumns + " FROM events"
	if len(clauses) > 0 {
		statement += " WHERE " + strings.Join(clauses, " AND ")
	}
	statement += " ORDER BY timestamp_ms ASC, id ASC"

	rows, err := s.DB.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	return s.scanEvents("list", rows)
}

func (s *Store) ListHistory(ctx context.Context, eventID int64) (history []model.HistoryEntry, err error) {
	defer s.observe("history", time.Now(), &err)
	if err := s.available("history"); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, event_id, event_type, details, created_at FROM event_history WHERE event_id = ? ORDER BY id DESC",
		eventID)
	if err != nil {
		return nil, s.wrap("history", err)
	}
	defer rows.Close()

	history = make([]model.HistoryEntry, 0)
	for rows.Next() {
		var entry model.HistoryEntry
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.Details, &createdAt); err != nil {
			return nil, s.wrap("history", err)
		}
		entry.CreatedAt = time.UnixMilli(createdAt)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("history", err)
	}
	return history, nil
}

// Watch subscribes to change signals sent after every committed mutation.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch, cancel := s.hub.Subscribe()
	s.metrics.WatcherAdded()

	var done atomic.Bool
	return ch, func() {
		if done.CompareAndSwap(false, true) {
			cancel()
			s.metrics.WatcherRemoved()
		}
	}
}

// Close ends all watches and closes the database. Later calls fail with
// StoreUnavailableError.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.Close()
	return s.DB.Close()
}

func (s *Store) available(op string) error {
	if s.closed.Load() {
		return &model.StoreUnavailableError{Op: op, Err: errors.New("store closed")}
	}
	return nil
}

func (s *Store) wrap(op string, err error) error {
	var notFound *model.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return err
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		s.log.Error(context.Background(), "store unavailable", logger.String("op", op), logger.Error(err))
		return &model.StoreUnavailableError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Store) observe(op string, start time.Time, errp *error) {
	s.metrics.ObserveStoreOp(op, start, *errp)
}

func (s *Store) scanEvents(op string, rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, s.wrap(op, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(op, err)
	}
	return events, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getEvent(ctx context.Context, q queryer, id int64) (model.Event, error) {
	row := q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, &model.NotFoundError{ID: id}
	}
	return event, err
}

func scanEvent(row scanner) (model.Event, error) {
	var event model.Event
	var timestampMS int64
	if err := row.Scan(&event.ID, &event.Title, &event.Description, &timestampMS, &event.TimeLabel); err != nil {
		return model.Event{}, err
	}
	event.Timestamp = time.UnixMilli(timestampMS)
	return event, nil
}

func addHistory(ctx context.Context, tx *sql.Tx, eventID int64, eventType, details string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO event_history (event_id, event_type, details, created_at) VALUES (?, ?, ?, ?)",
		eventID, eventType, details, time.Now().UnixMilli())
	return err
}

func formatCreatedDetails(event model.Event) string {
	return fmt.Sprintf("created: title='%s' at=%s time=%s", event.Title, formatWhen(event.Timestamp), valueOrNone(event.TimeLabel))
}

func formatDeletedDetails(event model.Event) string {
	return fmt.Sprintf("deleted: title='%s' at=%s time=%s", event.Title, formatWhen(event.Timestamp), valueOrNone(event.TimeLabel))
}

func formatEventDiff(before, after model.Event) string {
	changes := []string{}
	if before.Title != after.Title {
		changes = append(changes, formatChange("title", before.Title, after.Title))
	}
	if before.Description != after.Description {
		changes = append(changes, formatChange("description", before.Description, after.Description))
	}
	if !before.Timestamp.Equal(after.Timestamp) {
		changes = append(changes, formatChange("at", formatWhen(before.Timestamp), formatWhen(after.Timestamp)))
	}
	if before.TimeLabel != after.TimeLabel {
		changes = append(changes, formatChange("time", before.TimeLabel, after.TimeLabel))
	}

	if len(changes) == 0 {
		return "updated: no changes"
	}

	return "updated: " + strings.Join(changes, "; ")
}

func formatChange(field, before, after string) string {
	return fmt.Sprintf("%s: '%s' -> '%s'", field, valueOrNone(before), valueOrNone(after))
}

func valueOrNone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "none"
	}
	return trimmed
}

func formatWhen(value time.Time) string {
	if value.IsZero() {
		return "none"
	}
	return value.Format("2006-01-02 15:04")
}
