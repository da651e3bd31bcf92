package model

import (
	"strings"
	"time"
)

// Event is a single-occurrence calendar entry. Timestamp carries both the
// scheduled date and time; TimeLabel is only a display hint.
type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	TimeLabel   string    `json:"time_label,omitempty"`
}

// Validate reports whether the event may be persisted.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "date and time are required"}
	}
	return nil
}

// Millis returns the timestamp as epoch milliseconds, the storage form.
func (e Event) Millis() int64 {
	return e.Timestamp.UnixMilli()
}

// DayKey identifies a calendar day by year and day-of-year.
type DayKey struct {
	Year    int
	YearDay int
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a full listing of events. Zero values match everything.
type Filter struct {
	Query string     `json:"query"`
	From  *time.Time `json:"from"`
	To    *time.Time `json:"to"`
}
