package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Joseda-hg/lazycal/internal/calendar"
	"github.com/Joseda-hg/lazycal/internal/ics"
	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/metrics"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/planner"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("Monday, January 2") },
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}

var (
	indexTemplate = template.Must(template.New("index.tmpl").Funcs(templateFuncs).ParseFS(templateFS, "templates/index.tmpl"))
	eventTemplate = template.Must(template.New("event.tmpl").Funcs(templateFuncs).ParseFS(templateFS, "templates/event.tmpl"))
)

// HistorySource lists the audit trail of an event.
type HistorySource interface {
	ListHistory(ctx context.Context, eventID int64) ([]model.HistoryEntry, error)
}

// Searcher lists events matching a text or range filter.
type Searcher interface {
	ListEvents(ctx context.Context, filter model.Filter) ([]model.Event, error)
}

type Server struct {
	planner *planner.Planner
	history HistorySource
	search  Searcher
	feed    *ics.Service
	metrics *metrics.Manager
	log     logger.Logger
}

type Option func(*Server)

func WithHistory(h HistorySource) Option {
	return func(s *Server) { s.history = h }
}

func WithSearch(search Searcher) Option {
	return func(s *Server) { s.search = search }
}

func WithFeed(feed *ics.Service) Option {
	return func(s *Server) { s.feed = feed }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.log = logger.OrNop(l).Named("web")
	}
}

func NewServer(p *planner.Planner, opts ...Option) *Server {
	s := &Server{planner: p, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.feed == nil {
		s.feed = ics.NewService(p, ics.WithMetrics(s.metrics), ics.WithLogger(s.log))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "/", s.indexHandler)
	s.handle(mux, "/events/", s.eventHandler)
	s.handle(mux, "/api/events", s.apiEventsHandler)
	s.handle(mux, "/api/events/", s.apiEventHandler)
	s.handle(mux, "/api/upcoming", s.apiUpcomingHandler)
	s.handle(mux, "/api/month", s.apiMonthHandler)
	s.handle(mux, "/calendar.ics", s.icsHandler)
	s.handle(mux, "/health", s.healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) handle(mux *http.ServeMux, route string, handler http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(rec, r)
		s.metrics.ObserveHTTP(route, rec.status)
		s.log.Debug(r.Context(), "request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Any("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type eventRow struct {
	Event    model.Event
	Local    time.Time
	Clock    string
	Status   string
	Relative string
}

type dayGroup struct {
	Day    time.Time
	Events []eventRow
}

type gridCell struct {
	Day      int
	Date     string
	Marker   calendar.GridMarker
	Today    bool
	Selected bool
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	now := s.planner.Now()
	cal := s.planner.Calendar()

	selected, err := s.dayFromRequest(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	year, month := selected.Year(), selected.Month()
	if y, m, ok := monthFromRequest(r); ok {
		year, month = y, m
	}

	view, err := s.planner.Month(ctx, year, month, now)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	dayEvents, err := s.planner.DayEvents(ctx, selected)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	upcoming, err := s.planner.UpcomingByDay(ctx, now)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	cells := make([]gridCell, 0, len(view.Cells))
	for _, cell := range view.Cells {
		if cell.Day == 0 {
			cells = append(cells, gridCell{})
			continue
		}
		cells = append(cells, gridCell{
			Day:      cell.Day,
			Date:     cell.Date.Format(planner.DateLayout),
			Marker:   view.Markers[cell.Day],
			Today:    cal.SameDay(cell.Date, now),
			Selected: cal.SameDay(cell.Date, selected),
		})
	}

	groups := make([]dayGroup, 0, len(upcoming))
	for _, bucket := range upcoming {
		groups = append(groups, dayGroup{Day: bucket.Day, Events: s.rows(bucket.Events, now)})
	}

	prevYear, prevMonth := calendar.AddMonths(year, month, -1)
	nextYear, nextMonth := calendar.AddMonths(year, month, 1)

	data := struct {
		Title     string
		Weekdays  []string
		Weeks     [][]gridCell
		Selected  time.Time
		DayEvents []eventRow
		Upcoming  []dayGroup
		PrevQuery string
		NextQuery string
	}{
		Title:     fmt.Sprintf("%s %d", month, year),
		Weekdays:  calendar.WeekdayLabels(s.planner.WeekStart()),
		Weeks:     weeks(cells),
		Selected:  selected,
		DayEvents: s.rows(dayEvents, now),
		Upcoming:  groups,
		PrevQuery: fmt.Sprintf("year=%d&month=%d", prevYear, int(prevMonth)),
		NextQuery: fmt.Sprintf("year=%d&month=%d", nextYear, int(nextMonth)),
	}

	renderTemplate(w, indexTemplate, data)
}

// weeks splits grid cells into rows of seven, padding the last row.
func weeks(cells []gridCell) [][]gridCell {
	for len(cells)%7 != 0 {
		cells = append(cells, gridCell{})
	}
	rows := make([][]gridCell, 0, len(cells)/7)
	for i := 0; i < len(cells); i += 7 {
		rows = append(rows, cells[i:i+7])
	}
	return rows
}

func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Path, "/events/")
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	event, err := s.planner.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	history, err := s.loadHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	now := s.planner.Now()
	data := struct {
		Row     eventRow
		History []model.HistoryEntry
	}{Row: s.row(event, now), History: history}

	renderTemplate(w, eventTemplate, data)
}

func (s *Server) apiEventsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if query := strings.TrimSpace(r.URL.Query().Get("q")); query != "" && s.search != nil {
			events, err := s.search.ListEvents(r.Context(), model.Filter{Query: query})
			if err != nil {
				writeJSONError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, events)
			return
		}

		day, err := s.dayFromRequest(r, s.planner.Now())
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		events, err := s.planner.DayEvents(r.Context(), day)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case http.MethodPost:
		event, err := s.eventFromBody(r)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		created, err := s.planner.Create(r.Context(), event)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) apiEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Path, "/api/events/")
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		event, err := s.planner.Get(r.Context(), id)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		history, err := s.loadHistory(r.Context(), id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		payload := struct {
			Event   model.Event          `json:"event"`
			Status  calendar.Status      `json:"status"`
			History []model.HistoryEntry `json:"history"`
		}{Event: event, Status: s.planner.Status(event), History: history}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		event, err := s.eventFromBody(r)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		event.ID = id
		if err := s.planner.Update(r.Context(), event); err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, event)
	case http.MethodDelete:
		if err := s.planner.Delete(r.Context(), id); err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeJSONError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) apiUpcomingHandler(w http.ResponseWriter, r *http.Request) {
	now := s.planner.Now()
	buckets, err := s.planner.UpcomingByDay(r.Context(), now)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	type day struct {
		Date   string        `json:"date"`
		Label  string        `json:"label"`
		Events []model.Event `json:"events"`
	}
	days := make([]day, 0, len(buckets))
	for _, bucket := range buckets {
		days = append(days, day{
			Date:   bucket.Day.Format(planner.DateLayout),
			Label:  bucket.Day.Format("Monday, January 2"),
			Events: bucket.Events,
		})
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) apiMonthHandler(w http.ResponseWriter, r *http.Request) {
	now := s.planner.Now()
	year, month := now.Year(), now.Month()
	if y, m, ok := monthFromRequest(r); ok {
		year, month = y, m
	} else if r.URL.Query().Get("year") != "" || r.URL.Query().Get("month") != "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("year and month must be numbers with month in 1..12"))
		return
	}

	view, err := s.planner.Month(r.Context(), year, month, now)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) icsHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := s.feed.Export(r.Context(), &buf); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lazycal.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) loadHistory(ctx context.Context, id int64) ([]model.HistoryEntry, error) {
	if s.history == nil {
		return []model.HistoryEntry{}, nil
	}
	return s.history.ListHistory(ctx, id)
}

func (s *Server) rows(events []model.Event, now time.Time) []eventRow {
	rows := make([]eventRow, 0, len(events))
	for _, event := range events {
		rows = append(rows, s.row(event, now))
	}
	return rows
}

func (s *Server) row(event model.Event, now time.Time) eventRow {
	loc := s.planner.Calendar().Location()
	return eventRow{
		Event:    event,
		Local:    event.Timestamp.In(loc),
		Clock:    planner.ClockText(event, loc),
		Status:   s.planner.Calendar().ClassifyEvent(event, now).String(),
		Relative: humanize.RelTime(event.Timestamp, now, "ago", "from now"),
	}
}

func (s *Server) eventFromBody(r *http.Request) (model.Event, error) {
	var input planner.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return model.Event{}, &model.ValidationError{Field: "body", Reason: err.Error()}
	}
	return s.planner.BuildEvent(input)
}

func (s *Server) dayFromRequest(r *http.Request, fallback time.Time) (time.Time, error) {
	value := strings.TrimSpace(r.URL.Query().Get("date"))
	if value == "" {
		return fallback, nil
	}
	day, err := time.ParseInLocation(planner.DateLayout, value, s.planner.Calendar().Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", value)
	}
	return day, nil
}

func monthFromRequest(r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		return 0, 0, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

func statusFor(err error) int {
	var validation *model.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseID(path, prefix string) (int64, error) {
	if !strings.HasPrefix(path, prefix) {
		return 0, fmt.Errorf("invalid path")
	}
	value := strings.TrimPrefix(path, prefix)
	value = strings.Trim(value, "/")
	if value == "" {
		return 0, fmt.Errorf("missing id")
	}
	return strconv.ParseInt(value, 10, 64)
}

func renderTemplate(w http.ResponseWriter, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}
