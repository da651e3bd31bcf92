// Package ics moves events in and out of iCalendar files.
//
// Export writes one VEVENT per stored event with a UID derived from the
// event ID, so re-exporting the same database yields stable UIDs. Import
// reads single-occurrence VEVENTs; recurring entries (RRULE) are skipped
// because events are never expanded.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/metrics"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/planner"
)

const (
	productID = "-//lazycal//lazycal//EN"
	uidDomain = "lazycal"

	// timeLabelProperty carries the display time label through a round trip.
	timeLabelProperty = "X-LAZYCAL-TIME"
)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Joseda-hg/lazycal/events"))

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported  int
	Recurring int
	Duplicate int
	Invalid   int
}

type Service struct {
	planner *planner.Planner
	metrics *metrics.Manager
	log     logger.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = logger.OrNop(l).Named("ics")
	}
}

func NewService(p *planner.Planner, opts ...Option) *Service {
	s := &Service{planner: p, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export writes every stored event to w as an iCalendar document.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	events, err := s.planner.All(ctx)
	if err != nil {
		return 0, err
	}

	if err := Encode(w, events, s.planner.Now()); err != nil {
		return 0, fmt.Errorf("export calendar: %w", err)
	}

	s.metrics.ObserveICS("export", len(events))
	s.log.Info(ctx, "calendar exported", logger.Int("events", len(events)))
	return len(events), nil
}

// Import reads r and creates an event for every single-occurrence VEVENT
// that is not already stored with the same title and start.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	decoded, err := Decode(r, s.planner.Calendar().Location())
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{Recurring: decoded.Recurring, Invalid: decoded.Invalid}
	for _, event := range decoded.Events {
		exists, err := s.exists(ctx, event)
		if err != nil {
			return result, err
		}
		if exists {
			result.Duplicate++
			continue
		}
		if _, err := s.planner.Create(ctx, event); err != nil {
			var validation *model.ValidationError
			if errors.As(err, &validation) {
				result.Invalid++
				continue
			}
			return result, err
		}
		result.Imported++
	}

	s.metrics.ObserveICS("import", result.Imported)
	s.log.Info(ctx, "calendar imported",
		logger.Int("imported", result.Imported),
		logger.Int("recurring_skipped", result.Recurring),
		logger.Int("duplicates", result.Duplicate),
		logger.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (s *Service) exists(ctx context.Context, event model.Event) (bool, error) {
	same, err := s.planner.DayEvents(ctx, event.Timestamp)
	if err != nil {
		return false, err
	}
	for _, other := range same {
		if other.Timestamp.Equal(event.Timestamp) && other.Title == event.Title {
			return true, nil
		}
	}
	return false, nil
}

// UID is the stable iCalendar UID of a stored event.
func UID(id int64) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(id, 10))).String() + "@" + uidDomain
}

// Encode serializes events as a VCALENDAR. Events are instants, so DTEND
// equals DTSTART.
func Encode(w io.Writer, events []model.Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, event := range events {
		ve := cal.AddEvent(UID(event.ID))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(event.Timestamp)
		ve.SetEndAt(event.Timestamp)
		ve.SetSummary(event.Title)
		if event.Description != "" {
			ve.SetDescription(event.Description)
		}
		if event.TimeLabel != "" {
			ve.SetProperty(ical.ComponentProperty(timeLabelProperty), event.TimeLabel)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// Decoded holds the importable events of a document and counts of what
// was left out.
type Decoded struct {
	Events    []model.Event
	Recurring int
	Invalid   int
}

// Decode parses an iCalendar document. Floating and all-day times are
// read in loc.
func Decode(r io.Reader, loc *time.Location) (Decoded, error) {
	if loc == nil {
		loc = time.Local
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return Decoded{}, fmt.Errorf("read calendar: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Decoded{}, errors.New("empty calendar")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return Decoded{}, fmt.Errorf("parse calendar: %w", err)
	}

	var out Decoded
	for _, ve := range cal.Events() {
		if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
			out.Recurring++
			continue
		}
		event, ok := decodeEvent(ve, loc)
		if !ok {
			out.Invalid++
			continue
		}
		out.Events = append(out.Events, event)
	}
	return out, nil
}

func decodeEvent(ve *ical.VEvent, loc *time.Location) (model.Event, bool) {
	var event model.Event
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		event.Title = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		event.Description = p.Value
	}
	if event.Title == "" {
		return model.Event{}, false
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return model.Event{}, false
	}

	if isAllDay(dtStart) {
		day, err := time.ParseInLocation("20060102", strings.TrimSpace(dtStart.Value), loc)
		if err != nil {
			return model.Event{}, false
		}
		event.Timestamp = day
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return model.Event{}, false
		}
		if !hasZone(dtStart) {
			start = time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute(), start.Second(), 0, loc)
		}
		event.Timestamp = start
		event.TimeLabel = start.In(loc).Format(planner.TimeLayout)
	}

	// A label from another zone would name the wrong clock time.
	if p := ve.GetProperty(ical.ComponentProperty(timeLabelProperty)); p != nil {
		if label := strings.TrimSpace(p.Value); label == event.Timestamp.In(loc).Format(planner.TimeLayout) {
			event.TimeLabel = label
		}
	}
	return event, true
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// hasZone reports whether a DATE-TIME is UTC or carries a TZID; anything
// else is floating time.
func hasZone(p *ical.IANAProperty) bool {
	if strings.HasSuffix(p.Value, "Z") {
		return true
	}
	tz, ok := p.ICalParameters["TZID"]
	return ok && len(tz) > 0
}
