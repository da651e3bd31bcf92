package planner

import (
	"strings"
	"time"

	"github.com/Joseda-hg/lazycal/internal/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Input is the raw text of the add/edit form.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// InputFor fills a form from an existing event. Date and time both come
// from the timestamp in the planner's zone so that saving the form
// unchanged keeps the same instant.
func (p *Planner) InputFor(event model.Event) Input {
	local := event.Timestamp.In(p.cal.Location())
	return Input{
		Title:       event.Title,
		Description: event.Description,
		Date:        local.Format(DateLayout),
		Time:        local.Format(TimeLayout),
	}
}

// ClockText is the time shown for an event in loc. The stored label wins
// only while it still names the timestamp's local clock time.
func ClockText(event model.Event, loc *time.Location) string {
	local := event.Timestamp.In(loc).Format(TimeLayout)
	if label := strings.TrimSpace(event.TimeLabel); label != "" {
		if parsed, err := time.Parse(TimeLayout, label); err == nil && parsed.Format(TimeLayout) == local {
			return label
		}
	}
	return local
}

// BuildEvent parses form input into an event in the planner's zone. Title
// and time are required; a blank date means the current day. The time text
// becomes the event's display label.
func (p *Planner) BuildEvent(input Input) (model.Event, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Event{}, &model.ValidationError{Field: "title", Reason: "title is required"}
	}

	clock := strings.TrimSpace(input.Time)
	if clock == "" {
		return model.Event{}, &model.ValidationError{Field: "time", Reason: "time is required"}
	}
	parsedTime, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return model.Event{}, &model.ValidationError{Field: "time", Reason: "use HH:MM"}
	}

	day := p.cal.StartOfDay(p.Now())
	if date := strings.TrimSpace(input.Date); date != "" {
		parsed, err := time.ParseInLocation(DateLayout, date, p.cal.Location())
		if err != nil {
			return model.Event{}, &model.ValidationError{Field: "date", Reason: "use YYYY-MM-DD"}
		}
		day = parsed
	}

	ts := time.Date(day.Year(), day.Month(), day.Day(), parsedTime.Hour(), parsedTime.Minute(), 0, 0, p.cal.Location())
	return model.Event{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Timestamp:   ts,
		TimeLabel:   parsedTime.Format(TimeLayout),
	}, nil
}
