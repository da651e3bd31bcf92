package tui

import (
	"strings"

	"github.com/Joseda-hg/lazycal/internal/planner"
)

type formField struct {
	Label string
	Value string
}

const (
	fieldTitle = iota
	fieldDescription
	fieldDate
	fieldTime
)

func buildFormFields(input planner.Input) []formField {
	return []formField{
		{Label: "Title", Value: input.Title},
		{Label: "Description", Value: input.Description},
		{Label: "Date (YYYY-MM-DD)", Value: input.Date},
		{Label: "Time (HH:MM)", Value: input.Time},
	}
}

func parseFormFields(fields []formField) planner.Input {
	return planner.Input{
		Title:       strings.TrimSpace(fields[fieldTitle].Value),
		Description: strings.TrimSpace(fields[fieldDescription].Value),
		Date:        strings.TrimSpace(fields[fieldDate].Value),
		Time:        strings.TrimSpace(fields[fieldTime].Value),
	}
}
