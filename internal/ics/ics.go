// Package ics converts the event collection to and from interchange formats:
// iCalendar (.ics) and plain JSON. Export never includes tombstones; import
// validates every event before anything is returned.
package ics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"schedassist/internal/model"
)

const productID = "-//schedassist//EN"

// Export serialises the events as an iCalendar document.
func Export(events []model.Event) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for i := range events {
		ev := &events[i]
		if ev.Deleted {
			continue
		}

		ve := cal.AddEvent(ev.ID)
		ve.SetSummary(ev.Title)
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetDtStampTime(ev.UpdatedAt.UTC())
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt.UTC())
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt.UTC())
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if len(ev.Tags) > 0 {
			ve.SetProperty(ical.ComponentPropertyCategories, strings.Join(ev.Tags, ","))
		}
		for _, a := range ev.Attendees {
			ve.AddAttendee(a)
		}
	}

	return []byte(cal.Serialize()), nil
}

// Import parses an iCalendar document into events. VEVENTs keep their UID as
// the event id when one is present, so a round trip through Export preserves
// identity; a missing UID gets a fresh one. Invalid entries fail the whole
// import rather than silently shrinking it.
func Import(body []byte, now time.Time) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing ics: %w", err)
	}

	var events []model.Event
	for _, ve := range cal.Events() {
		ev, err := fromVEvent(ve, now)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func fromVEvent(ve *ical.VEvent, now time.Time) (model.Event, error) {
	var ev model.Event

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		ev.ID = p.Value
	} else {
		ev.ID = uuid.NewString()
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil && p.Value != "" {
		for _, tag := range strings.Split(p.Value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				ev.Tags = append(ev.Tags, tag)
			}
		}
	}
	for _, p := range ve.Attendees() {
		ev.Attendees = append(ev.Attendees, strings.TrimPrefix(p.Email(), "mailto:"))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Start = start.UTC()
	ev.End = end.UTC()
	ev.CreatedAt = now.UTC()
	ev.UpdatedAt = now.UTC()

	if err := ev.Validate(); err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return ev, nil
}

// jsonDoc is the JSON interchange layout, matching the on-disk schedule file.
type jsonDoc struct {
	Version int           `json:"version"`
	Events  []model.Event `json:"events"`
}

// ExportJSON serialises the events as an indented JSON document.
func ExportJSON(events []model.Event) ([]byte, error) {
	live := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Deleted {
			live = append(live, ev)
		}
	}
	out, err := json.MarshalIndent(jsonDoc{Version: 1, Events: live}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return out, nil
}

// ImportJSON parses a JSON interchange document. Both the enveloped form and
// a bare event array are accepted.
func ImportJSON(body []byte) ([]model.Event, error) {
	var doc jsonDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		var bare []model.Event
		if err2 := json.Unmarshal(body, &bare); err2 != nil {
			return nil, fmt.Errorf("parsing json import: %w", err)
		}
		doc.Events = bare
	}
	for i := range doc.Events {
		if err := doc.Events[i].Validate(); err != nil {
			return nil, fmt.Errorf("event %s: %w", doc.Events[i].ID, err)
		}
	}
	return doc.Events, nil
}
