// Package resolve maps user input to schedule operations. Structured commands
// are validated deterministically; free text goes through an [llm.Interpreter]
// and the returned draft is validated before it is trusted. Ambiguity is
// surfaced to the caller, never guessed away.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedassist/internal/llm"
	"schedassist/internal/model"
)

var (
	// ErrInvalidArgs is returned when a structured command is malformed:
	// missing required fields, unparseable timestamps, unknown names.
	ErrInvalidArgs = errors.New("invalid command arguments")

	// ErrNoMatch is returned when a target phrase matches no event.
	ErrNoMatch = errors.New("no matching event")
)

// AmbiguousError is returned when a target phrase matches more than one
// event. The caller shows the candidates and asks the user to pick one.
type AmbiguousError struct {
	Query   string
	Matches []model.Event
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches %d events, specify which one", e.Query, len(e.Matches))
}

// EventSource is the read access the resolver needs to turn a target phrase
// into an event id.
type EventSource interface {
	Query(f model.Filter, now time.Time) []model.Event
}

// Command is a structured instruction: a name plus a string field map.
type Command struct {
	Name string
	Args map[string]string
}

// Resolver turns commands and utterances into validated operations.
type Resolver struct {
	events EventSource
	interp llm.Interpreter
}

// New returns a Resolver reading candidate events from events and delegating
// free text to interp.
func New(events EventSource, interp llm.Interpreter) *Resolver {
	return &Resolver{events: events, interp: interp}
}

// ResolveCommand validates a structured command and maps it to an operation.
func (r *Resolver) ResolveCommand(cmd Command, now time.Time) (model.Operation, error) {
	switch strings.ToLower(cmd.Name) {
	case "create", "add":
		return r.resolveCreate(cmd.Args)
	case "update":
		return r.resolveUpdate(cmd.Args)
	case "delete", "remove":
		id := cmd.Args["id"]
		if id == "" {
			return model.Operation{}, fmt.Errorf("%w: delete requires id", ErrInvalidArgs)
		}
		return model.Operation{Kind: model.OpDelete, TargetID: id}, nil
	case "list":
		f, err := r.resolveFilter(cmd.Args)
		if err != nil {
			return model.Operation{}, err
		}
		return model.Operation{Kind: model.OpQuery, Filter: f}, nil
	case "stats":
		return model.Operation{Kind: model.OpStats}, nil
	case "backup":
		return model.Operation{Kind: model.OpBackup}, nil
	case "restore":
		id := cmd.Args["id"]
		if id == "" {
			return model.Operation{}, fmt.Errorf("%w: restore requires a snapshot id", ErrInvalidArgs)
		}
		return model.Operation{Kind: model.OpRestore, SnapshotID: id}, nil
	default:
		return model.Operation{}, fmt.Errorf("%w: unknown command %q", ErrInvalidArgs, cmd.Name)
	}
}

// ResolveText interprets a free-text utterance. A draft asking a follow-up
// question (missing data, general chatter) maps to an OpUnknown operation
// whose Reply carries the message to show.
func (r *Resolver) ResolveText(ctx context.Context, utterance string, now time.Time) (model.Operation, error) {
	draft, err := r.interp.Interpret(ctx, utterance, now)
	if err != nil {
		return model.Operation{}, fmt.Errorf("interpreting input: %w", err)
	}

	if draft.MissingData != "" || draft.Action == llm.ActionGeneral {
		return model.Operation{Kind: model.OpUnknown, Reply: draft.ResponseText}, nil
	}

	switch draft.Action {
	case llm.ActionCreate:
		return r.draftCreate(draft)
	case llm.ActionUpdate:
		return r.draftUpdate(draft, now)
	case llm.ActionDelete:
		id, err := r.resolveTarget(draftQuery(draft), now)
		if err != nil {
			return model.Operation{}, err
		}
		return model.Operation{Kind: model.OpDelete, TargetID: id, Reply: draft.ResponseText}, nil
	case llm.ActionList:
		f := &model.Filter{}
		if draft.EventData != nil {
			switch draft.EventData.Window {
			case "today":
				f.Today = true
			case "upcoming":
				f.Upcoming = true
			}
			f.Search = draft.EventData.Query
		}
		return model.Operation{Kind: model.OpQuery, Filter: f, Reply: draft.ResponseText}, nil
	case llm.ActionSearch:
		q := draftQuery(draft)
		if q == "" {
			return model.Operation{}, fmt.Errorf("%w: search needs a phrase", ErrInvalidArgs)
		}
		return model.Operation{Kind: model.OpQuery, Filter: &model.Filter{Search: q}, Reply: draft.ResponseText}, nil
	case llm.ActionStats:
		return model.Operation{Kind: model.OpStats, Reply: draft.ResponseText}, nil
	default:
		return model.Operation{}, fmt.Errorf("interpreter replied with unusable action %q", draft.Action)
	}
}

// resolveCreate builds a create operation from structured args.
func (r *Resolver) resolveCreate(args map[string]string) (model.Operation, error) {
	title := strings.TrimSpace(args["title"])
	if title == "" {
		return model.Operation{}, fmt.Errorf("%w: create requires a title", ErrInvalidArgs)
	}
	start, err := parseInstant(args["start"])
	if err != nil {
		return model.Operation{}, fmt.Errorf("%w: start: %s", ErrInvalidArgs, err)
	}

	var end time.Time
	switch {
	case args["end"] != "":
		if end, err = parseInstant(args["end"]); err != nil {
			return model.Operation{}, fmt.Errorf("%w: end: %s", ErrInvalidArgs, err)
		}
	case args["duration"] != "":
		d, err := time.ParseDuration(args["duration"])
		if err != nil || d <= 0 {
			return model.Operation{}, fmt.Errorf("%w: bad duration %q", ErrInvalidArgs, args["duration"])
		}
		end = start.Add(d)
	default:
		return model.Operation{}, fmt.Errorf("%w: create requires end or duration", ErrInvalidArgs)
	}

	draft := &model.EventDraft{
		Title:       title,
		Description: args["description"],
		Location:    args["location"],
		Tags:        splitList(args["tags"]),
		Attendees:   splitList(args["attendees"]),
		Start:       start,
		End:         end,
	}
	if p := args["priority"]; p != "" {
		prio, ok := model.ParsePriority(p)
		if !ok {
			return model.Operation{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgs, p)
		}
		draft.Priority = prio
	}
	if err := draft.Validate(); err != nil {
		return model.Operation{}, fmt.Errorf("%w: %s", ErrInvalidArgs, err)
	}
	return model.Operation{Kind: model.OpCreate, Draft: draft}, nil
}

// resolveUpdate builds a patch operation from structured args.
func (r *Resolver) resolveUpdate(args map[string]string) (model.Operation, error) {
	id := args["id"]
	if id == "" {
		return model.Operation{}, fmt.Errorf("%w: update requires id", ErrInvalidArgs)
	}

	patch := &model.EventPatch{}
	if v, ok := args["title"]; ok {
		patch.Title = &v
	}
	if v, ok := args["description"]; ok {
		patch.Description = &v
	}
	if v, ok := args["location"]; ok {
		patch.Location = &v
	}
	if v, ok := args["tags"]; ok {
		patch.Tags = splitList(v)
	}
	if v, ok := args["attendees"]; ok {
		patch.Attendees = splitList(v)
	}
	if v, ok := args["priority"]; ok {
		prio, okP := model.ParsePriority(v)
		if !okP {
			return model.Operation{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgs, v)
		}
		patch.Priority = &prio
	}
	if v, ok := args["start"]; ok {
		t, err := parseInstant(v)
		if err != nil {
			return model.Operation{}, fmt.Errorf("%w: start: %s", ErrInvalidArgs, err)
		}
		patch.Start = &t
	}
	if v, ok := args["end"]; ok {
		t, err := parseInstant(v)
		if err != nil {
			return model.Operation{}, fmt.Errorf("%w: end: %s", ErrInvalidArgs, err)
		}
		patch.End = &t
	}
	if patch.IsZero() {
		return model.Operation{}, fmt.Errorf("%w: update changes nothing", ErrInvalidArgs)
	}
	return model.Operation{Kind: model.OpUpdate, TargetID: id, Patch: patch}, nil
}

func (r *Resolver) resolveFilter(args map[string]string) (*model.Filter, error) {
	f := &model.Filter{
		Search:   args["search"],
		Tag:      args["tag"],
		Upcoming: args["upcoming"] == "true",
		Today:    args["today"] == "true",
	}
	if v := args["from"]; v != "" {
		t, err := parseInstant(v)
		if err != nil {
			return nil, fmt.Errorf("%w: from: %s", ErrInvalidArgs, err)
		}
		f.From = &t
	}
	if v := args["to"]; v != "" {
		t, err := parseInstant(v)
		if err != nil {
			return nil, fmt.Errorf("%w: to: %s", ErrInvalidArgs, err)
		}
		f.To = &t
	}
	return f, nil
}

// draftCreate validates an interpreter create draft into an operation. The
// interpreter already asked its follow-up question if fields were missing, so
// holes here mean the model violated the contract.
func (r *Resolver) draftCreate(d *llm.OperationDraft) (model.Operation, error) {
	if d.EventData == nil || d.EventData.Title == "" {
		return model.Operation{}, fmt.Errorf("interpreter create draft has no title")
	}
	start, err := time.Parse(time.RFC3339, d.EventData.StartTime)
	if err != nil {
		return model.Operation{}, fmt.Errorf("interpreter draft start %q: %w", d.EventData.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, d.EventData.EndTime)
	if err != nil {
		return model.Operation{}, fmt.Errorf("interpreter draft end %q: %w", d.EventData.EndTime, err)
	}

	draft := &model.EventDraft{
		Title:       d.EventData.Title,
		Description: d.EventData.Description,
		Location:    d.EventData.Location,
		Attendees:   d.EventData.Attendees,
		Start:       start,
		End:         end,
	}
	if p := d.EventData.Priority; p != "" {
		if prio, ok := model.ParsePriority(p); ok {
			draft.Priority = prio
		}
	}
	if err := draft.Validate(); err != nil {
		return model.Operation{}, fmt.Errorf("interpreter create draft: %w", err)
	}
	return model.Operation{Kind: model.OpCreate, Draft: draft, Reply: d.ResponseText}, nil
}

// draftUpdate resolves the target phrase, then patches the fields the model
// extracted.
func (r *Resolver) draftUpdate(d *llm.OperationDraft, now time.Time) (model.Operation, error) {
	id, err := r.resolveTarget(draftQuery(d), now)
	if err != nil {
		return model.Operation{}, err
	}

	patch := &model.EventPatch{}
	ed := d.EventData
	if ed.Title != "" {
		patch.Title = &ed.Title
	}
	if ed.Description != "" {
		patch.Description = &ed.Description
	}
	if ed.Location != "" {
		patch.Location = &ed.Location
	}
	if ed.StartTime != "" {
		t, err := time.Parse(time.RFC3339, ed.StartTime)
		if err != nil {
			return model.Operation{}, fmt.Errorf("interpreter draft start %q: %w", ed.StartTime, err)
		}
		patch.Start = &t
	}
	if ed.EndTime != "" {
		t, err := time.Parse(time.RFC3339, ed.EndTime)
		if err != nil {
			return model.Operation{}, fmt.Errorf("interpreter draft end %q: %w", ed.EndTime, err)
		}
		patch.End = &t
	}
	if ed.Priority != "" {
		if prio, ok := model.ParsePriority(ed.Priority); ok {
			patch.Priority = &prio
		}
	}
	if patch.IsZero() {
		return model.Operation{}, fmt.Errorf("interpreter update draft changes nothing")
	}
	return model.Operation{Kind: model.OpUpdate, TargetID: id, Patch: patch, Reply: d.ResponseText}, nil
}

// resolveTarget maps a phrase to exactly one event id.
func (r *Resolver) resolveTarget(query string, now time.Time) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: no target phrase", ErrInvalidArgs)
	}
	matches := r.events.Query(model.Filter{Search: query}, now)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNoMatch, query)
	case 1:
		return matches[0].ID, nil
	default:
		return "", &AmbiguousError{Query: query, Matches: matches}
	}
}

func draftQuery(d *llm.OperationDraft) string {
	if d.EventData == nil {
		return ""
	}
	if d.EventData.Query != "" {
		return d.EventData.Query
	}
	// Fall back to the title for models that put the target there.
	return d.EventData.Title
}

// parseInstant accepts RFC 3339 and two local-time conveniences:
// "2006-01-02 15:04" and a bare date (midnight).
func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
