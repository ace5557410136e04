// Package llm turns free-text user input into a structured operation draft.
// It provides an [Interpreter] interface, a [GeminiClient] implementation
// against the Gemini generateContent REST API, and a deterministic [Mock] for
// offline use. Drafts coming out of this package are untrusted: the resolver
// validates them before anything touches the schedule.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Draft actions. The model replies with one of these strings; anything else
// is rejected during parsing.
const (
	ActionCreate  = "CREATE_EVENT"
	ActionUpdate  = "UPDATE_EVENT"
	ActionDelete  = "DELETE_EVENT"
	ActionList    = "LIST_EVENTS"
	ActionSearch  = "SEARCH_EVENTS"
	ActionStats   = "STATS"
	ActionGeneral = "GENERAL_RESPONSE"
)

// EventData carries the event fields the model extracted from the utterance.
// Timestamps are RFC 3339 strings; empty means the model could not determine
// the value.
type EventData struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees"`
	Priority    string   `json:"priority"`

	// Query is the search or target phrase for SEARCH_EVENTS, DELETE_EVENT,
	// and UPDATE_EVENT.
	Query string `json:"query"`

	// Window narrows LIST_EVENTS: "today", "upcoming", or empty for all.
	Window string `json:"window"`
}

// OperationDraft is the model's structured answer. MissingData names the
// event field the model still needs ("Title", "StartTime", "EndTime", "All");
// when set, ResponseText carries the follow-up question to show the user.
type OperationDraft struct {
	Action       string     `json:"action"`
	EventData    *EventData `json:"event_data"`
	ResponseText string     `json:"response_text"`
	MissingData  string     `json:"missing_data"`
}

// Interpreter maps one free-text utterance to an operation draft. now anchors
// relative expressions like "tomorrow".
type Interpreter interface {
	Interpret(ctx context.Context, utterance string, now time.Time) (*OperationDraft, error)
	Ping(ctx context.Context) error
}

var validActions = map[string]bool{
	ActionCreate:  true,
	ActionUpdate:  true,
	ActionDelete:  true,
	ActionList:    true,
	ActionSearch:  true,
	ActionStats:   true,
	ActionGeneral: true,
}

// ParseDraft decodes the model's reply into an OperationDraft. The reply may
// be wrapped in a ```json fence. Decoding is strict: unknown JSON fields and
// unknown actions are errors, not guesses.
func ParseDraft(content string) (*OperationDraft, error) {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```json"); ok {
		content = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(content, "```"); ok {
		content = strings.TrimSpace(rest)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()

	var draft OperationDraft
	if err := dec.Decode(&draft); err != nil {
		return nil, fmt.Errorf("parse interpreter reply: %w", err)
	}

	draft.Action = strings.ToUpper(strings.TrimSpace(draft.Action))
	if !validActions[draft.Action] {
		return nil, fmt.Errorf("interpreter replied with unknown action %q", draft.Action)
	}
	return &draft, nil
}
