package llm

import (
	"context"
	"strings"
	"time"
)

// Mock is a deterministic offline interpreter. It covers the common phrasings
// with keyword matching so the tool stays usable without an API key, and so
// tests get reproducible drafts. It never calls the network.
type Mock struct{}

// NewMock returns the offline interpreter.
func NewMock() *Mock { return &Mock{} }

// Ping always succeeds.
func (m *Mock) Ping(_ context.Context) error { return nil }

// Interpret maps the utterance to a draft by keyword. Unrecognised input
// yields a GENERAL_RESPONSE draft, never an error.
func (m *Mock) Interpret(_ context.Context, utterance string, now time.Time) (*OperationDraft, error) {
	// Keyword matching works on the lowered form; quoted phrases are taken
	// from the raw form so titles keep the user's casing.
	raw := strings.TrimSpace(utterance)
	input := strings.ToLower(raw)

	switch {
	case containsAny(input, "create", "add", "schedule a", "book", "new appointment"):
		return m.createDraft(input, raw, now), nil

	case containsAny(input, "delete", "cancel", "remove"):
		return &OperationDraft{
			Action:       ActionDelete,
			EventData:    &EventData{Query: phraseAfter(input, "delete", "cancel", "remove")},
			ResponseText: "Deleting the matching appointment.",
		}, nil

	case containsAny(input, "find", "search", "look for"):
		return &OperationDraft{
			Action:       ActionSearch,
			EventData:    &EventData{Query: phraseAfter(input, "find", "search for", "search", "look for")},
			ResponseText: "Searching your schedule.",
		}, nil

	case containsAny(input, "stats", "statistics", "summary", "how busy"):
		return &OperationDraft{
			Action:       ActionStats,
			ResponseText: "Here is your schedule summary.",
		}, nil

	case containsAny(input, "today"):
		return &OperationDraft{
			Action:       ActionList,
			EventData:    &EventData{Window: "today"},
			ResponseText: "Here is today's schedule.",
		}, nil

	case containsAny(input, "upcoming", "next", "coming up"):
		return &OperationDraft{
			Action:       ActionList,
			EventData:    &EventData{Window: "upcoming"},
			ResponseText: "Here are your upcoming appointments.",
		}, nil

	case containsAny(input, "list", "show", "schedule", "appointments", "agenda"):
		return &OperationDraft{
			Action:       ActionList,
			ResponseText: "Here is your schedule.",
		}, nil

	default:
		return &OperationDraft{
			Action:       ActionGeneral,
			ResponseText: "Sorry, I could not understand that request.",
		}, nil
	}
}

// createDraft builds a CREATE_EVENT draft. The title is the quoted phrase if
// one exists; the slot is the next full hour, or tomorrow 09:00 when the
// input says "tomorrow".
func (m *Mock) createDraft(input, raw string, now time.Time) *OperationDraft {
	title := quoted(raw)
	if title == "" {
		return &OperationDraft{
			Action:       ActionCreate,
			EventData:    &EventData{},
			ResponseText: "What should the appointment be called? Put the title in quotes.",
			MissingData:  "Title",
		}
	}

	var start time.Time
	if strings.Contains(input, "tomorrow") {
		y, mo, d := now.AddDate(0, 0, 1).Date()
		start = time.Date(y, mo, d, 9, 0, 0, 0, now.Location())
	} else {
		start = now.Truncate(time.Hour).Add(time.Hour)
	}
	end := start.Add(time.Hour)

	return &OperationDraft{
		Action: ActionCreate,
		EventData: &EventData{
			Title:     title,
			StartTime: start.Format(time.RFC3339),
			EndTime:   end.Format(time.RFC3339),
		},
		ResponseText: "Created the appointment " + title + ".",
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// quoted extracts the first single- or double-quoted phrase.
func quoted(s string) string {
	for _, q := range []byte{'"', '\''} {
		first := strings.IndexByte(s, q)
		if first < 0 {
			continue
		}
		second := strings.IndexByte(s[first+1:], q)
		if second < 0 {
			continue
		}
		return strings.TrimSpace(s[first+1 : first+1+second])
	}
	return ""
}

// phraseAfter returns the text following the first matching keyword, used as
// a search query.
func phraseAfter(s string, keywords ...string) string {
	for _, kw := range keywords {
		if i := strings.Index(s, kw); i >= 0 {
			rest := strings.TrimSpace(s[i+len(kw):])
			rest = strings.TrimPrefix(rest, "the ")
			rest = strings.TrimSuffix(rest, " appointment")
			rest = strings.TrimSuffix(rest, " event")
			if q := quoted(rest); q != "" {
				return q
			}
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
