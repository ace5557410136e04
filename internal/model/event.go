// Package model defines the shared types used across the store, resolver,
// conflict detector, and sync engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority represents the priority level of an appointment.
type Priority int

const (
	// PriorityNone indicates no priority is set.
	PriorityNone Priority = 0
	// PriorityLow indicates low priority.
	PriorityLow Priority = 1
	// PriorityMedium indicates medium priority.
	PriorityMedium Priority = 2
	// PriorityHigh indicates high priority.
	PriorityHigh Priority = 3
	// PriorityUrgent indicates urgent priority.
	PriorityUrgent Priority = 4
)

// String returns the human-readable label for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	default:
		return "None"
	}
}

// ParsePriority maps a label (case-insensitive) to a Priority. Unknown or
// empty labels map to PriorityNone with ok=false.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	case "urgent":
		return PriorityUrgent, true
	default:
		return PriorityNone, false
	}
}

// Event is a single scheduled appointment record. It is the central entity of
// the schedule: created by the resolver on a Create operation or by the sync
// engine on a remote-only discovery, soft-deleted by Delete, and hard-purged
// by compaction once remote removal is confirmed.
type Event struct {
	// ID is the process-wide-unique identifier, assigned at creation, immutable.
	ID string `json:"id"`

	// Title is the non-empty display title.
	Title string `json:"title"`

	// Description is optional body text.
	Description string `json:"description,omitempty"`

	// Location is an optional place name.
	Location string `json:"location,omitempty"`

	// Tags is a set of labels; insertion order is irrelevant.
	Tags []string `json:"tags,omitempty"`

	// Attendees is an optional list of participant names or addresses.
	Attendees []string `json:"attendees,omitempty"`

	// Priority is the appointment's priority level.
	Priority Priority `json:"priority,omitempty"`

	// Start and End bound the appointment as a half-open interval [Start, End).
	// Both are timezone-aware instants stored in UTC; Start < End always holds
	// for a valid event.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// RemoteRef is the opaque identifier of the remote calendar counterpart.
	// Empty until the event has been synced at least once. The remote revision
	// token lives in the sync link store, not here.
	RemoteRef string `json:"remote_ref,omitempty"`

	// CreatedAt and UpdatedAt are local timestamps. UpdatedAt increases
	// monotonically with every local mutation and acts as the local version.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Deleted marks a tombstone: the event is retained until a sync pass
	// confirms remote removal, then purged by compaction.
	Deleted bool `json:"deleted,omitempty"`
}

// Validate checks the event's structural invariants.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id must not be empty")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("title must not be empty")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return errors.New("start and end must be set")
	}
	if !e.Start.Before(e.End) {
		return fmt.Errorf("start %s must be before end %s",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() Event {
	cp := *e
	cp.Tags = slices.Clone(e.Tags)
	cp.Attendees = slices.Clone(e.Attendees)
	return cp
}

// HasTag reports whether the event carries the given tag (case-insensitive).
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Overlaps reports whether the event's [Start, End) interval intersects the
// given half-open interval. An event ending exactly when another begins does
// not overlap.
func (e *Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// ContentHash returns a deterministic SHA-256 hex digest of the fields that
// matter for sync change detection: title, description, location, start, end,
// tags, and priority. UpdatedAt is intentionally excluded — it changes on
// every save and is only used as the local version, not for change detection.
func (e *Event) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(e.Title))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Description))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Location))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Start.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	h.Write([]byte(e.End.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	tags := slices.Clone(e.Tags)
	slices.Sort(tags)
	h.Write([]byte(strings.Join(tags, ",")))
	h.Write([]byte{'|'})
	_, _ = fmt.Fprintf(h, "%d", e.Priority)
	return hex.EncodeToString(h.Sum(nil))
}

// EventDraft carries the user-supplied fields of a not-yet-created event.
type EventDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Validate checks the draft's invariants without assigning an identity.
func (d *EventDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title must not be empty")
	}
	if d.Start.IsZero() || d.End.IsZero() {
		return errors.New("start and end must be set")
	}
	if !d.Start.Before(d.End) {
		return fmt.Errorf("start %s must be before end %s",
			d.Start.Format(time.RFC3339), d.End.Format(time.RFC3339))
	}
	return nil
}

// NewEvent materialises the draft into an Event with a fresh identity. A
// value receiver: the draft is read, never mutated, and callers hold drafts
// by value.
func (d EventDraft) NewEvent(now time.Time) Event {
	now = now.UTC()
	return Event{
		ID:          uuid.NewString(),
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Tags:        slices.Clone(d.Tags),
		Attendees:   slices.Clone(d.Attendees),
		Priority:    d.Priority,
		Start:       d.Start.UTC(),
		End:         d.End.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// EventPatch carries a partial update; nil fields are left untouched.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Attendees   []string   `json:"attendees,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p *EventPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Tags == nil && p.Attendees == nil && p.Priority == nil &&
		p.Start == nil && p.End == nil
}

// Apply mutates ev with the patch's non-nil fields, bumps UpdatedAt, and
// re-validates. The start<end invariant is checked against the combined
// result, so a patch may move either endpoint as long as order is preserved.
func (p *EventPatch) Apply(ev *Event, now time.Time) error {
	updated := ev.Clone()
	if p.Title != nil {
		updated.Title = *p.Title
	}
	if p.Description != nil {
		updated.Description = *p.Description
	}
	if p.Location != nil {
		updated.Location = *p.Location
	}
	if p.Tags != nil {
		updated.Tags = slices.Clone(p.Tags)
	}
	if p.Attendees != nil {
		updated.Attendees = slices.Clone(p.Attendees)
	}
	if p.Priority != nil {
		updated.Priority = *p.Priority
	}
	if p.Start != nil {
		updated.Start = p.Start.UTC()
	}
	if p.End != nil {
		updated.End = p.End.UTC()
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.UpdatedAt = now.UTC()
	*ev = updated
	return nil
}

// Filter selects events out of the store. Zero-valued fields are ignored;
// set fields combine with AND.
type Filter struct {
	// From and To bound the event start instant (inclusive From, exclusive To).
	From *time.Time
	To   *time.Time

	// Search matches a case-insensitive substring of title or description.
	Search string

	// Tag requires tag membership (case-insensitive).
	Tag string

	// Upcoming keeps only events starting at or after the reference time.
	Upcoming bool

	// Today keeps only events starting within the reference local calendar day.
	Today bool
}

// Matches reports whether the event passes the filter relative to now.
// Tombstoned events never match.
func (f *Filter) Matches(e *Event, now time.Time) bool {
	if e.Deleted {
		return false
	}
	if f.From != nil && e.Start.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Start.Before(*f.To) {
		return false
	}
	if f.Upcoming && e.Start.Before(now) {
		return false
	}
	if f.Today {
		// "Today" is the calendar day of the reference time, in its location.
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		dayEnd := dayStart.AddDate(0, 0, 1)
		start := e.Start.In(now.Location())
		if start.Before(dayStart) || !start.Before(dayEnd) {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	if f.Tag != "" && !e.HasTag(f.Tag) {
		return false
	}
	return true
}
