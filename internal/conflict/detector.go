// Package conflict finds schedule collisions and free time. All interval
// arithmetic is half-open: [start, end), so back-to-back appointments do not
// collide. Findings are advisory; nothing in here blocks a mutation.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"schedassist/internal/model"
	"schedassist/internal/remote"
)

// Scope selects which calendars to inspect.
type Scope int

const (
	// ScopeLocal inspects only the local store.
	ScopeLocal Scope = iota
	// ScopeRemote inspects only the remote calendar.
	ScopeRemote
	// ScopeBoth inspects both.
	ScopeBoth
)

// Overlap is one collision with the probed interval.
type Overlap struct {
	// Source is "local" or "remote".
	Source string

	// ID is the local event id or remote ref.
	ID string

	Title string
	Start time.Time
	End   time.Time
}

// Slot is one free interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

// LocalSource is the local read access the detector needs.
type LocalSource interface {
	All(includeDeleted bool) []model.Event
}

// RemoteLister is the remote read access the detector needs.
type RemoteLister interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]remote.Event, error)
}

// Detector probes local and remote calendars for collisions. remote may be
// nil, in which case remote scopes degrade to local-only with an error.
type Detector struct {
	local  LocalSource
	remote RemoteLister
	log    *slog.Logger
}

// New returns a Detector over the given sources. A nil logger falls back to
// the default.
func New(local LocalSource, rem RemoteLister, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{local: local, remote: rem, log: logger}
}

// FindOverlaps returns every event intersecting [start, end) in the given
// scope, sorted by start. ignoreID excludes one local event, so an update can
// be checked without colliding with itself.
func (d *Detector) FindOverlaps(ctx context.Context, start, end time.Time, scope Scope, ignoreID string) ([]Overlap, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("probe interval start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var out []Overlap
	if scope == ScopeLocal || scope == ScopeBoth {
		for _, ev := range d.local.All(false) {
			if ev.ID == ignoreID {
				continue
			}
			if ev.Overlaps(start, end) {
				out = append(out, Overlap{
					Source: "local", ID: ev.ID, Title: ev.Title,
					Start: ev.Start, End: ev.End,
				})
			}
		}
	}

	if scope == ScopeRemote || scope == ScopeBoth {
		if d.remote == nil {
			return nil, fmt.Errorf("no remote calendar configured")
		}
		remotes, err := d.remote.ListEvents(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("listing remote events: %w", err)
		}
		for _, rev := range remotes {
			if rev.Start.Before(end) && start.Before(rev.End) {
				out = append(out, Overlap{
					Source: "remote", ID: rev.Ref, Title: rev.Title,
					Start: rev.Start, End: rev.End,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FreeSlots returns the gaps of at least minDuration within the next
// horizonDays, computed as the complement of the merged local and remote busy
// intervals. A remote listing failure degrades to local-only rather than
// failing the whole query.
func (d *Detector) FreeSlots(ctx context.Context, now time.Time, minDuration time.Duration, horizonDays int) ([]Slot, error) {
	if minDuration <= 0 {
		return nil, fmt.Errorf("minimum duration must be positive")
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	horizonEnd := now.AddDate(0, 0, horizonDays)

	var busy []Slot
	for _, ev := range d.local.All(false) {
		if ev.Overlaps(now, horizonEnd) {
			busy = append(busy, Slot{Start: ev.Start, End: ev.End})
		}
	}
	if d.remote != nil {
		remotes, err := d.remote.ListEvents(ctx, now, horizonEnd)
		if err != nil {
			d.log.Warn("remote listing failed, free-slot search degrades to local busy times only",
				"error", err)
		}
		for _, rev := range remotes {
			busy = append(busy, Slot{Start: rev.Start, End: rev.End})
		}
	}

	merged := mergeIntervals(busy)

	// Walk the gaps between merged busy blocks.
	var free []Slot
	cursor := now
	for _, b := range merged {
		if b.Start.After(cursor) && b.Start.Sub(cursor) >= minDuration {
			free = append(free, Slot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if horizonEnd.Sub(cursor) >= minDuration {
		free = append(free, Slot{Start: cursor, End: horizonEnd})
	}
	return free, nil
}

// mergeIntervals sorts by start and coalesces touching or overlapping
// intervals. Half-open semantics: [9,10) and [10,11) merge into [9,11).
func mergeIntervals(in []Slot) []Slot {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := []Slot{in[0]}
	for _, s := range in[1:] {
		last := &out[len(out)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
