// Package store implements the durable local event collection: a single
// JSON file holding all non-purged events, written atomically via a
// write-to-temp-then-rename discipline.
//
// Only this package may read or write the schedule file. All other packages
// receive a [*Store] and call its methods. Mutations are serialised through a
// single writer lock; queries run concurrently and observe a consistent
// snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"schedassist/internal/model"
)

// FileName is the schedule collection file inside the data directory.
const FileName = "schedule.json"

// Store is the file-backed event repository.
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.RWMutex
	events map[string]model.Event

	// extra holds unknown top-level JSON fields found in the file, preserved
	// verbatim across a load-modify-save cycle so newer versions of the tool
	// can add fields without older versions destroying them.
	extra map[string]json.RawMessage
}

// envelope is the on-disk layout of the schedule file.
type envelope struct {
	Version int           `json:"version"`
	Events  []model.Event `json:"events"`
}

const fileVersion = 1

// Open loads (or creates) the schedule file at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		path:   path,
		log:    logger,
		events: make(map[string]model.Event),
		extra:  make(map[string]json.RawMessage),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the schedule file path.
func (s *Store) Path() string { return s.path }

// load reads the schedule file into memory. A missing file is an empty store.
func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schedule file %q: %w", s.path, err)
	}

	// Two-pass decode: typed fields first, then every top-level key we do not
	// recognise is kept raw for the next save.
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parsing schedule file %q: %w", s.path, err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return fmt.Errorf("parsing schedule file %q: %w", s.path, err)
	}
	delete(all, "version")
	delete(all, "events")

	events := make(map[string]model.Event, len(env.Events))
	for _, ev := range env.Events {
		events[ev.ID] = ev
	}

	s.mu.Lock()
	s.events = events
	s.extra = all
	s.mu.Unlock()
	return nil
}

// Reload re-reads the schedule file, discarding in-memory state. Used after a
// backup restore replaces the file underneath us.
func (s *Store) Reload() error { return s.load() }

// persistLocked writes the current state to disk atomically: marshal, write to
// a temp file in the same directory, fsync, rename over the original. The
// caller must hold the write lock.
func (s *Store) persistLocked() error {
	env := envelope{Version: fileVersion, Events: s.sortedLocked(true)}

	typed, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}

	// Merge preserved unknown fields back into the document.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(typed, &doc); err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	maps.Copy(doc, s.extra)
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp schedule file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp schedule file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp schedule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp schedule file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing schedule file: %w", err)
	}
	return nil
}

// sortedLocked returns the events ordered ascending by start, ties broken by
// id. The caller must hold at least the read lock.
func (s *Store) sortedLocked(includeDeleted bool) []model.Event {
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		if !includeDeleted && ev.Deleted {
			continue
		}
		out = append(out, ev.Clone())
	}
	slices.SortFunc(out, func(a, b model.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Put inserts or overwrites the event, validating it first, and persists.
func (s *Store) Put(ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.events[ev.ID]
	s.events[ev.ID] = ev.Clone()
	if err := s.persistLocked(); err != nil {
		// Roll back the in-memory change so state matches disk.
		if existed {
			s.events[ev.ID] = prev
		} else {
			delete(s.events, ev.ID)
		}
		return err
	}
	return nil
}

// Get returns the event with the given id, tombstones included.
func (s *Store) Get(id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev.Clone(), nil
}

// Query returns all live events matching the filter, ordered ascending by
// start with id as tiebreak. Each call reflects current state; there is no
// frozen cursor.
func (s *Store) Query(f model.Filter, now time.Time) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, ev := range s.sortedLocked(false) {
		if f.Matches(&ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// All returns every event in store order, optionally including tombstones.
func (s *Store) All(includeDeleted bool) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(includeDeleted)
}

// Delete tombstones the event. The record is retained until a sync pass
// confirms remote removal and compaction purges it.
func (s *Store) Delete(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok || ev.Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := ev.Clone()
	ev.Deleted = true
	ev.UpdatedAt = now.UTC()
	s.events[id] = ev
	if err := s.persistLocked(); err != nil {
		s.events[id] = prev
		return err
	}
	return nil
}

// Compact hard-purges tombstoned events that have no sync link left, i.e.
// events that were never synced or whose remote deletion has been confirmed.
// Returns the number of purged events.
func (s *Store) Compact(linked map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purge []string
	for id, ev := range s.events {
		if ev.Deleted && !linked[id] {
			purge = append(purge, id)
		}
	}
	if len(purge) == 0 {
		return 0, nil
	}

	removed := make(map[string]model.Event, len(purge))
	for _, id := range purge {
		removed[id] = s.events[id]
		delete(s.events, id)
	}
	if err := s.persistLocked(); err != nil {
		maps.Copy(s.events, removed)
		return 0, err
	}
	s.log.Info("compaction complete", "purged", len(purge))
	return len(purge), nil
}

// Change describes a single mutation inside a batch. Exactly one field is set.
type Change struct {
	// Put inserts or overwrites an event.
	Put *model.Event

	// Delete tombstones an event by id.
	Delete string

	// Purge hard-removes an event by id.
	Purge string
}

// ApplyBatch applies the whole change set and persists once. Either every
// change lands or none does: the in-memory map is only swapped after a
// successful write, so a crash or I/O failure mid-batch leaves the previous
// consistent state in place. This is the sync engine's merge primitive.
func (s *Store) ApplyBatch(changes []Change, now time.Time) error {
	if len(changes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.Event, len(s.events))
	for id, ev := range s.events {
		next[id] = ev.Clone()
	}

	for _, ch := range changes {
		switch {
		case ch.Put != nil:
			if err := ch.Put.Validate(); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalid, err)
			}
			next[ch.Put.ID] = ch.Put.Clone()
		case ch.Delete != "":
			ev, ok := next[ch.Delete]
			if !ok {
				return fmt.Errorf("%w: %s", ErrNotFound, ch.Delete)
			}
			ev.Deleted = true
			ev.UpdatedAt = now.UTC()
			next[ch.Delete] = ev
		case ch.Purge != "":
			delete(next, ch.Purge)
		}
	}

	prev := s.events
	s.events = next
	if err := s.persistLocked(); err != nil {
		s.events = prev
		return err
	}
	return nil
}

// Replace swaps the entire collection, used by restore and import. All
// incoming events are validated before anything is touched.
func (s *Store) Replace(events []model.Event) error {
	next := make(map[string]model.Event, len(events))
	for i := range events {
		ev := events[i]
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalid, err)
		}
		next[ev.ID] = ev.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.events
	s.events = next
	if err := s.persistLocked(); err != nil {
		s.events = prev
		return err
	}
	return nil
}

// Len returns the number of live (non-tombstoned) events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.events {
		if !ev.Deleted {
			n++
		}
	}
	return n
}
