package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schedassist/internal/backup"
	"schedassist/internal/model"
	"schedassist/internal/remote"
	"schedassist/internal/state"
	"schedassist/internal/store"
)

// --- Mock local store --------------------------------------------------------

type mockLocal struct {
	mu     sync.Mutex
	events map[string]model.Event

	failBatch bool
}

func newMockLocal(events ...model.Event) *mockLocal {
	m := &mockLocal{events: make(map[string]model.Event)}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *mockLocal) All(includeDeleted bool) []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Event
	for _, ev := range m.events {
		if !includeDeleted && ev.Deleted {
			continue
		}
		out = append(out, ev.Clone())
	}
	return out
}

func (m *mockLocal) Put(ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev.Clone()
	return nil
}

func (m *mockLocal) ApplyBatch(changes []store.Change, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failBatch {
		return fmt.Errorf("simulated batch failure")
	}
	for _, ch := range changes {
		switch {
		case ch.Put != nil:
			if err := ch.Put.Validate(); err != nil {
				return err
			}
			m.events[ch.Put.ID] = ch.Put.Clone()
		case ch.Delete != "":
			ev := m.events[ch.Delete]
			ev.Deleted = true
			ev.UpdatedAt = now.UTC()
			m.events[ch.Delete] = ev
		case ch.Purge != "":
			delete(m.events, ch.Purge)
		}
	}
	return nil
}

func (m *mockLocal) get(id string) (model.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ev, ok
}

func (m *mockLocal) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// --- Mock link store ---------------------------------------------------------

type mockLinks struct {
	mu    sync.Mutex
	links map[string]*state.Link // local id → link
}

func newMockLinks(links ...*state.Link) *mockLinks {
	m := &mockLinks{links: make(map[string]*state.Link)}
	for _, l := range links {
		cp := *l
		m.links[l.LocalID] = &cp
	}
	return m
}

func (m *mockLinks) All(_ context.Context) ([]*state.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*state.Link
	for _, l := range m.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockLinks) Upsert(_ context.Context, link *state.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.LocalID] = &cp
	return nil
}

func (m *mockLinks) Delete(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, localID)
	return nil
}

func (m *mockLinks) get(localID string) *state.Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[localID]
}

func (m *mockLinks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// --- Mock remote calendar ----------------------------------------------------

type remoteRecord struct {
	event    remote.Event
	revision int
}

type mockCalendar struct {
	mu      sync.Mutex
	records map[string]*remoteRecord
	nextRef int

	listErr   error
	createErr error

	// beforeUpdate runs at the start of UpdateEvent, outside the lock, so a
	// test can simulate a remote edit racing the push.
	beforeUpdate func()
}

func newMockCalendar() *mockCalendar {
	return &mockCalendar{records: make(map[string]*remoteRecord)}
}

// seed adds a remote event directly, bypassing the revision protocol.
func (m *mockCalendar) seed(ref, title string, start, end time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ref] = &remoteRecord{
		event:    remote.Event{Ref: ref, Revision: "v1", Title: title, Start: start, End: end},
		revision: 1,
	}
	return "v1"
}

// touch simulates an out-of-band remote edit, bumping the revision.
func (m *mockCalendar) touch(ref string, mutate func(*remote.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[ref]
	mutate(&rec.event)
	rec.revision++
	rec.event.Revision = fmt.Sprintf("v%d", rec.revision)
}

func (m *mockCalendar) Ping(_ context.Context) error { return nil }

func (m *mockCalendar) ListEvents(_ context.Context, _, _ time.Time) ([]remote.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []remote.Event
	for _, rec := range m.records {
		out = append(out, rec.event)
	}
	return out, nil
}

func (m *mockCalendar) CreateEvent(_ context.Context, ev remote.Event) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", "", m.createErr
	}
	m.nextRef++
	ref := fmt.Sprintf("r-%d", m.nextRef)
	for m.records[ref] != nil {
		m.nextRef++
		ref = fmt.Sprintf("r-%d", m.nextRef)
	}
	ev.Ref = ref
	ev.Revision = "v1"
	m.records[ref] = &remoteRecord{event: ev, revision: 1}
	return ref, "v1", nil
}

func (m *mockCalendar) UpdateEvent(_ context.Context, ref string, ev remote.Event, expectedRevision string) (string, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ref]
	if !ok {
		return "", remote.ErrNotFound
	}
	if rec.event.Revision != expectedRevision {
		return "", remote.ErrStaleRevision
	}
	rec.revision++
	ev.Ref = ref
	ev.Revision = fmt.Sprintf("v%d", rec.revision)
	rec.event = ev
	return ev.Revision, nil
}

func (m *mockCalendar) DeleteEvent(_ context.Context, ref, expectedRevision string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ref]
	if !ok {
		return remote.ErrNotFound
	}
	if rec.event.Revision != expectedRevision {
		return remote.ErrStaleRevision
	}
	delete(m.records, ref)
	return nil
}

func (m *mockCalendar) get(ref string) *remote.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ref]
	if !ok {
		return nil
	}
	cp := rec.event
	return &cp
}

func (m *mockCalendar) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Mock snapshotter --------------------------------------------------------

type mockSnapshotter struct {
	mu        sync.Mutex
	snapshots int
	err       error
}

func (m *mockSnapshotter) Snapshot(_ string, now time.Time) (backup.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return backup.Snapshot{}, m.err
	}
	m.snapshots++
	return backup.Snapshot{ID: fmt.Sprintf("snap-%d", m.snapshots), CreatedAt: now}, nil
}

func (m *mockSnapshotter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}
