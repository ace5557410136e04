package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedassist/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), FileName), slog.Default())
	require.NoError(t, err)
	return s
}

func testEvent(t *testing.T, title string, start time.Time, d time.Duration) model.Event {
	t.Helper()
	draft := model.EventDraft{Title: title, Start: start, End: start.Add(d)}
	require.NoError(t, draft.Validate())
	return draft.NewEvent(start.Add(-24 * time.Hour))
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	ev := testEvent(t, "Dentist", start, time.Hour)

	require.NoError(t, s.Put(ev))

	got, err := s.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dentist", got.Title)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ev.ID, start))
	got, err = s.Get(ev.ID)
	require.NoError(t, err, "tombstones stay readable until compaction")
	assert.True(t, got.Deleted)

	// Deleting a tombstone again is NotFound.
	assert.ErrorIs(t, s.Delete(ev.ID, start), ErrNotFound)
}

func TestPutRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	ev := testEvent(t, "Dentist", start, time.Hour)
	ev.End = ev.Start // inverted interval
	err := s.Put(ev)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 0, s.Len(), "nothing may be stored on validation failure")
}

func TestQueryOrderingAndFilters(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	dentist := testEvent(t, "Dentist", time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC), time.Hour)
	standup := testEvent(t, "Standup", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), 15*time.Minute)
	review := testEvent(t, "Design review", time.Date(2024, 1, 16, 13, 0, 0, 0, time.UTC), time.Hour)
	review.Tags = []string{"work"}

	for _, ev := range []model.Event{dentist, standup, review} {
		require.NoError(t, s.Put(ev))
	}

	all := s.Query(model.Filter{}, now)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Standup", "Dentist", "Design review"},
		[]string{all[0].Title, all[1].Title, all[2].Title}, "ascending by start")

	today := s.Query(model.Filter{Today: true}, now)
	require.Len(t, today, 2)

	upcoming := s.Query(model.Filter{Upcoming: true}, now)
	require.Len(t, upcoming, 2, "standup already started")

	search := s.Query(model.Filter{Search: "dent"}, now)
	require.Len(t, search, 1)
	assert.Equal(t, "Dentist", search[0].Title)

	tagged := s.Query(model.Filter{Tag: "work"}, now)
	require.Len(t, tagged, 1)
	assert.Equal(t, "Design review", tagged[0].Title)

	from := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	ranged := s.Query(model.Filter{From: &from}, now)
	require.Len(t, ranged, 1)
}

func TestQueryTieBreakOnID(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	a := testEvent(t, "A", start, time.Hour)
	b := testEvent(t, "B", start, time.Hour)
	require.NoError(t, s.Put(a))
	require.NoError(t, s.Put(b))

	got := s.Query(model.Filter{}, start)
	require.Len(t, got, 2)
	assert.Less(t, got[0].ID, got[1].ID)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	s, err := Open(path, slog.Default())
	require.NoError(t, err)
	ev := testEvent(t, "Dentist", start, time.Hour)
	ev.Tags = []string{"health"}
	require.NoError(t, s.Put(ev))

	// A fresh process sees the same state.
	s2, err := Open(path, slog.Default())
	require.NoError(t, err)
	got, err := s2.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.Tags, got.Tags)
	assert.True(t, ev.Start.Equal(got.Start))
}

func TestUnknownFieldsPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	// Simulate a file written by a newer version with an extra section.
	doc := map[string]any{
		"version":      1,
		"events":       []any{},
		"preferences":  map[string]any{"week_start": "monday"},
		"color_scheme": "dark",
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	s, err := Open(path, slog.Default())
	require.NoError(t, err)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(testEvent(t, "Dentist", start, time.Hour)))

	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	var reread map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &reread))
	assert.Contains(t, reread, "preferences")
	assert.Contains(t, reread, "color_scheme")
	assert.Contains(t, reread, "events")
}

func TestNoPartialFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	s, err := Open(path, slog.Default())
	require.NoError(t, err)

	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(testEvent(t, "Event", start.Add(time.Duration(i)*time.Hour), time.Hour)))
		// Every intermediate file state must be complete, parseable JSON.
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Len(t, env.Events, i+1)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompactPurgesUnlinkedTombstones(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	neverSynced := testEvent(t, "Local only", start, time.Hour)
	synced := testEvent(t, "Synced", start.Add(2*time.Hour), time.Hour)
	synced.RemoteRef = "remote-1"
	live := testEvent(t, "Live", start.Add(4*time.Hour), time.Hour)

	for _, ev := range []model.Event{neverSynced, synced, live} {
		require.NoError(t, s.Put(ev))
	}
	require.NoError(t, s.Delete(neverSynced.ID, start))
	require.NoError(t, s.Delete(synced.ID, start))

	// The synced tombstone still has a link: it must survive compaction until
	// the sync engine confirms remote deletion.
	purged, err := s.Compact(map[string]bool{synced.ID: true})
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Get(neverSynced.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(synced.ID)
	assert.NoError(t, err)
}

func TestApplyBatchAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	existing := testEvent(t, "Existing", start, time.Hour)
	require.NoError(t, s.Put(existing))

	incoming := testEvent(t, "Incoming", start.Add(2*time.Hour), time.Hour)
	bad := testEvent(t, "Bad", start, time.Hour)
	bad.Title = "" // fails validation mid-batch

	err := s.ApplyBatch([]Change{{Put: &incoming}, {Put: &bad}}, start)
	require.Error(t, err)

	_, err = s.Get(incoming.ID)
	assert.ErrorIs(t, err, ErrNotFound, "failed batch must apply nothing")
	assert.Equal(t, 1, s.Len())

	// A clean batch applies in full.
	err = s.ApplyBatch([]Change{
		{Put: &incoming},
		{Delete: existing.ID},
	}, start)
	require.NoError(t, err)
	got, err := s.Get(existing.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, 1, s.Len())
}

func TestReplaceAndReload(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(testEvent(t, "Old", start, time.Hour)))

	replacement := testEvent(t, "New", start.Add(time.Hour), time.Hour)
	require.NoError(t, s.Replace([]model.Event{replacement}))
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(replacement.ID)
	assert.NoError(t, err)

	// Reload drops in-memory state in favour of the file.
	require.NoError(t, s.Reload())
	assert.Equal(t, 1, s.Len())
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	past := testEvent(t, "Past", now.Add(-48*time.Hour), time.Hour)
	past.Tags = []string{"work"}
	upcoming := testEvent(t, "Upcoming", now.Add(4*time.Hour), time.Hour)
	upcoming.Tags = []string{"work", "health"}
	upcoming.Priority = model.PriorityHigh

	require.NoError(t, s.Put(past))
	require.NoError(t, s.Put(upcoming))
	require.NoError(t, s.Put(testEvent(t, "Doomed", now.Add(6*time.Hour), time.Hour)))
	doomed := s.All(false)[2]
	require.NoError(t, s.Delete(doomed.ID, now))

	r := s.Stats(now)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, 1, r.Upcoming)
	assert.Equal(t, 1, r.Past)
	assert.Equal(t, 1, r.Tombstones)
	assert.Equal(t, 2, r.ByTag["work"])
	assert.Equal(t, 1, r.ByTag["health"])
	assert.Equal(t, 1, r.ByPriority["High"])
	assert.Equal(t, 1, r.ByDay["2024-01-15"])
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path, slog.Default())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
