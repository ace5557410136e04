package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"schedassist/internal/model"
	"schedassist/internal/remote"
	"schedassist/internal/state"
)

var (
	testLogger = slog.Default()
	passTime   = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
)

func newTestEngine(local *mockLocal, links *mockLinks, cal *mockCalendar, snaps *mockSnapshotter) *Engine {
	e := NewEngine(local, links, cal, snaps, 30*24*time.Hour, 90*24*time.Hour, testLogger)
	e.now = func() time.Time { return passTime }
	return e
}

func newLocalEvent(title string, start time.Time) model.Event {
	draft := model.EventDraft{Title: title, Start: start, End: start.Add(time.Hour)}
	return draft.NewEvent(start.Add(-24 * time.Hour))
}

func linkFor(ev model.Event, ref, revision string) *state.Link {
	return &state.Link{
		LocalID:            ev.ID,
		RemoteRef:          ref,
		LastSyncHash:       ev.ContentHash(),
		LastSyncedRevision: revision,
		LastSyncedAt:       passTime.Add(-time.Hour),
	}
}

// ---------------------------------------------------------------------------
// Scenario 1: Local-only event → created remotely, ref backfilled, linked
// ---------------------------------------------------------------------------

func TestPass_LocalOnly_CreatedRemotely(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	local := newMockLocal(ev)
	links := newMockLinks()
	cal := newMockCalendar()
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.CreatedRemote != 1 {
		t.Errorf("CreatedRemote = %d, want 1", stats.CreatedRemote)
	}
	if cal.count() != 1 {
		t.Fatalf("remote events = %d, want 1", cal.count())
	}

	link := links.get(ev.ID)
	if link == nil {
		t.Fatal("no link recorded")
	}
	got, _ := local.get(ev.ID)
	if got.RemoteRef != link.RemoteRef {
		t.Errorf("local RemoteRef = %q, link RemoteRef = %q, want equal", got.RemoteRef, link.RemoteRef)
	}
	if link.LastSyncHash != ev.ContentHash() {
		t.Errorf("link hash does not match event content hash")
	}
}

// ---------------------------------------------------------------------------
// Scenario 2: Remote-only event → materialised locally with a link
// ---------------------------------------------------------------------------

func TestPass_RemoteOnly_CreatedLocally(t *testing.T) {
	local := newMockLocal()
	links := newMockLinks()
	cal := newMockCalendar()
	cal.seed("r-1", "Team offsite", passTime.Add(24*time.Hour), passTime.Add(26*time.Hour))
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.CreatedLocal != 1 {
		t.Errorf("CreatedLocal = %d, want 1", stats.CreatedLocal)
	}
	if local.count() != 1 {
		t.Fatalf("local events = %d, want 1", local.count())
	}
	for _, ev := range local.All(true) {
		if ev.Title != "Team offsite" || ev.RemoteRef != "r-1" {
			t.Errorf("materialised event = %+v, want title %q ref r-1", ev, "Team offsite")
		}
	}
	if links.count() != 1 {
		t.Errorf("links = %d, want 1", links.count())
	}
	// Empty local collection: nothing to protect, no snapshot.
	if snaps.count() != 0 {
		t.Errorf("snapshots = %d, want 0 on first pull into empty store", snaps.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 3: Local edit → pushed with the expected revision
// ---------------------------------------------------------------------------

func TestPass_LocalEdit_PushedRemotely(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	// Local retitle after the last sync.
	ev.Title = "Dentist (rescheduled)"
	local := newMockLocal(ev)
	links := newMockLinks(link)
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.UpdatedRemote != 1 {
		t.Errorf("UpdatedRemote = %d, want 1", stats.UpdatedRemote)
	}
	if got := cal.get("r-1"); got == nil || got.Title != "Dentist (rescheduled)" {
		t.Errorf("remote title = %v, want pushed retitle", got)
	}
	if links.get(ev.ID).LastSyncedRevision != "v2" {
		t.Errorf("link revision = %q, want v2", links.get(ev.ID).LastSyncedRevision)
	}
	if snaps.count() != 0 {
		t.Errorf("snapshots = %d, want 0 for a push-only pass", snaps.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 4: Remote edit → merged locally after a snapshot
// ---------------------------------------------------------------------------

func TestPass_RemoteEdit_MergedLocally(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	ev.Tags = []string{"health"}
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	// Remote moved the appointment by two hours.
	cal.touch("r-1", func(rev *remote.Event) {
		rev.Start = rev.Start.Add(2 * time.Hour)
		rev.End = rev.End.Add(2 * time.Hour)
	})

	local := newMockLocal(ev)
	links := newMockLinks(link)
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.UpdatedLocal != 1 {
		t.Errorf("UpdatedLocal = %d, want 1", stats.UpdatedLocal)
	}
	if stats.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0 for a one-sided remote change", stats.Conflicts)
	}
	got, _ := local.get(ev.ID)
	if !got.Start.Equal(ev.Start.Add(2 * time.Hour)) {
		t.Errorf("local start = %v, want remote's moved start", got.Start)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "health" {
		t.Errorf("local tags = %v, want local-only facets preserved", got.Tags)
	}
	if snaps.count() != 1 {
		t.Errorf("snapshots = %d, want 1 before merging remote changes", snaps.count())
	}
	if links.get(ev.ID).LastSyncedRevision != "v2" {
		t.Errorf("link revision = %q, want v2", links.get(ev.ID).LastSyncedRevision)
	}
}

// ---------------------------------------------------------------------------
// Scenario 5: Both sides changed → remote wins, conflict counted
// ---------------------------------------------------------------------------

func TestPass_TwoSidedChange_RemoteWins(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	cal.touch("r-1", func(rev *remote.Event) { rev.Title = "Dentist (remote edit)" })
	ev.Title = "Dentist (local edit)"

	local := newMockLocal(ev)
	links := newMockLinks(link)
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	got, _ := local.get(ev.ID)
	if got.Title != "Dentist (remote edit)" {
		t.Errorf("local title = %q, want the remote edit", got.Title)
	}
	if snaps.count() != 1 {
		t.Errorf("snapshots = %d, want 1 so the losing local edit is recoverable", snaps.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 6: Local tombstone → remote deleted, local purged, link dropped
// ---------------------------------------------------------------------------

func TestPass_LocalTombstone_DeletesRemotely(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	ev.Deleted = true
	local := newMockLocal(ev)
	links := newMockLinks(link)
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.DeletedRemote != 1 {
		t.Errorf("DeletedRemote = %d, want 1", stats.DeletedRemote)
	}
	if cal.count() != 0 {
		t.Errorf("remote events = %d, want 0", cal.count())
	}
	if local.count() != 0 {
		t.Errorf("local events = %d, want 0 (tombstone purged after confirmation)", local.count())
	}
	if links.count() != 0 {
		t.Errorf("links = %d, want 0", links.count())
	}
	// The push purges a local record, so the pass must have been guarded by
	// a snapshot even though the merge batch itself was empty.
	if snaps.count() != 1 {
		t.Errorf("snapshots = %d, want 1 before a purging pass", snaps.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 7: Remote deletion → local copy tombstoned, link dropped
// ---------------------------------------------------------------------------

func TestPass_RemoteDeletion_TombstonesLocal(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	link := linkFor(ev, "r-1", "v1")

	local := newMockLocal(ev)
	links := newMockLinks(link)
	cal := newMockCalendar() // remote side is empty: the event is gone
	snaps := &mockSnapshotter{}

	e := newTestEngine(local, links, cal, snaps)
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.DeletedLocal != 1 {
		t.Errorf("DeletedLocal = %d, want 1", stats.DeletedLocal)
	}
	got, ok := local.get(ev.ID)
	if !ok || !got.Deleted {
		t.Errorf("local event = %+v, want a tombstone (compaction reaps it later)", got)
	}
	if links.count() != 0 {
		t.Errorf("links = %d, want 0", links.count())
	}
	if snaps.count() != 1 {
		t.Errorf("snapshots = %d, want 1 before a destructive merge", snaps.count())
	}

	// The unlinked tombstone is inert: a second pass does nothing.
	stats, err = e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if stats.total() != 0 {
		t.Errorf("second pass performed %d actions, want 0", stats.total())
	}
}

// ---------------------------------------------------------------------------
// Scenario 7b: Tracked local copy vanished → re-materialised once, old link
// retired
// ---------------------------------------------------------------------------

func TestPass_VanishedLocal_RematerialisedWithoutGhostLink(t *testing.T) {
	// A restore to an older snapshot removed the local record, but its link
	// survived. The remote copy is authoritative and comes back exactly once.
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", passTime.Add(4*time.Hour), passTime.Add(5*time.Hour))

	ghost := &state.Link{
		LocalID:            "gone-after-restore",
		RemoteRef:          "r-1",
		LastSyncHash:       "hash-of-the-lost-copy",
		LastSyncedRevision: "v1",
		LastSyncedAt:       passTime.Add(-time.Hour),
	}
	local := newMockLocal()
	links := newMockLinks(ghost)

	e := newTestEngine(local, links, cal, &mockSnapshotter{})
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.CreatedLocal != 1 {
		t.Errorf("CreatedLocal = %d, want 1", stats.CreatedLocal)
	}
	if local.count() != 1 {
		t.Fatalf("local events = %d, want 1", local.count())
	}
	if links.count() != 1 {
		t.Fatalf("links = %d, want 1 (the stale link must be retired)", links.count())
	}
	if links.get("gone-after-restore") != nil {
		t.Error("stale link for the vanished local id still present")
	}

	// Converged: a second pass does nothing and nothing accumulates.
	stats, err = e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if stats.total() != 0 {
		t.Errorf("second pass performed %d actions, want 0", stats.total())
	}
	if local.count() != 1 || links.count() != 1 {
		t.Errorf("second pass state local=%d links=%d, want 1/1", local.count(), links.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 8: Conflict pass converges, second pass has nothing to do
// ---------------------------------------------------------------------------

func TestPass_ConflictConvergesOnSecondPass(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	ev.Title = "Dentist (local edit)"
	cal.touch("r-1", func(rev *remote.Event) { rev.Location = "New clinic" })

	local := newMockLocal(ev)
	links := newMockLinks(link)

	e := newTestEngine(local, links, cal, &mockSnapshotter{})
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}

	// A second pass has nothing left to do.
	stats, err = e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if stats.total() != 0 {
		t.Errorf("second pass performed %d actions, want 0", stats.total())
	}
}

// ---------------------------------------------------------------------------
// Scenario 8b: Push loses a revision race → deferred, not an error
// ---------------------------------------------------------------------------

func TestPass_StalePush_Deferred(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	ev.RemoteRef = "r-1"
	cal := newMockCalendar()
	cal.seed("r-1", "Dentist", ev.Start, ev.End)
	link := linkFor(ev, "r-1", "v1")

	ev.Title = "Dentist (local edit)"
	local := newMockLocal(ev)
	links := newMockLinks(link)

	// The remote copy changes between the pull and our push.
	cal.beforeUpdate = func() {
		cal.touch("r-1", func(rev *remote.Event) { rev.Location = "New clinic" })
	}

	e := newTestEngine(local, links, cal, &mockSnapshotter{})
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("a lost revision race must not fail the pass: %v", err)
	}

	if stats.Stale != 1 {
		t.Errorf("Stale = %d, want 1", stats.Stale)
	}
	if stats.UpdatedRemote != 0 || stats.Errors != 0 {
		t.Errorf("updated_remote=%d errors=%d, want 0/0", stats.UpdatedRemote, stats.Errors)
	}
	// The link is untouched: the next pass re-pulls and resolves remote-wins.
	if got := links.get(ev.ID); got.LastSyncedRevision != "v1" {
		t.Errorf("link revision = %q, want v1 kept", got.LastSyncedRevision)
	}
}

// ---------------------------------------------------------------------------
// Scenario 9: Interrupted pass left an unlinked remote copy → adopted
// ---------------------------------------------------------------------------

func TestPass_InterruptedCreate_AdoptsInsteadOfDuplicating(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))

	// A previous pass created the remote copy but died before recording the
	// link. The remote copy matches by title and times.
	cal := newMockCalendar()
	cal.seed("r-9", "Dentist", ev.Start, ev.End)

	local := newMockLocal(ev)
	links := newMockLinks()

	e := newTestEngine(local, links, cal, &mockSnapshotter{})
	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Adopted != 1 {
		t.Errorf("Adopted = %d, want 1", stats.Adopted)
	}
	if stats.CreatedRemote != 0 || stats.CreatedLocal != 0 {
		t.Errorf("created local=%d remote=%d, want no duplicates", stats.CreatedLocal, stats.CreatedRemote)
	}
	if cal.count() != 1 {
		t.Errorf("remote events = %d, want 1", cal.count())
	}
	link := links.get(ev.ID)
	if link == nil || link.RemoteRef != "r-9" {
		t.Fatalf("link = %+v, want adoption of r-9", link)
	}
}

// ---------------------------------------------------------------------------
// Scenario 10: A second identical pass performs zero actions
// ---------------------------------------------------------------------------

func TestPass_Idempotent(t *testing.T) {
	evA := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	evB := newLocalEvent("Standup", passTime.Add(time.Hour))
	local := newMockLocal(evA, evB)
	links := newMockLinks()
	cal := newMockCalendar()
	cal.seed("r-1", "Planning", passTime.Add(48*time.Hour), passTime.Add(49*time.Hour))

	e := newTestEngine(local, links, cal, &mockSnapshotter{})

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.CreatedRemote != 2 || stats.CreatedLocal != 1 {
		t.Fatalf("first pass created local=%d remote=%d, want 1/2", stats.CreatedLocal, stats.CreatedRemote)
	}

	stats, err = e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if stats.total() != 0 {
		t.Errorf("second pass performed %d actions, want 0", stats.total())
	}
	if local.count() != 3 || cal.count() != 3 || links.count() != 3 {
		t.Errorf("converged state local=%d remote=%d links=%d, want 3/3/3",
			local.count(), cal.count(), links.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 11: Pull failure aborts with a staged error, nothing applied
// ---------------------------------------------------------------------------

func TestPass_PullFailure_ReportsStage(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	local := newMockLocal(ev)
	cal := newMockCalendar()
	cal.listErr = errors.New("remote unreachable")

	e := newTestEngine(local, newMockLinks(), cal, &mockSnapshotter{})
	_, err := e.RunPass(context.Background())

	var passErr *PassError
	if !errors.As(err, &passErr) {
		t.Fatalf("error = %v, want *PassError", err)
	}
	if passErr.Stage != StagePulling {
		t.Errorf("stage = %s, want pulling", passErr.Stage)
	}
	if passErr.Applied != 0 {
		t.Errorf("applied = %d, want 0", passErr.Applied)
	}
	if local.count() != 1 || cal.count() != 0 {
		t.Errorf("state mutated despite pull failure")
	}
	if e.Stage() != StageIdle {
		t.Errorf("stage after pass = %s, want idle", e.Stage())
	}
}

// ---------------------------------------------------------------------------
// Scenario 12: Merge batch failure rolls the pass, push never runs
// ---------------------------------------------------------------------------

func TestPass_MergeFailure_AbortsBeforePush(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	local := newMockLocal(ev)
	local.failBatch = true

	cal := newMockCalendar()
	cal.seed("r-1", "Planning", passTime.Add(48*time.Hour), passTime.Add(49*time.Hour))

	e := newTestEngine(local, newMockLinks(), cal, &mockSnapshotter{})
	_, err := e.RunPass(context.Background())

	var passErr *PassError
	if !errors.As(err, &passErr) {
		t.Fatalf("error = %v, want *PassError", err)
	}
	if passErr.Stage != StageMerging {
		t.Errorf("stage = %s, want merging", passErr.Stage)
	}
	// The local-only event must not have been pushed.
	if cal.count() != 1 {
		t.Errorf("remote events = %d, want 1 (push skipped)", cal.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario 13: Push failure reports the stage and counts what landed
// ---------------------------------------------------------------------------

func TestPass_PushFailure_ReportsStageAndApplied(t *testing.T) {
	ev := newLocalEvent("Dentist", passTime.Add(4*time.Hour))
	local := newMockLocal(ev)
	cal := newMockCalendar()
	cal.seed("r-1", "Planning", passTime.Add(48*time.Hour), passTime.Add(49*time.Hour))
	cal.createErr = errors.New("remote rejected the create")

	e := newTestEngine(local, newMockLinks(), cal, &mockSnapshotter{})
	stats, err := e.RunPass(context.Background())

	var passErr *PassError
	if !errors.As(err, &passErr) {
		t.Fatalf("error = %v, want *PassError", err)
	}
	if passErr.Stage != StagePushing {
		t.Errorf("stage = %s, want pushing", passErr.Stage)
	}
	// The remote-only event merged before the push died.
	if passErr.Applied != 1 {
		t.Errorf("applied = %d, want 1", passErr.Applied)
	}
	if stats.CreatedLocal != 1 || stats.Errors != 1 {
		t.Errorf("created_local=%d errors=%d, want 1/1", stats.CreatedLocal, stats.Errors)
	}
	if e.Stage() != StageIdle {
		t.Errorf("stage after pass = %s, want idle", e.Stage())
	}
}
