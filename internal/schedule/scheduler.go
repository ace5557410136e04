// Package schedule executes resolved operations against the event store and
// its surrounding services. It is the single entry point the command surface
// talks to: the resolver decides WHAT to do, the scheduler does it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"schedassist/internal/backup"
	"schedassist/internal/conflict"
	"schedassist/internal/ics"
	"schedassist/internal/model"
	"schedassist/internal/state"
	"schedassist/internal/store"
	"schedassist/internal/syncengine"
)

// ErrUnsupported is returned when an operation kind has no handler.
var ErrUnsupported = errors.New("unsupported operation")

// LinkSource exposes the sync-link facts the scheduler needs: the linked-id
// set for compaction, and lookup plus invalidation for local edits of synced
// events.
type LinkSource interface {
	GetByLocalID(ctx context.Context, localID string) (*state.Link, error)
	Invalidate(ctx context.Context, localID string) error
	LinkedLocalIDs(ctx context.Context) (map[string]bool, error)
}

// Syncer runs sync passes. Nil when no remote calendar is configured.
type Syncer interface {
	RunPass(ctx context.Context) (syncengine.Stats, error)
	Stage() syncengine.Stage
}

// Result is the outcome of one applied operation. Only the fields relevant
// to the operation kind are populated.
type Result struct {
	// Event is the created or updated event.
	Event *model.Event

	// Events holds query results.
	Events []model.Event

	// Warnings lists advisory schedule collisions for creates and updates.
	// They never block the mutation.
	Warnings []conflict.Overlap

	// Report is set for stats operations.
	Report *store.Report

	// Snapshot is set for backup operations.
	Snapshot *backup.Snapshot

	// Message is a human-readable note: the assistant reply for free-text
	// operations that resolve to nothing actionable, or a status line.
	Message string
}

// Scheduler wires the event store to the backup manager, conflict detector,
// link store, and sync engine.
type Scheduler struct {
	store    *store.Store
	backups  *backup.Manager
	detector *conflict.Detector
	links    LinkSource
	syncer   Syncer
	log      *slog.Logger

	now func() time.Time
}

// New returns a Scheduler. links and syncer may be nil when sync is not
// configured; compaction then treats every tombstone as unlinked.
func New(st *store.Store, backups *backup.Manager, det *conflict.Detector,
	links LinkSource, syncer Syncer, logger *slog.Logger) *Scheduler {

	return &Scheduler{
		store:    st,
		backups:  backups,
		detector: det,
		links:    links,
		syncer:   syncer,
		log:      logger,
		now:      time.Now,
	}
}

// Apply executes one resolved operation.
func (s *Scheduler) Apply(ctx context.Context, op model.Operation) (*Result, error) {
	switch op.Kind {
	case model.OpCreate:
		return s.create(ctx, op)
	case model.OpUpdate:
		return s.update(ctx, op)
	case model.OpDelete:
		return s.delete(op)
	case model.OpQuery:
		return s.query(op)
	case model.OpStats:
		return s.stats()
	case model.OpBackup:
		return s.backup()
	case model.OpRestore:
		return s.restore(op)
	case model.OpUnknown:
		return &Result{Message: op.Reply}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, op.Kind)
	}
}

func (s *Scheduler) create(ctx context.Context, op model.Operation) (*Result, error) {
	now := s.now()
	ev := op.Draft.NewEvent(now)

	warnings := s.overlapWarnings(ctx, ev.Start, ev.End, "")
	if err := s.store.Put(ev); err != nil {
		return nil, err
	}

	s.log.Info("event created", "id", ev.ID, "title", ev.Title,
		"start", ev.Start, "conflicts", len(warnings))
	res := &Result{Event: &ev, Warnings: warnings, Message: op.Reply}
	return res, nil
}

func (s *Scheduler) update(ctx context.Context, op model.Operation) (*Result, error) {
	now := s.now()
	ev, err := s.store.Get(op.TargetID)
	if err != nil {
		return nil, err
	}
	if ev.Deleted {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, op.TargetID)
	}
	if err := op.Patch.Apply(&ev, now); err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalid, err)
	}

	warnings := s.overlapWarnings(ctx, ev.Start, ev.End, ev.ID)
	if err := s.store.Put(ev); err != nil {
		return nil, err
	}
	s.invalidateLink(ctx, ev.ID)

	s.log.Info("event updated", "id", ev.ID, "title", ev.Title, "conflicts", len(warnings))
	return &Result{Event: &ev, Warnings: warnings, Message: op.Reply}, nil
}

// invalidateLink clears the stored sync hash of a locally edited event, so the
// next pass pushes it even if the edit restored content the link still hashes
// to. Best effort: the content hash catches ordinary edits anyway.
func (s *Scheduler) invalidateLink(ctx context.Context, localID string) {
	if s.links == nil {
		return
	}
	link, err := s.links.GetByLocalID(ctx, localID)
	if err != nil {
		s.log.Warn("sync link lookup failed", "id", localID, "error", err)
		return
	}
	if link == nil {
		return
	}
	if err := s.links.Invalidate(ctx, localID); err != nil {
		s.log.Warn("sync link invalidation failed", "id", localID, "error", err)
	}
}

func (s *Scheduler) delete(op model.Operation) (*Result, error) {
	if err := s.store.Delete(op.TargetID, s.now()); err != nil {
		return nil, err
	}
	s.log.Info("event deleted", "id", op.TargetID)
	return &Result{Message: op.Reply}, nil
}

func (s *Scheduler) query(op model.Operation) (*Result, error) {
	f := op.Filter
	if f == nil {
		f = &model.Filter{}
	}
	events := s.store.Query(*f, s.now())
	return &Result{Events: events, Message: op.Reply}, nil
}

func (s *Scheduler) stats() (*Result, error) {
	report := s.store.Stats(s.now())
	return &Result{Report: &report}, nil
}

func (s *Scheduler) backup() (*Result, error) {
	snap, err := s.backups.Snapshot("manual", s.now())
	if err != nil {
		return nil, err
	}
	return &Result{Snapshot: &snap, Message: "backup " + snap.ID + " created"}, nil
}

func (s *Scheduler) restore(op model.Operation) (*Result, error) {
	if err := s.backups.Restore(op.SnapshotID, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Reload(); err != nil {
		return nil, fmt.Errorf("reloading schedule after restore: %w", err)
	}
	s.log.Info("backup restored", "id", op.SnapshotID, "events", s.store.Len())
	return &Result{Message: "restored " + op.SnapshotID}, nil
}

// overlapWarnings probes the local schedule for advisory collisions. A
// detector failure degrades to no warnings; it must never block a mutation.
func (s *Scheduler) overlapWarnings(ctx context.Context, start, end time.Time, ignoreID string) []conflict.Overlap {
	if s.detector == nil {
		return nil
	}
	overlaps, err := s.detector.FindOverlaps(ctx, start, end, conflict.ScopeLocal, ignoreID)
	if err != nil {
		s.log.Warn("conflict probe failed", "error", err)
		return nil
	}
	return overlaps
}

// FindFree returns free slots of at least minDuration within the horizon.
func (s *Scheduler) FindFree(ctx context.Context, minDuration time.Duration, horizonDays int) ([]conflict.Slot, error) {
	if s.detector == nil {
		return nil, errors.New("conflict detector not configured")
	}
	return s.detector.FreeSlots(ctx, s.now(), minDuration, horizonDays)
}

// Sync runs one sync pass against the remote calendar.
func (s *Scheduler) Sync(ctx context.Context) (syncengine.Stats, error) {
	if s.syncer == nil {
		return syncengine.Stats{}, errors.New("no remote calendar configured")
	}
	return s.syncer.RunPass(ctx)
}

// Compact purges tombstones whose remote removal is confirmed (or that were
// never synced), after taking a safety snapshot. Returns the purge count.
func (s *Scheduler) Compact(ctx context.Context) (int, error) {
	linked := map[string]bool{}
	if s.links != nil {
		var err error
		if linked, err = s.links.LinkedLocalIDs(ctx); err != nil {
			return 0, fmt.Errorf("loading sync links: %w", err)
		}
	}

	if _, err := s.backups.Snapshot("pre-compact", s.now()); err != nil {
		return 0, fmt.Errorf("pre-compact snapshot: %w", err)
	}
	return s.store.Compact(linked)
}

// ExportICS renders the live schedule as an iCalendar document.
func (s *Scheduler) ExportICS() ([]byte, error) {
	return ics.Export(s.store.All(false))
}

// ExportJSON renders the live schedule as a portable JSON document.
func (s *Scheduler) ExportJSON() ([]byte, error) {
	return ics.ExportJSON(s.store.All(false))
}

// ImportICS merges events from an iCalendar document into the schedule,
// snapshotting first. Events with a known id are overwritten, the rest are
// added. Returns the number of imported events.
func (s *Scheduler) ImportICS(body []byte) (int, error) {
	events, err := ics.Import(body, s.now())
	if err != nil {
		return 0, err
	}
	return s.merge(events)
}

// ImportJSON merges events from a portable JSON document, snapshotting first.
func (s *Scheduler) ImportJSON(body []byte) (int, error) {
	events, err := ics.ImportJSON(body)
	if err != nil {
		return 0, err
	}
	return s.merge(events)
}

func (s *Scheduler) merge(events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if s.store.Len() > 0 {
		if _, err := s.backups.Snapshot("pre-import", s.now()); err != nil {
			return 0, fmt.Errorf("pre-import snapshot: %w", err)
		}
	}

	now := s.now()
	changes := make([]store.Change, 0, len(events))
	for i := range events {
		changes = append(changes, store.Change{Put: &events[i]})
	}
	if err := s.store.ApplyBatch(changes, now); err != nil {
		return 0, err
	}
	s.log.Info("import complete", "events", len(events))
	return len(events), nil
}

// Backups lists the available snapshots, newest first.
func (s *Scheduler) Backups() ([]backup.Snapshot, error) {
	return s.backups.List()
}

// PruneBackups drops all but the newest keep snapshots.
func (s *Scheduler) PruneBackups(keep int) (int, error) {
	return s.backups.Prune(keep)
}
