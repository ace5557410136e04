package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"schedassist/internal/remote"
	"schedassist/internal/state"
	"schedassist/internal/store"
)

const (
	otelScope       = "schedassist/syncengine"
	spanPass        = "sync.pass"
	metricCreated   = "schedassist.sync.events.created"
	metricUpdated   = "schedassist.sync.events.updated"
	metricDeleted   = "schedassist.sync.events.deleted"
	metricConflicts = "schedassist.sync.conflicts"
	metricErrors    = "schedassist.sync.errors"
)

// Engine runs sync passes. It is stateless between passes — every durable
// fact lives in the event store or the link store, which is what makes an
// interrupted pass safe to re-run.
type Engine struct {
	store   LocalStore
	links   LinkStore
	cal     remote.Calendar
	backups Snapshotter
	log     *slog.Logger

	// lookBack and lookAhead bound the remote window around the pass time.
	lookBack  time.Duration
	lookAhead time.Duration

	now   func() time.Time
	stage atomic.Int32

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntCreated   metric.Int64Counter
	cntUpdated   metric.Int64Counter
	cntDeleted   metric.Int64Counter
	cntConflicts metric.Int64Counter
	cntErrors    metric.Int64Counter
}

// NewEngine wires an Engine to its collaborators.
func NewEngine(st LocalStore, links LinkStore, cal remote.Calendar, backups Snapshotter,
	lookBack, lookAhead time.Duration, logger *slog.Logger) *Engine {

	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		store:     st,
		links:     links,
		cal:       cal,
		backups:   backups,
		log:       logger,
		lookBack:  lookBack,
		lookAhead: lookAhead,
		now:       time.Now,

		tracer:       tracer,
		cntCreated:   mustCounter(metricCreated, "Number of events created during sync"),
		cntUpdated:   mustCounter(metricUpdated, "Number of events updated during sync"),
		cntDeleted:   mustCounter(metricDeleted, "Number of events deleted during sync"),
		cntConflicts: mustCounter(metricConflicts, "Number of conflict resolutions during sync"),
		cntErrors:    mustCounter(metricErrors, "Number of errors encountered during sync"),
	}
}

// Stage reports where the current (or last) pass is.
func (e *Engine) Stage() Stage { return Stage(e.stage.Load()) }

func (e *Engine) setStage(s Stage) { e.stage.Store(int32(s)) }

// RunPass performs one full sync pass, recording a trace span and metrics.
// Individual action failures are counted and the pass continues; a stage-level
// failure aborts with a [*PassError].
func (e *Engine) RunPass(ctx context.Context) (Stats, error) {
	ctx, span := e.tracer.Start(ctx, spanPass)
	defer span.End()
	defer e.setStage(StageIdle)

	stats, err := e.runPass(ctx)

	if n := stats.CreatedLocal + stats.CreatedRemote; n > 0 {
		e.cntCreated.Add(ctx, int64(n))
	}
	if n := stats.UpdatedLocal + stats.UpdatedRemote; n > 0 {
		e.cntUpdated.Add(ctx, int64(n))
	}
	if n := stats.DeletedLocal + stats.DeletedRemote; n > 0 {
		e.cntDeleted.Add(ctx, int64(n))
	}
	if stats.Conflicts > 0 {
		e.cntConflicts.Add(ctx, int64(stats.Conflicts))
	}
	if stats.Errors > 0 {
		e.cntErrors.Add(ctx, int64(stats.Errors))
	}

	span.SetAttributes(
		attribute.Int("sync.created_local", stats.CreatedLocal),
		attribute.Int("sync.created_remote", stats.CreatedRemote),
		attribute.Int("sync.updated_local", stats.UpdatedLocal),
		attribute.Int("sync.updated_remote", stats.UpdatedRemote),
		attribute.Int("sync.deleted_local", stats.DeletedLocal),
		attribute.Int("sync.deleted_remote", stats.DeletedRemote),
		attribute.Int("sync.adopted", stats.Adopted),
		attribute.Int("sync.conflicts", stats.Conflicts),
		attribute.Int("sync.stale", stats.Stale),
		attribute.Int("sync.errors", stats.Errors),
	)
	if err != nil {
		span.RecordError(err)
	}
	return stats, err
}

func (e *Engine) runPass(ctx context.Context) (Stats, error) {
	var stats Stats
	now := e.now()

	// Pull.
	e.setStage(StagePulling)
	from := now.Add(-e.lookBack)
	to := now.Add(e.lookAhead)
	remotes, err := e.cal.ListEvents(ctx, from, to)
	if err != nil {
		return stats, &PassError{Stage: StagePulling, Err: err}
	}

	// Diff.
	e.setStage(StageDiffing)
	links, err := e.links.All(ctx)
	if err != nil {
		return stats, &PassError{Stage: StageDiffing, Err: err}
	}
	locals := e.store.All(true)
	plan := diff(locals, links, remotes)

	// Merge: apply all local-side changes in one batch, snapshot first.
	e.setStage(StageMerging)
	var firstErr error
	mergeStats, mergeErr := e.merge(ctx, plan, now, len(locals) > 0)
	stats = mergeStats
	if mergeErr != nil {
		return stats, mergeErr
	}

	// Push.
	e.setStage(StagePushing)
	for _, act := range plan {
		var actErr error
		switch act.kind {
		case actionCreateRemote:
			actErr = e.pushCreate(ctx, act, now, &stats)
		case actionUpdateRemote:
			actErr = e.pushUpdate(ctx, act, now, &stats)
		case actionDeleteRemote:
			actErr = e.pushDelete(ctx, act, now, &stats)
		case actionDropLink:
			actErr = e.dropLink(ctx, act, now, &stats)
		}
		if actErr != nil {
			e.log.Error("sync action failed", "stage", StagePushing.String(), "error", actErr)
			stats.Errors++
			if firstErr == nil {
				firstErr = actErr
			}
		}
	}

	e.log.Info("sync pass complete",
		"created_local", stats.CreatedLocal,
		"created_remote", stats.CreatedRemote,
		"updated_local", stats.UpdatedLocal,
		"updated_remote", stats.UpdatedRemote,
		"deleted_local", stats.DeletedLocal,
		"deleted_remote", stats.DeletedRemote,
		"adopted", stats.Adopted,
		"conflicts", stats.Conflicts,
		"stale", stats.Stale,
		"errors", stats.Errors,
	)
	if firstErr != nil {
		return stats, &PassError{Stage: StagePushing, Applied: stats.total(), Err: firstErr}
	}
	return stats, nil
}

// merge executes the merge-stage actions: one atomic batch against the event
// store, then the corresponding link writes.
func (e *Engine) merge(ctx context.Context, plan []action, now time.Time, haveLocalData bool) (Stats, error) {
	var stats Stats
	var changes []store.Change
	var linkUpserts []*state.Link
	var linkDeletes []string

	for _, act := range plan {
		switch act.kind {
		case actionCreateLocal:
			ev := fromRemote(act.remote, now)
			changes = append(changes, store.Change{Put: &ev})
			if act.link != nil {
				// Re-materialising a tracked remote whose local copy vanished:
				// the stale link still claims this remote ref and must go
				// before the fresh link is written.
				linkDeletes = append(linkDeletes, act.link.LocalID)
			}
			linkUpserts = append(linkUpserts, &state.Link{
				LocalID:            ev.ID,
				RemoteRef:          act.remote.Ref,
				LastSyncHash:       ev.ContentHash(),
				LastSyncedRevision: act.remote.Revision,
				LastSyncedAt:       now,
			})
			stats.CreatedLocal++

		case actionUpdateLocal:
			merged := mergeRemote(act.local, act.remote, now)
			changes = append(changes, store.Change{Put: &merged})
			linkUpserts = append(linkUpserts, &state.Link{
				LocalID:            merged.ID,
				RemoteRef:          act.remote.Ref,
				LastSyncHash:       merged.ContentHash(),
				LastSyncedRevision: act.remote.Revision,
				LastSyncedAt:       now,
			})
			stats.UpdatedLocal++
			if act.conflict {
				e.log.Info("conflict resolved remote-wins",
					"title", act.remote.Title, "local_id", act.local.ID)
				stats.Conflicts++
			}

		case actionDeleteLocal:
			// Remote removal: tombstone locally and drop the link. The now
			// unlinked tombstone is reaped by the next compaction.
			changes = append(changes, store.Change{Delete: act.local.ID})
			linkDeletes = append(linkDeletes, act.local.ID)
			stats.DeletedLocal++

		case actionAdopt:
			linkUpserts = append(linkUpserts, &state.Link{
				LocalID:            act.local.ID,
				RemoteRef:          act.remote.Ref,
				LastSyncHash:       act.local.ContentHash(),
				LastSyncedRevision: act.remote.Revision,
				LastSyncedAt:       now,
			})
			stats.Adopted++
		}
	}

	// Pushing a tombstone purges the local record, so a deleteRemote-only
	// plan mutates local data too and needs the same snapshot guard.
	willPurge := false
	for _, act := range plan {
		if act.kind == actionDeleteRemote {
			willPurge = true
			break
		}
	}

	if len(changes) > 0 || willPurge {
		// A first run with an empty local collection has nothing to protect.
		if haveLocalData {
			if _, err := e.backups.Snapshot("pre-merge", now); err != nil {
				return Stats{}, &PassError{Stage: StageMerging, Err: fmt.Errorf("pre-merge snapshot: %w", err)}
			}
		}
	}
	if len(changes) > 0 {
		if err := e.store.ApplyBatch(changes, now); err != nil {
			return Stats{}, &PassError{Stage: StageMerging, Err: err}
		}
	}

	// Deletes first: an upsert may reuse a remote ref a retired link still
	// holds, and remote_ref is unique in the link store.
	for _, id := range linkDeletes {
		if err := e.links.Delete(ctx, id); err != nil {
			e.log.Error("link delete failed", "local_id", id, "error", err)
			stats.Errors++
		}
	}
	for _, link := range linkUpserts {
		if err := e.links.Upsert(ctx, link); err != nil {
			e.log.Error("link upsert failed", "local_id", link.LocalID, "error", err)
			stats.Errors++
		}
	}
	return stats, nil
}

// pushCreate creates the event remotely and records the link plus the local
// remote_ref backfill.
func (e *Engine) pushCreate(ctx context.Context, act action, now time.Time, stats *Stats) error {
	ref, revision, err := e.cal.CreateEvent(ctx, toRemote(act.local))
	if err != nil {
		return fmt.Errorf("creating %q remotely: %w", act.local.Title, err)
	}

	linked := act.local.Clone()
	linked.RemoteRef = ref
	if err := e.store.Put(linked); err != nil {
		return fmt.Errorf("recording remote ref for %q: %w", act.local.Title, err)
	}
	if err := e.links.Upsert(ctx, &state.Link{
		LocalID:            linked.ID,
		RemoteRef:          ref,
		LastSyncHash:       linked.ContentHash(),
		LastSyncedRevision: revision,
		LastSyncedAt:       now,
	}); err != nil {
		return fmt.Errorf("linking %q: %w", act.local.Title, err)
	}
	stats.CreatedRemote++
	return nil
}

// pushUpdate overwrites the remote copy, conditional on the last observed
// revision. A lost race is deferred: the next pass re-pulls and remote wins.
func (e *Engine) pushUpdate(ctx context.Context, act action, now time.Time, stats *Stats) error {
	revision, err := e.cal.UpdateEvent(ctx, act.link.RemoteRef, toRemote(act.local), act.link.LastSyncedRevision)
	if errors.Is(err, remote.ErrStaleRevision) {
		e.log.Info("push lost revision race, deferring to next pass",
			"title", act.local.Title, "remote_ref", act.link.RemoteRef)
		stats.Stale++
		return nil
	}
	if err != nil {
		return fmt.Errorf("updating %q remotely: %w", act.local.Title, err)
	}

	act.link.LastSyncHash = act.local.ContentHash()
	act.link.LastSyncedRevision = revision
	act.link.LastSyncedAt = now
	if err := e.links.Upsert(ctx, act.link); err != nil {
		return fmt.Errorf("relinking %q: %w", act.local.Title, err)
	}
	stats.UpdatedRemote++
	return nil
}

// pushDelete propagates a local tombstone: remote delete, then local purge,
// then the link is dropped. An already missing remote copy counts as
// confirmation.
func (e *Engine) pushDelete(ctx context.Context, act action, now time.Time, stats *Stats) error {
	err := e.cal.DeleteEvent(ctx, act.link.RemoteRef, act.link.LastSyncedRevision)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		// Already gone.
	case errors.Is(err, remote.ErrStaleRevision):
		e.log.Info("delete lost revision race, deferring to next pass",
			"title", act.local.Title, "remote_ref", act.link.RemoteRef)
		stats.Stale++
		return nil
	case err != nil:
		return fmt.Errorf("deleting %q remotely: %w", act.local.Title, err)
	}

	if err := e.store.ApplyBatch([]store.Change{{Purge: act.local.ID}}, now); err != nil {
		return fmt.Errorf("purging %q: %w", act.local.Title, err)
	}
	if err := e.links.Delete(ctx, act.local.ID); err != nil {
		return fmt.Errorf("unlinking %q: %w", act.local.Title, err)
	}
	stats.DeletedRemote++
	return nil
}

// dropLink forgets a link whose pair is gone. A leftover local tombstone is
// now unlinked and gets reaped by compaction.
func (e *Engine) dropLink(ctx context.Context, act action, _ time.Time, _ *Stats) error {
	return e.links.Delete(ctx, act.link.LocalID)
}
