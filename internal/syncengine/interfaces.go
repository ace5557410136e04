// Package syncengine reconciles the local schedule with the remote calendar.
// A pass pulls the remote window, diffs it against the local collection and
// the link store, merges incoming remote changes locally (snapshot first),
// and pushes outgoing local changes with conditional writes.
//
// Passes are idempotent: all durable effects are keyed by links and content
// hashes, so re-running an interrupted pass converges instead of duplicating.
package syncengine

import (
	"context"
	"time"

	"schedassist/internal/backup"
	"schedassist/internal/model"
	"schedassist/internal/state"
	"schedassist/internal/store"
)

// LocalStore is the event collection access the engine needs.
// Implemented by [store.Store].
type LocalStore interface {
	All(includeDeleted bool) []model.Event
	Put(ev model.Event) error
	ApplyBatch(changes []store.Change, now time.Time) error
}

// LinkStore is the sync link access the engine needs.
// Implemented by [state.Store].
type LinkStore interface {
	All(ctx context.Context) ([]*state.Link, error)
	Upsert(ctx context.Context, link *state.Link) error
	Delete(ctx context.Context, localID string) error
}

// Snapshotter guards the merge: a snapshot is taken before any remote change
// touches local data. Implemented by [backup.Manager].
type Snapshotter interface {
	Snapshot(reason string, now time.Time) (backup.Snapshot, error)
}
