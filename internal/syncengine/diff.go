package syncengine

import (
	"sort"

	"schedassist/internal/model"
	"schedassist/internal/remote"
	"schedassist/internal/state"
)

// actionKind describes a single mutation the diff wants performed.
type actionKind int

const (
	actionNone         actionKind = iota
	actionCreateRemote            // live local event with no link → create remotely
	actionCreateLocal             // remote event with no link → materialise locally
	actionAdopt                   // unlinked local and remote match by content → link only
	actionUpdateRemote            // local side changed → push
	actionUpdateLocal             // remote side changed (or two-sided conflict) → overwrite local
	actionDeleteRemote            // local tombstone → delete remotely, then purge and drop link
	actionDeleteLocal             // remote deleted a linked event → tombstone locally, drop link
	actionDropLink                // both sides gone → forget the link
)

// action pairs the decision with the entities it concerns. Fields not
// relevant to the kind are nil.
type action struct {
	kind   actionKind
	local  *model.Event
	remote *remote.Event
	link   *state.Link

	// conflict marks a two-sided change resolved remote-wins.
	conflict bool
}

// diff computes the action plan for one pass. It is a pure function of the
// three inputs and performs no I/O; executing the plan is the engine's job.
//
// Ordering: local-affecting actions first (the merge batch), then pushes.
// Within a group the order follows the sorted local id / remote ref so plans
// are deterministic.
func diff(locals []model.Event, links []*state.Link, remotes []remote.Event) []action {
	localByID := make(map[string]*model.Event, len(locals))
	for i := range locals {
		localByID[locals[i].ID] = &locals[i]
	}
	remoteByRef := make(map[string]*remote.Event, len(remotes))
	for i := range remotes {
		remoteByRef[remotes[i].Ref] = &remotes[i]
	}

	linkedLocal := make(map[string]bool, len(links))
	linkedRemote := make(map[string]bool, len(links))

	var plan []action

	// 1. Tracked pairs.
	for _, link := range links {
		linkedLocal[link.LocalID] = true
		linkedRemote[link.RemoteRef] = true

		local := localByID[link.LocalID]
		rem := remoteByRef[link.RemoteRef]

		plan = append(plan, decideTracked(link, local, rem))
	}

	// 2. Unlinked locals: adopt a content-matching unlinked remote if one
	// exists (an interrupted earlier pass may have created it already),
	// otherwise create remotely. Unlinked tombstones have nothing to push;
	// compaction reaps them.
	adopted := make(map[string]bool)
	for _, local := range sortedLocals(locals) {
		if linkedLocal[local.ID] {
			continue
		}
		if local.Deleted {
			continue
		}
		if match := findContentMatch(local, remotes, linkedRemote, adopted); match != nil {
			adopted[match.Ref] = true
			plan = append(plan, action{kind: actionAdopt, local: local, remote: match})
			continue
		}
		plan = append(plan, action{kind: actionCreateRemote, local: local})
	}

	// 3. Unlinked remotes that were not adopted → new local events.
	for _, rem := range sortedRemotes(remotes) {
		if linkedRemote[rem.Ref] || adopted[rem.Ref] {
			continue
		}
		plan = append(plan, action{kind: actionCreateLocal, remote: rem})
	}

	// Stable execution order: merge-stage actions before push-stage actions.
	sort.SliceStable(plan, func(i, j int) bool {
		return mergeFirst(plan[i].kind) && !mergeFirst(plan[j].kind)
	})
	return plan
}

// decideTracked resolves one linked pair.
func decideTracked(link *state.Link, local *model.Event, rem *remote.Event) action {
	switch {
	case local == nil && rem == nil:
		return action{kind: actionDropLink, link: link}

	case local == nil:
		// The local record vanished without the tombstone protocol, e.g. a
		// restore to an older snapshot. The remote copy is authoritative.
		return action{kind: actionCreateLocal, remote: rem, link: link}

	case rem == nil:
		if local.Deleted {
			// Remote removal already confirmed by its absence.
			return action{kind: actionDropLink, link: link, local: local}
		}
		return action{kind: actionDeleteLocal, local: local, link: link}
	}

	if local.Deleted {
		return action{kind: actionDeleteRemote, local: local, remote: rem, link: link}
	}

	localChanged := local.ContentHash() != link.LastSyncHash
	remoteChanged := rem.Revision != link.LastSyncedRevision

	switch {
	case !localChanged && !remoteChanged:
		return action{kind: actionNone, link: link}
	case localChanged && !remoteChanged:
		return action{kind: actionUpdateRemote, local: local, remote: rem, link: link}
	case !localChanged && remoteChanged:
		return action{kind: actionUpdateLocal, local: local, remote: rem, link: link}
	default:
		// Two-sided change. The remote copy wins; the pre-merge snapshot
		// preserves the losing local edit.
		return action{kind: actionUpdateLocal, local: local, remote: rem, link: link, conflict: true}
	}
}

// findContentMatch looks for an unlinked, unadopted remote event with the
// same title and identical start/end instants.
func findContentMatch(local *model.Event, remotes []remote.Event, linked, adopted map[string]bool) *remote.Event {
	for i := range remotes {
		rem := &remotes[i]
		if linked[rem.Ref] || adopted[rem.Ref] {
			continue
		}
		if rem.Title == local.Title && rem.Start.Equal(local.Start) && rem.End.Equal(local.End) {
			return rem
		}
	}
	return nil
}

// mergeFirst reports whether the action belongs to the merge stage.
func mergeFirst(k actionKind) bool {
	switch k {
	case actionCreateLocal, actionUpdateLocal, actionDeleteLocal, actionAdopt:
		return true
	default:
		return false
	}
}

func sortedLocals(locals []model.Event) []*model.Event {
	out := make([]*model.Event, 0, len(locals))
	for i := range locals {
		out = append(out, &locals[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedRemotes(remotes []remote.Event) []*remote.Event {
	out := make([]*remote.Event, 0, len(remotes))
	for i := range remotes {
		out = append(out, &remotes[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}
