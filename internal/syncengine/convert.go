package syncengine

import (
	"time"

	"github.com/google/uuid"

	"schedassist/internal/model"
	"schedassist/internal/remote"
)

// toRemote projects the sync-relevant fields onto the wire type. Tags,
// attendees, and priority are local-only facets the calendar does not carry.
func toRemote(ev *model.Event) remote.Event {
	return remote.Event{
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start.UTC(),
		End:         ev.End.UTC(),
	}
}

// fromRemote materialises a remote-only event as a new local event.
func fromRemote(rem *remote.Event, now time.Time) model.Event {
	now = now.UTC()
	return model.Event{
		ID:          uuid.NewString(),
		Title:       rem.Title,
		Description: rem.Description,
		Location:    rem.Location,
		Start:       rem.Start.UTC(),
		End:         rem.End.UTC(),
		RemoteRef:   rem.Ref,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// mergeRemote overwrites the local event with the remote copy's fields,
// keeping the local-only facets intact.
func mergeRemote(local *model.Event, rem *remote.Event, now time.Time) model.Event {
	merged := local.Clone()
	merged.Title = rem.Title
	merged.Description = rem.Description
	merged.Location = rem.Location
	merged.Start = rem.Start.UTC()
	merged.End = rem.End.UTC()
	merged.RemoteRef = rem.Ref
	merged.UpdatedAt = now.UTC()
	return merged
}
