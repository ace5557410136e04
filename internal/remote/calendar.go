// Package remote talks to the remote calendar service. It provides a
// [Calendar] interface aligned to the sync engine's needs, an HTTP [Client]
// implementing it against the calendar's REST API, and a 3-attempt
// exponential-backoff [Retry] helper.
package remote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStaleRevision is returned when a conditional write loses: the remote
	// event changed since the revision the caller last observed. The caller
	// must re-pull before retrying.
	ErrStaleRevision = errors.New("remote revision is stale")

	// ErrNotFound is returned when the remote event no longer exists.
	ErrNotFound = errors.New("remote event not found")
)

// Event is the wire representation of a remote calendar entry.
type Event struct {
	// Ref is the remote's opaque identifier, assigned on create.
	Ref string `json:"ref,omitempty"`

	// Revision is the remote's version token for this entry. It changes on
	// every remote-side write and gates conditional updates and deletes.
	Revision string `json:"revision,omitempty"`

	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Calendar is the remote operation set the sync engine and conflict detector
// depend on. Defining it as an interface allows mock injection in tests.
type Calendar interface {
	// Ping validates connectivity and credentials.
	Ping(ctx context.Context) error

	// ListEvents returns all remote events starting within [from, to).
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)

	// CreateEvent creates the event remotely and returns its assigned ref
	// and initial revision.
	CreateEvent(ctx context.Context, ev Event) (ref, revision string, err error)

	// UpdateEvent overwrites the remote event iff its current revision equals
	// expectedRevision, returning the new revision. A lost race yields
	// [ErrStaleRevision].
	UpdateEvent(ctx context.Context, ref string, ev Event, expectedRevision string) (revision string, err error)

	// DeleteEvent removes the remote event iff its current revision equals
	// expectedRevision. A lost race yields [ErrStaleRevision]; an already
	// deleted event yields [ErrNotFound].
	DeleteEvent(ctx context.Context, ref, expectedRevision string) error
}
