package store

import "errors"

var (
	// ErrNotFound is returned when no event with the requested id exists.
	ErrNotFound = errors.New("event not found")

	// ErrInvalid is returned when an event violates a structural invariant,
	// e.g. an empty title or start >= end. The wrapped message carries the
	// reason.
	ErrInvalid = errors.New("invalid event")
)
