package syncengine

import "fmt"

// Stage identifies where in a sync pass the engine currently is. A pass moves
// Idle → Pulling → Diffing → Merging → Pushing → Idle; a failed pass reports
// the stage it died in via [PassError].
type Stage int

const (
	StageIdle Stage = iota
	StagePulling
	StageDiffing
	StageMerging
	StagePushing
)

func (s Stage) String() string {
	switch s {
	case StagePulling:
		return "pulling"
	case StageDiffing:
		return "diffing"
	case StageMerging:
		return "merging"
	case StagePushing:
		return "pushing"
	default:
		return "idle"
	}
}

// PassError reports an unrecoverable pass failure. Applied counts the
// mutations that landed before the failure; everything applied stays applied,
// and the next pass picks up from the durable state.
type PassError struct {
	Stage   Stage
	Applied int
	Err     error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("sync pass failed while %s (%d actions applied): %v", e.Stage, e.Applied, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Stats counts the mutations of a single sync pass.
type Stats struct {
	CreatedLocal  int
	CreatedRemote int
	UpdatedLocal  int
	UpdatedRemote int
	DeletedLocal  int
	DeletedRemote int

	// Adopted counts unlinked local/remote pairs linked by content match
	// instead of being duplicated.
	Adopted int

	// Conflicts counts two-sided changes resolved remote-wins.
	Conflicts int

	// Stale counts pushes that lost a revision race and were deferred to the
	// next pass.
	Stale int

	Errors int
}

func (s Stats) total() int {
	return s.CreatedLocal + s.CreatedRemote + s.UpdatedLocal + s.UpdatedRemote +
		s.DeletedLocal + s.DeletedRemote + s.Adopted
}
