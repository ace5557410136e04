package model

// OpKind enumerates the closed set of operations the resolver can produce.
type OpKind int

const (
	OpUnknown OpKind = iota
	OpCreate
	OpUpdate
	OpDelete
	OpQuery
	OpStats
	OpBackup
	OpRestore
)

// String returns the operation kind's label.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpQuery:
		return "query"
	case OpStats:
		return "stats"
	case OpBackup:
		return "backup"
	case OpRestore:
		return "restore"
	default:
		return "unknown"
	}
}

// Operation is a validated, typed action against the event store. Operations
// are produced exclusively by the resolver and are immutable once constructed;
// only the fields relevant to Kind are populated.
type Operation struct {
	Kind OpKind

	// Draft is set for OpCreate.
	Draft *EventDraft

	// TargetID is set for OpUpdate and OpDelete.
	TargetID string

	// Patch is set for OpUpdate.
	Patch *EventPatch

	// Filter is set for OpQuery.
	Filter *Filter

	// SnapshotID is set for OpRestore.
	SnapshotID string

	// Reply is an optional assistant message accompanying the operation when
	// it was resolved from free text. Purely informational.
	Reply string
}
