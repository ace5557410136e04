// Package state manages the SQLite database that links local events to their
// remote calendar counterparts. A link records the remote ref, the revision
// last seen from the remote, and the content hash of the local event at the
// time of the last successful sync.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. The sync engine owns every record in here.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_links (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    local_id             TEXT    NOT NULL,
    remote_ref           TEXT    NOT NULL,
    last_sync_hash       TEXT    NOT NULL DEFAULT '',
    last_synced_revision TEXT    NOT NULL DEFAULT '',
    last_synced_at       TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_local_id   ON sync_links (local_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_remote_ref ON sync_links (remote_ref);
`

// Link is a single local↔remote identity and version record.
type Link struct {
	ID int64

	// LocalID is the event store id.
	LocalID string

	// RemoteRef is the opaque remote calendar identifier.
	RemoteRef string

	// LastSyncHash is the local event's content hash at the last successful
	// sync. A mismatch against the current hash means the local side changed.
	LastSyncHash string

	// LastSyncedRevision is the remote revision token (etag) last observed.
	// A mismatch against the current remote revision means the remote side
	// changed.
	LastSyncedRevision string

	// LastSyncedAt records when the link was last confirmed.
	LastSyncedAt time.Time
}

// Store is the SQLite-backed link repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the link database at path, applies the schema, and
// configures WAL mode.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const linkColumns = `id, local_id, remote_ref, last_sync_hash, last_synced_revision, last_synced_at`

// GetByLocalID returns the link for the given event store id, or (nil, nil)
// if the event has never been synced.
func (s *Store) GetByLocalID(ctx context.Context, localID string) (*Link, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM sync_links WHERE local_id = ?`, localID)
	return scanLink(row)
}

// All returns every link.
func (s *Store) All(ctx context.Context) ([]*Link, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM sync_links`)
	if err != nil {
		return nil, fmt.Errorf("querying sync links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []*Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Upsert inserts or replaces the link keyed by local id. The link's ID field
// is updated with the row id after insert.
func (s *Store) Upsert(ctx context.Context, link *Link) error {
	const q = `
		INSERT INTO sync_links
		    (local_id, remote_ref, last_sync_hash, last_synced_revision, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
		    remote_ref           = excluded.remote_ref,
		    last_sync_hash       = excluded.last_sync_hash,
		    last_synced_revision = excluded.last_synced_revision,
		    last_synced_at       = excluded.last_synced_at`

	res, err := s.db.ExecContext(ctx, q,
		link.LocalID,
		link.RemoteRef,
		link.LastSyncHash,
		link.LastSyncedRevision,
		formatTime(link.LastSyncedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting link for %q: %w", link.LocalID, err)
	}
	id, err := res.LastInsertId()
	if err == nil && id > 0 {
		link.ID = id
	}
	return nil
}

// Delete removes the link for the given local id. Deleting a missing link is
// not an error; the engine drops links opportunistically while re-running
// interrupted passes.
func (s *Store) Delete(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_links WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("deleting link for %q: %w", localID, err)
	}
	return nil
}

// Invalidate clears the stored hash for the given local id, forcing the next
// diff to treat the local side as changed. The link itself is kept.
func (s *Store) Invalidate(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sync_links SET last_sync_hash = '' WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("invalidating link for %q: %w", localID, err)
	}
	return nil
}

// LinkedLocalIDs returns the set of local ids that currently have a link.
// Compaction uses this to keep synced tombstones alive until the remote
// deletion is confirmed.
func (s *Store) LinkedLocalIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT local_id FROM sync_links`)
	if err != nil {
		return nil, fmt.Errorf("querying linked ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	linked := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning linked id: %w", err)
		}
		linked[id] = true
	}
	return linked, rows.Err()
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scanLink can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*Link, error) {
	var link Link
	var syncedAt string

	err := s.Scan(
		&link.ID,
		&link.LocalID,
		&link.RemoteRef,
		&link.LastSyncHash,
		&link.LastSyncedRevision,
		&syncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning link row: %w", err)
	}

	link.LastSyncedAt, _ = parseTime(syncedAt)
	return &link, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
