// Package backup manages point-in-time snapshots of the schedule file. A
// snapshot is a verbatim copy of the file under the backups directory, named
// after its creation time. Snapshots are taken on demand, before every
// restore, and before destructive bulk operations (import, sync merge,
// compaction).
package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	prefix = "schedule_backup_"
	suffix = ".json"

	// stampLayout is the timestamp embedded in snapshot file names,
	// e.g. schedule_backup_20240115_140230.json.
	stampLayout = "20060102_150405"
)

// Snapshot describes one backup file.
type Snapshot struct {
	// ID is the snapshot file name, unique within the backups directory.
	ID string

	// Path is the absolute location of the snapshot file.
	Path string

	// CreatedAt is the creation time parsed from the file name.
	CreatedAt time.Time

	// Size is the snapshot file size in bytes.
	Size int64
}

// Manager creates, lists, restores, and prunes snapshots of one schedule file.
type Manager struct {
	dir       string
	storePath string
	log       *slog.Logger
}

// New returns a Manager writing snapshots of storePath into dir.
func New(dir, storePath string, logger *slog.Logger) *Manager {
	return &Manager{dir: dir, storePath: storePath, log: logger}
}

// Snapshot copies the current schedule file into the backups directory and
// returns the created snapshot. reason is logged, not stored. A missing
// schedule file (nothing saved yet) is an error: there is nothing to protect.
func (m *Manager) Snapshot(reason string, now time.Time) (Snapshot, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return Snapshot{}, fmt.Errorf("creating backups directory: %w", err)
	}

	src, err := os.Open(m.storePath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening schedule file for backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	name := prefix + now.Format(stampLayout) + suffix
	path := filepath.Join(m.dir, name)

	// Two snapshots within the same second get numeric suffixes.
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s%s_%d%s", prefix, now.Format(stampLayout), n, suffix)
		path = filepath.Join(m.dir, name)
	}

	size, err := copyFile(src, path)
	if err != nil {
		return Snapshot{}, err
	}

	m.log.Info("snapshot created", "id", name, "reason", reason, "bytes", size)
	return Snapshot{ID: name, Path: path, CreatedAt: now, Size: size}, nil
}

// List returns all snapshots, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backups directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			ID:        name,
			Path:      filepath.Join(m.dir, name),
			CreatedAt: createdAt(name, info.ModTime()),
			Size:      info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID > snaps[j].ID
	})
	return snaps, nil
}

// Restore replaces the schedule file with the named snapshot. A safety
// snapshot of the current file is taken first, so a restore is itself
// reversible. The caller must reload the store afterwards.
func (m *Manager) Restore(id string, now time.Time) error {
	if id != filepath.Base(id) {
		return fmt.Errorf("invalid snapshot id %q", id)
	}
	path := filepath.Join(m.dir, id)
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot %q: %w", id, err)
	}
	defer func() { _ = src.Close() }()

	if _, err := os.Stat(m.storePath); err == nil {
		if _, err := m.Snapshot("pre-restore", now); err != nil {
			return fmt.Errorf("safety snapshot before restore: %w", err)
		}
	}

	// Write next to the schedule file, then rename, so the swap is atomic.
	if _, err := copyFile(src, m.storePath+".restore-tmp"); err != nil {
		return err
	}
	if err := os.Rename(m.storePath+".restore-tmp", m.storePath); err != nil {
		return fmt.Errorf("replacing schedule file: %w", err)
	}

	m.log.Info("snapshot restored", "id", id)
	return nil
}

// Prune deletes all but the newest keep snapshots and returns how many were
// removed. keep <= 0 deletes nothing.
func (m *Manager) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	snaps, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	removed := 0
	for _, s := range snaps[keep:] {
		if err := os.Remove(s.Path); err != nil {
			return removed, fmt.Errorf("removing snapshot %q: %w", s.ID, err)
		}
		removed++
	}
	m.log.Info("snapshots pruned", "removed", removed, "kept", keep)
	return removed, nil
}

// createdAt parses the timestamp out of a snapshot file name, falling back to
// the file's mtime for names it cannot parse (e.g. suffixed collisions).
func createdAt(name string, fallback time.Time) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	if i := strings.LastIndexByte(stamp, '_'); i > len(stampLayout)-1 {
		stamp = stamp[:len(stampLayout)]
	}
	t, err := time.ParseInLocation(stampLayout, stamp, time.Local)
	if err != nil {
		return fallback
	}
	return t
}

func copyFile(src io.Reader, dst string) (int64, error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", dst, err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("writing %q: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("syncing %q: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing %q: %w", dst, err)
	}
	return n, nil
}
