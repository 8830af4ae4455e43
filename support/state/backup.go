package state

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

// BackupInfo describes one backup file for listing.
type BackupInfo struct {
	Stack   string    `json:"stack"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size_bytes"`
	ModTime time.Time `json:"modified_at"`
}

// Backup snapshots the live record for stack into a gzip backup, optionally
// tagged with a label, and returns the backup path.
func (s *Store) Backup(ctx context.Context, stack, label string) (string, error) {
	var path string
	err := s.withLock(ctx, stack, func() error {
		if _, statErr := os.Stat(s.layout.DeploymentFile(stack)); statErr != nil {
			if os.IsNotExist(statErr) {
				return fmt.Errorf("stack %q: %w", stack, ErrNotFound)
			}
			return statErr
		}
		created, backupErr := s.backupLocked(stack, label)
		path = created
		return backupErr
	})
	return path, err
}

// backupLocked copies the live record's current bytes into a timestamped
// gzip file and prunes old backups past the retention bound. The caller
// holds the lock.
func (s *Store) backupLocked(stack, label string) (string, error) {
	raw, err := os.ReadFile(s.layout.DeploymentFile(stack))
	if err != nil {
		return "", fmt.Errorf("cannot read state for backup of stack %q: %w", stack, err)
	}
	dir := s.layout.BackupsDir(stack)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create backup directory %s: %w", dir, err)
	}

	path := backupPath(dir, stack, label, time.Now().UTC())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("cannot create backup %s: %w", path, err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(raw); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("cannot write backup %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("cannot finish backup %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("cannot close backup %s: %w", path, err)
	}

	if err := s.pruneLocked(stack); err != nil {
		// Retention is housekeeping; the backup itself succeeded.
		s.log.Error(err, "Failed to prune old backups", "stack", stack)
	}
	return path, nil
}

// backupPath builds `<stack>[-<label>]-<timestamp>.json.gz`, appending a
// numeric suffix when two backups land in the same tick.
func backupPath(dir, stack, label string, t time.Time) string {
	base := stack
	if label != "" {
		base += "-" + label
	}
	stamp := t.Format("20060102T150405") + fmt.Sprintf("%04dZ", t.Nanosecond()/100000)
	name := fmt.Sprintf("%s-%s.json.gz", base, stamp)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%s-%d.json.gz", base, stamp, i))
	}
}

// pruneLocked deletes the oldest backups beyond the retention bound.
func (s *Store) pruneLocked(stack string) error {
	backups, err := s.listBackupsDir(stack)
	if err != nil {
		return err
	}
	if len(backups) <= s.retention {
		return nil
	}
	// listBackupsDir sorts newest first; everything past retention goes.
	for _, b := range backups[s.retention:] {
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("cannot remove old backup %s: %w", b.Path, err)
		}
	}
	return nil
}

// ListBackups returns the backups for stack, newest first. An empty stack
// lists backups for every stack.
func (s *Store) ListBackups(ctx context.Context, stack string) ([]BackupInfo, error) {
	if stack != "" {
		var backups []BackupInfo
		err := s.withLock(ctx, stack, func() error {
			list, listErr := s.listBackupsDir(stack)
			backups = list
			return listErr
		})
		return backups, err
	}

	root := filepath.Join(s.layout.Base, "backups")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list backups: %w", err)
	}
	var all []BackupInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		list, listErr := s.listBackupsDir(e.Name())
		if listErr != nil {
			return nil, listErr
		}
		all = append(all, list...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ModTime.After(all[j].ModTime) })
	return all, nil
}

func (s *Store) listBackupsDir(stack string) ([]BackupInfo, error) {
	dir := s.layout.BackupsDir(stack)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list backups for stack %q: %w", stack, err)
	}
	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json.gz") {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			return nil, infoErr
		}
		backups = append(backups, BackupInfo{
			Stack:   stack,
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	// Backup names embed their creation time, so the name ordering is the
	// chronological ordering even when filesystem mtimes are coarse.
	sort.Slice(backups, func(i, j int) bool { return backups[i].Name > backups[j].Name })
	return backups, nil
}

// Restore replaces the live record for stack with the given backup file,
// migrating and validating its content first.
func (s *Store) Restore(ctx context.Context, stack, backupFile string) (*api.DeploymentState, error) {
	var st *api.DeploymentState
	err := s.withLock(ctx, stack, func() error {
		restored, restoreErr := s.restoreFileLocked(stack, backupFile)
		st = restored
		return restoreErr
	})
	return st, err
}

// RestoreLatest replaces the live record with the most recent backup.
func (s *Store) RestoreLatest(ctx context.Context, stack string) (*api.DeploymentState, error) {
	var st *api.DeploymentState
	err := s.withLock(ctx, stack, func() error {
		restored, restoreErr := s.restoreLatestLocked(stack)
		st = restored
		return restoreErr
	})
	return st, err
}

func (s *Store) restoreLatestLocked(stack string) (*api.DeploymentState, error) {
	backups, err := s.listBackupsDir(stack)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("no backups available for stack %q", stack)
	}
	return s.restoreFileLocked(stack, backups[0].Path)
}

func (s *Store) restoreFileLocked(stack, backupFile string) (*api.DeploymentState, error) {
	f, err := os.Open(backupFile)
	if err != nil {
		return nil, fmt.Errorf("cannot open backup %s: %w", backupFile, err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("backup %s is not a gzip file: %w", backupFile, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("cannot read backup %s: %w", backupFile, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("backup %s is truncated: %w", backupFile, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewIntegrityError(IntegrityCorruption, stack, backupFile, err)
	}
	version := versionOf(doc)
	if version > api.SchemaVersion {
		return nil, NewIntegrityError(IntegrityMigration, stack, backupFile,
			fmt.Errorf("backup has schema version %d, this build supports up to %d", version, api.SchemaVersion))
	}
	if version < api.SchemaVersion {
		doc, err = s.migrator.Upgrade(doc, version, api.SchemaVersion)
		if err != nil {
			return nil, NewIntegrityError(IntegrityMigration, stack, backupFile, err)
		}
	}
	st, err := decodeState(doc)
	if err != nil {
		return nil, NewIntegrityError(IntegrityCorruption, stack, backupFile, err)
	}
	if err := st.Validate(); err != nil {
		return nil, NewIntegrityError(IntegrityValidation, stack, backupFile, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cannot serialise restored state for stack %q: %w", stack, err)
	}
	if err := s.writeAtomic(s.layout.DeploymentFile(stack), data); err != nil {
		return nil, err
	}
	return st, nil
}
