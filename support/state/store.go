package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/geusemaker/geusemaker/api"
)

const (
	// DefaultLockTimeout bounds how long a reader or writer waits for a
	// stack's advisory lock before failing fast.
	DefaultLockTimeout = 10 * time.Second
	// DefaultBackupRetention is how many backups per stack survive
	// pruning.
	DefaultBackupRetention = 10

	lockRetryInterval = 50 * time.Millisecond
)

// ErrNotFound marks a load for a stack with no live record.
var ErrNotFound = errors.New("no deployment record")

// Options configure a Store.
type Options struct {
	Layout Layout
	Log    logr.Logger
	// BackupRetention overrides DefaultBackupRetention when positive.
	BackupRetention int
	// LockTimeout overrides DefaultLockTimeout when positive.
	LockTimeout time.Duration
	// Migrator overrides the default migration chain; nil uses
	// DefaultMigrator.
	Migrator *Migrator
	// NoRecovery disables restoring from backups on damaged records;
	// integrity errors are returned to the caller instead.
	NoRecovery bool
}

// Store reads and writes deployment records. All access to one stack's
// record and backups is serialised through a per-stack advisory file lock.
type Store struct {
	layout      Layout
	log         logr.Logger
	retention   int
	lockTimeout time.Duration
	migrator    *Migrator
	noRecovery  bool
}

// New builds a Store and ensures the directory tree exists.
func New(opts Options) (*Store, error) {
	s := &Store{
		layout:      opts.Layout,
		log:         opts.Log,
		retention:   opts.BackupRetention,
		lockTimeout: opts.LockTimeout,
		migrator:    opts.Migrator,
		noRecovery:  opts.NoRecovery,
	}
	if s.layout.Base == "" {
		layout, err := DefaultLayout()
		if err != nil {
			return nil, err
		}
		s.layout = layout
	}
	if s.retention <= 0 {
		s.retention = DefaultBackupRetention
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}
	if s.migrator == nil {
		s.migrator = DefaultMigrator()
	}
	if err := s.layout.Ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// Layout exposes the resolved paths for callers that persist adjacent
// artifacts (monitor pid files, event logs).
func (s *Store) Layout() Layout { return s.layout }

// withLock runs fn while holding the stack's advisory lock, waiting at most
// the configured timeout to acquire it.
func (s *Store) withLock(ctx context.Context, stack string, fn func() error) error {
	fl := flock.New(s.layout.LockFile(stack))
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if !locked {
		if err == nil {
			err = lockCtx.Err()
		}
		return fmt.Errorf("timed out after %s waiting for lock on stack %q: %w", s.lockTimeout, stack, err)
	}
	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			s.log.Error(unlockErr, "Failed to release state lock", "stack", stack)
		}
	}()
	return fn()
}

// Save validates st, stamps the current schema version, and replaces the
// live record atomically, backing up any prior file first.
func (s *Store) Save(ctx context.Context, st *api.DeploymentState) error {
	if st == nil {
		return errors.New("cannot save nil state")
	}
	st.SchemaVersion = api.SchemaVersion
	if st.MigrationHistory == nil {
		st.MigrationHistory = []string{}
	}
	st.Touch()
	path := s.layout.DeploymentFile(st.StackName)
	if err := st.Validate(); err != nil {
		return NewIntegrityError(IntegrityValidation, st.StackName, path, err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialise state for stack %q: %w", st.StackName, err)
	}
	return s.withLock(ctx, st.StackName, func() error {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, backupErr := s.backupLocked(st.StackName, ""); backupErr != nil {
				return backupErr
			}
		}
		return s.writeAtomic(path, data)
	})
}

// Load reads, migrates and validates the record for stack. Damaged records
// are restored from the most recent backup unless recovery is disabled.
func (s *Store) Load(ctx context.Context, stack string) (*api.DeploymentState, error) {
	var st *api.DeploymentState
	err := s.withLock(ctx, stack, func() error {
		loaded, loadErr := s.loadLocked(stack, !s.noRecovery)
		st = loaded
		return loadErr
	})
	return st, err
}

func (s *Store) loadLocked(stack string, recover bool) (*api.DeploymentState, error) {
	path := s.layout.DeploymentFile(stack)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stack %q: %w", stack, ErrNotFound)
		}
		return nil, fmt.Errorf("cannot read state for stack %q: %w", stack, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s.recoverOrFail(stack, NewIntegrityError(IntegrityCorruption, stack, path, err), recover)
	}

	version := versionOf(doc)
	switch {
	case version > api.SchemaVersion:
		// A newer tool wrote this record; migrating down silently would
		// lose data.
		return nil, NewIntegrityError(IntegrityMigration, stack, path,
			fmt.Errorf("record has schema version %d, this build supports up to %d", version, api.SchemaVersion))
	case version < api.SchemaVersion:
		migrated, err := s.migrator.Upgrade(doc, version, api.SchemaVersion)
		if err != nil {
			return nil, NewIntegrityError(IntegrityMigration, stack, path, err)
		}
		st, err := decodeState(migrated)
		if err != nil {
			return s.recoverOrFail(stack, NewIntegrityError(IntegrityCorruption, stack, path, err), recover)
		}
		if err := st.Validate(); err != nil {
			return s.recoverOrFail(stack, NewIntegrityError(IntegrityValidation, stack, path, err), recover)
		}
		// Persist the migrated record so the next read is clean; the
		// pre-migration bytes survive as a backup.
		if _, err := s.backupLocked(stack, ""); err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("cannot serialise migrated state for stack %q: %w", stack, err)
		}
		if err := s.writeAtomic(path, data); err != nil {
			return nil, err
		}
		s.log.Info("Migrated deployment record", "stack", stack, "from", version, "to", api.SchemaVersion)
		return st, nil
	}

	st := &api.DeploymentState{}
	if err := json.Unmarshal(raw, st); err != nil {
		return s.recoverOrFail(stack, NewIntegrityError(IntegrityCorruption, stack, path, err), recover)
	}
	if err := st.Validate(); err != nil {
		return s.recoverOrFail(stack, NewIntegrityError(IntegrityValidation, stack, path, err), recover)
	}
	return st, nil
}

// recoverOrFail restores the newest backup in place of a damaged record, or
// surfaces the integrity error when recovery is off or impossible.
func (s *Store) recoverOrFail(stack string, ierr *IntegrityError, recover bool) (*api.DeploymentState, error) {
	if !recover {
		return nil, ierr
	}
	s.log.Error(ierr, "Deployment record is damaged, restoring most recent backup", "stack", stack)
	st, restoreErr := s.restoreLatestLocked(stack)
	if restoreErr != nil {
		return nil, utilerrors.NewAggregate([]error{ierr, restoreErr})
	}
	s.log.Info("Restored deployment record from backup", "stack", stack)
	return st, nil
}

// writeAtomic writes data to path via a temporary file and rename, so
// readers never observe a partial record.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("cannot write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}
	return nil
}

// Delete removes the live record for stack. Deleting an absent record is
// not an error, so destroy retries stay idempotent.
func (s *Store) Delete(ctx context.Context, stack string) error {
	return s.withLock(ctx, stack, func() error {
		err := os.Remove(s.layout.DeploymentFile(stack))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cannot delete record for stack %q: %w", stack, err)
		}
		return nil
	})
}

// Archive writes st under archive/ named by stack and unix timestamp,
// returning the archive path. The live record is left alone; callers delete
// it separately once archiving succeeded.
func (s *Store) Archive(ctx context.Context, st *api.DeploymentState) (string, error) {
	if st == nil {
		return "", errors.New("cannot archive nil state")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot serialise state for stack %q: %w", st.StackName, err)
	}
	path := s.layout.ArchiveFile(st.StackName, time.Now().Unix())
	err = s.withLock(ctx, st.StackName, func() error {
		return s.writeAtomic(path, data)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Exists reports whether a live record exists for stack.
func (s *Store) Exists(stack string) bool {
	_, err := os.Stat(s.layout.DeploymentFile(stack))
	return err == nil
}

// List returns the stack names with live records, sorted by the directory
// order of the filesystem.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.layout.DeploymentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list deployments: %w", err)
	}
	var stacks []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stacks = append(stacks, strings.TrimSuffix(name, ".json"))
	}
	return stacks, nil
}

// LoadAll loads every live record. Records that fail to load are skipped;
// their errors come back aggregated alongside the states that did load.
func (s *Store) LoadAll(ctx context.Context) ([]*api.DeploymentState, error) {
	stacks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var (
		states []*api.DeploymentState
		errs   []error
	)
	for _, stack := range stacks {
		st, loadErr := s.Load(ctx, stack)
		if loadErr != nil {
			errs = append(errs, loadErr)
			continue
		}
		states = append(states, st)
	}
	return states, utilerrors.NewAggregate(errs)
}

// decodeState round-trips a raw document into the typed state.
func decodeState(doc map[string]any) (*api.DeploymentState, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	st := &api.DeploymentState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
