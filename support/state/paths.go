// Package state persists deployment records as one JSON file per stack with
// advisory locking, gzip backups, schema migration on read, and recovery
// from the most recent backup when a record is damaged.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDirName is the directory under the user's home that holds all
// durable records.
const DefaultDirName = ".geusemaker"

// Layout resolves every path the tool persists to under one base directory.
type Layout struct {
	Base string
}

// DefaultLayout roots the layout in the user's home directory.
func DefaultLayout() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return Layout{Base: filepath.Join(home, DefaultDirName)}, nil
}

func (l Layout) DeploymentsDir() string { return filepath.Join(l.Base, "deployments") }
func (l Layout) BackupsDir(stack string) string {
	return filepath.Join(l.Base, "backups", stack)
}
func (l Layout) ArchiveDir() string    { return filepath.Join(l.Base, "archive") }
func (l Layout) CacheDir() string      { return filepath.Join(l.Base, "cache") }
func (l Layout) ConfigDir() string     { return filepath.Join(l.Base, "config") }
func (l Layout) MonitoringDir() string { return filepath.Join(l.Base, "monitoring") }
func (l Layout) LogsDir() string       { return filepath.Join(l.Base, "logs") }

// DeploymentFile is the live record for one stack.
func (l Layout) DeploymentFile(stack string) string {
	return filepath.Join(l.DeploymentsDir(), stack+".json")
}

// LockFile is the advisory lock guarding one stack's record and backups.
func (l Layout) LockFile(stack string) string {
	return l.DeploymentFile(stack) + ".lock"
}

// ArchiveFile is the resting place of a record after destruction.
func (l Layout) ArchiveFile(stack string, unix int64) string {
	return filepath.Join(l.ArchiveDir(), fmt.Sprintf("%s-%d.json", stack, unix))
}

// PIDFile tracks a background monitor process for one stack.
func (l Layout) PIDFile(stack string) string {
	return filepath.Join(l.MonitoringDir(), stack+".pid")
}

// MonitorOutLog and MonitorErrLog are where a background monitor's output
// streams land.
func (l Layout) MonitorOutLog(stack string) string {
	return filepath.Join(l.LogsDir(), stack+".monitor.out.log")
}

func (l Layout) MonitorErrLog(stack string) string {
	return filepath.Join(l.LogsDir(), stack+".monitor.err.log")
}

// EventLog is the newline-delimited JSON stream of monitoring events.
func (l Layout) EventLog() string {
	return filepath.Join(l.LogsDir(), "health_events.log")
}

// Ensure creates the full directory tree. It is idempotent.
func (l Layout) Ensure() error {
	dirs := []string{
		l.DeploymentsDir(),
		filepath.Join(l.Base, "backups"),
		l.ArchiveDir(),
		l.CacheDir(),
		l.ConfigDir(),
		l.MonitoringDir(),
		l.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}
