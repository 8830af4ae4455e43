package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/log"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.Layout = Layout{Base: t.TempDir()}
	opts.Log = log.Discard()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func runningState(stack string) *api.DeploymentState {
	cfg := api.DefaultConfig()
	cfg.StackName = stack
	cfg.Tier = api.TierDev
	cfg.Region = "us-east-1"
	st := api.NewDeploymentState(cfg)
	st.Status = api.StatusRunning
	st.VPCID = "vpc-0123"
	st.SubnetIDs = []string{"subnet-1", "subnet-2"}
	st.SecurityGroupID = "sg-0123"
	st.EFSID = "fs-0123"
	st.InstanceID = "i-0123"
	st.Provenance.Mark(api.KindVPC, api.ProvenanceCreated)
	st.Provenance.Mark(api.KindInstance, api.ProvenanceCreated)
	return st
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	loaded, err := s.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if diff := cmp.Diff(st, loaded); diff != "" {
		t.Errorf("loaded state differs from saved (-want +got):\n%s", diff)
	}
	if loaded.SchemaVersion != api.SchemaVersion {
		t.Errorf("loaded schema version = %d, want %d", loaded.SchemaVersion, api.SchemaVersion)
	}
}

func TestLoadMissingStack(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsInvalidState(t *testing.T) {
	s := newTestStore(t, Options{})
	st := runningState("demo")
	st.VPCID = ""

	err := s.Save(context.Background(), st)
	var ierr *IntegrityError
	if !errors.As(err, &ierr) || ierr.Kind != IntegrityValidation {
		t.Fatalf("Save() = %v, want validation integrity error", err)
	}
}

func TestBackupsAccumulateAndPrune(t *testing.T) {
	const retention = 3
	s := newTestStore(t, Options{BackupRetention: retention})
	ctx := context.Background()
	st := runningState("demo")

	for writes := 1; writes <= retention+3; writes++ {
		st.InstanceID = fmt.Sprintf("i-%04d", writes)
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save() #%d = %v", writes, err)
		}
		backups, err := s.ListBackups(ctx, "demo")
		if err != nil {
			t.Fatalf("ListBackups() = %v", err)
		}
		want := writes - 1
		if want > retention {
			want = retention
		}
		if len(backups) != want {
			t.Fatalf("after %d writes got %d backups, want %d", writes, len(backups), want)
		}
	}
}

func TestCorruptRecordRecoversFromBackup(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	st.InstanceID = "i-first"
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	st.InstanceID = "i-second"
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	path := s.Layout().DeploymentFile("demo")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("corrupting record: %v", err)
	}

	loaded, err := s.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("Load() = %v, want recovery from backup", err)
	}
	// The newest backup holds the first save's content: backups snapshot
	// the file as it was before each write.
	if loaded.InstanceID != "i-first" {
		t.Errorf("recovered instance id = %q, want %q", loaded.InstanceID, "i-first")
	}

	// The live record is repaired in place.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading repaired record: %v", err)
	}
	if !json.Valid(raw) {
		t.Error("live record was not rewritten with valid JSON after recovery")
	}
}

func TestCorruptRecordWithoutRecoveryFails(t *testing.T) {
	s := newTestStore(t, Options{NoRecovery: true})
	ctx := context.Background()

	st := runningState("demo")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	path := s.Layout().DeploymentFile("demo")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("corrupting record: %v", err)
	}

	_, err := s.Load(ctx, "demo")
	var ierr *IntegrityError
	if !errors.As(err, &ierr) || ierr.Kind != IntegrityCorruption {
		t.Fatalf("Load() = %v, want corruption integrity error", err)
	}
}

func TestNewerSchemaVersionIsRejected(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	doc := map[string]any{"schema_version": 99, "stack_name": "demo", "status": "running"}
	raw, _ := json.Marshal(doc)
	if err := os.WriteFile(s.Layout().DeploymentFile("demo"), raw, 0o600); err != nil {
		t.Fatalf("writing future record: %v", err)
	}

	_, err := s.Load(ctx, "demo")
	var ierr *IntegrityError
	if !errors.As(err, &ierr) || ierr.Kind != IntegrityMigration {
		t.Fatalf("Load() = %v, want migration integrity error for newer schema", err)
	}
}

func TestMigrationOnRead(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	// A version 1 record: no schema_version, no migration bookkeeping.
	v1 := map[string]any{
		"stack_name":        "legacy",
		"status":            "running",
		"config":            map[string]any{"stack_name": "legacy", "tier": "dev", "region": "us-east-1", "instance_type": "t3.medium", "rollback_timeout_minutes": 30},
		"vpc_id":            "vpc-1",
		"subnet_ids":        []string{"subnet-1"},
		"security_group_id": "sg-1",
		"efs_id":            "fs-1",
		"instance_id":       "i-1",
		"created_at":        "2024-01-01T00:00:00Z",
		"updated_at":        "2024-01-01T00:00:00Z",
	}
	raw, _ := json.Marshal(v1)
	if err := os.WriteFile(s.Layout().DeploymentFile("legacy"), raw, 0o600); err != nil {
		t.Fatalf("writing v1 record: %v", err)
	}

	loaded, err := s.Load(ctx, "legacy")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if loaded.SchemaVersion != api.SchemaVersion {
		t.Errorf("schema version = %d, want %d", loaded.SchemaVersion, api.SchemaVersion)
	}
	found := false
	for _, name := range loaded.MigrationHistory {
		if name == "add-provenance-and-history" {
			found = true
		}
	}
	if !found {
		t.Errorf("migration history %v missing the v1->v2 step", loaded.MigrationHistory)
	}

	// The file on disk is rewritten at the current version...
	diskRaw, err := os.ReadFile(s.Layout().DeploymentFile("legacy"))
	if err != nil {
		t.Fatalf("re-reading record: %v", err)
	}
	var diskDoc map[string]any
	if err := json.Unmarshal(diskRaw, &diskDoc); err != nil {
		t.Fatalf("parsing rewritten record: %v", err)
	}
	if got := versionOf(diskDoc); got != api.SchemaVersion {
		t.Errorf("on-disk schema version after migration = %d, want %d", got, api.SchemaVersion)
	}

	// ...and the pre-migration bytes survive as a backup.
	backups, err := s.ListBackups(ctx, "legacy")
	if err != nil {
		t.Fatalf("ListBackups() = %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("got %d backups after migration, want 1", len(backups))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if err := s.Delete(ctx, "demo"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if s.Exists("demo") {
		t.Error("record still exists after Delete")
	}
	if err := s.Delete(ctx, "demo"); err != nil {
		t.Errorf("second Delete() = %v, want nil", err)
	}
}

func TestArchiveWritesRecord(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	st.Status = api.StatusTerminated
	path, err := s.Archive(ctx, st)
	if err != nil {
		t.Fatalf("Archive() = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	archived := &api.DeploymentState{}
	if err := json.Unmarshal(raw, archived); err != nil {
		t.Fatalf("parsing archive: %v", err)
	}
	if archived.StackName != "demo" || archived.Status != api.StatusTerminated {
		t.Errorf("archived record = %s/%s, want demo/terminated", archived.StackName, archived.Status)
	}
}

func TestRestoreByPathAndLatest(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	st := runningState("demo")
	st.InstanceID = "i-old"
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if _, err := s.Backup(ctx, "demo", "pre-update"); err != nil {
		t.Fatalf("Backup() = %v", err)
	}
	st.InstanceID = "i-new"
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	backups, err := s.ListBackups(ctx, "demo")
	if err != nil || len(backups) == 0 {
		t.Fatalf("ListBackups() = %v, %d entries", err, len(backups))
	}
	var labelled string
	for _, b := range backups {
		if strings.Contains(b.Name, "pre-update") {
			labelled = b.Path
		}
	}
	if labelled == "" {
		t.Fatalf("no labelled backup found in %v", backups)
	}

	restored, err := s.Restore(ctx, "demo", labelled)
	if err != nil {
		t.Fatalf("Restore() = %v", err)
	}
	if restored.InstanceID != "i-old" {
		t.Errorf("restored instance id = %q, want %q", restored.InstanceID, "i-old")
	}

	live, err := s.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("Load() after restore = %v", err)
	}
	if live.InstanceID != "i-old" {
		t.Errorf("live record after restore = %q, want %q", live.InstanceID, "i-old")
	}
}
