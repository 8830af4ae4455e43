package state

import (
	"errors"
	"testing"
)

func TestUpgradeV1ToV2(t *testing.T) {
	m := DefaultMigrator()
	doc := map[string]any{"stack_name": "legacy"}

	out, err := m.Upgrade(doc, 1, 2)
	if err != nil {
		t.Fatalf("Upgrade() = %v", err)
	}
	if got := versionOf(out); got != 2 {
		t.Errorf("schema_version = %d, want 2", got)
	}
	if _, ok := out["resource_provenance"]; !ok {
		t.Error("resource_provenance was not initialised")
	}
	history, ok := out["migration_history"].([]any)
	if !ok || len(history) != 1 || history[0] != "add-provenance-and-history" {
		t.Errorf("migration_history = %v, want one v1->v2 entry", out["migration_history"])
	}
}

func TestUpgradePreservesExistingFields(t *testing.T) {
	m := DefaultMigrator()
	doc := map[string]any{
		"stack_name":          "legacy",
		"resource_provenance": map[string]any{"vpc": "reused"},
	}
	out, err := m.Upgrade(doc, 1, 2)
	if err != nil {
		t.Fatalf("Upgrade() = %v", err)
	}
	prov := out["resource_provenance"].(map[string]any)
	if prov["vpc"] != "reused" {
		t.Errorf("existing provenance was clobbered: %v", prov)
	}
}

func TestUpgradeWithNoMatchingStep(t *testing.T) {
	m := NewMigrator() // empty chain
	_, err := m.Upgrade(map[string]any{}, 1, 2)
	if err == nil {
		t.Fatal("Upgrade() succeeded with no registered steps")
	}
}

func TestDowngradeReversesUpgrade(t *testing.T) {
	m := DefaultMigrator()
	doc := map[string]any{"stack_name": "legacy"}

	up, err := m.Upgrade(doc, 1, 2)
	if err != nil {
		t.Fatalf("Upgrade() = %v", err)
	}
	down, err := m.Downgrade(up, 2, 1)
	if err != nil {
		t.Fatalf("Downgrade() = %v", err)
	}
	if _, ok := down["resource_provenance"]; ok {
		t.Error("resource_provenance survived the downgrade")
	}
	if got := versionOf(down); got != 1 {
		t.Errorf("schema_version after downgrade = %d, want 1", got)
	}
}

func TestUpgradeStepFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	m := NewMigrator(Migration{
		FromVersion: 1,
		ToVersion:   2,
		Name:        "exploding-step",
		Up:          func(doc map[string]any) (map[string]any, error) { return nil, boom },
	})
	_, err := m.Upgrade(map[string]any{}, 1, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("Upgrade() = %v, want wrapped step error", err)
	}
}

func TestVersionOfDefaults(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want int
	}{
		{name: "missing version defaults to 1", doc: map[string]any{}, want: 1},
		{name: "string version defaults to 1", doc: map[string]any{"schema_version": "two"}, want: 1},
		{name: "numeric version is used", doc: map[string]any{"schema_version": float64(2)}, want: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := versionOf(test.doc); got != test.want {
				t.Errorf("versionOf() = %d, want %d", got, test.want)
			}
		})
	}
}
