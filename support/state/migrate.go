package state

import (
	"fmt"
	"sort"

	"github.com/geusemaker/geusemaker/api"
)

// Migration is one reversible schema step over the raw JSON document. Up and
// Down are pure: they transform and return the document without touching
// schema_version or migration_history, which the runner maintains.
type Migration struct {
	FromVersion int
	ToVersion   int
	Name        string
	Up          func(doc map[string]any) (map[string]any, error)
	Down        func(doc map[string]any) (map[string]any, error)
}

// Migrator applies registered single-step migrations in version order.
type Migrator struct {
	steps []Migration
}

// NewMigrator sorts the given steps by FromVersion. Steps must form a chain
// without gaps for the versions they cover.
func NewMigrator(steps ...Migration) *Migrator {
	sorted := append([]Migration(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FromVersion < sorted[j].FromVersion })
	return &Migrator{steps: sorted}
}

// DefaultMigrator carries every migration this build knows about.
func DefaultMigrator() *Migrator {
	return NewMigrator(migrationV1ToV2())
}

// migrationV1ToV2 introduces the bookkeeping fields version 1 records
// predate: an explicit schema version, the migration history, and the
// resource provenance map.
func migrationV1ToV2() Migration {
	return Migration{
		FromVersion: 1,
		ToVersion:   2,
		Name:        "add-provenance-and-history",
		Up: func(doc map[string]any) (map[string]any, error) {
			if _, ok := doc["migration_history"]; !ok {
				doc["migration_history"] = []any{}
			}
			if _, ok := doc["resource_provenance"]; !ok {
				doc["resource_provenance"] = map[string]any{}
			}
			return doc, nil
		},
		Down: func(doc map[string]any) (map[string]any, error) {
			delete(doc, "resource_provenance")
			delete(doc, "migration_history")
			return doc, nil
		},
	}
}

// Upgrade walks doc from version `from` up to version `to`, applying each
// step in order, stamping schema_version and appending the step name to
// migration_history as it goes.
func (m *Migrator) Upgrade(doc map[string]any, from, to int) (map[string]any, error) {
	cursor := from
	for cursor < to {
		step, ok := m.stepFrom(cursor)
		if !ok {
			return nil, fmt.Errorf("no migration from version %d", cursor)
		}
		var err error
		doc, err = step.Up(doc)
		if err != nil {
			return nil, fmt.Errorf("migration %q failed: %w", step.Name, err)
		}
		doc["schema_version"] = float64(step.ToVersion)
		doc["migration_history"] = append(historyOf(doc), step.Name)
		cursor = step.ToVersion
	}
	return doc, nil
}

// Downgrade is the inverse walk, used by restore paths and tests.
func (m *Migrator) Downgrade(doc map[string]any, from, to int) (map[string]any, error) {
	cursor := from
	for cursor > to {
		step, ok := m.stepTo(cursor)
		if !ok {
			return nil, fmt.Errorf("no migration down from version %d", cursor)
		}
		var err error
		doc, err = step.Down(doc)
		if err != nil {
			return nil, fmt.Errorf("migration %q (down) failed: %w", step.Name, err)
		}
		doc["schema_version"] = float64(step.FromVersion)
		cursor = step.FromVersion
	}
	return doc, nil
}

func (m *Migrator) stepFrom(version int) (Migration, bool) {
	for _, s := range m.steps {
		if s.FromVersion == version {
			return s, true
		}
	}
	return Migration{}, false
}

func (m *Migrator) stepTo(version int) (Migration, bool) {
	for _, s := range m.steps {
		if s.ToVersion == version {
			return s, true
		}
	}
	return Migration{}, false
}

func historyOf(doc map[string]any) []any {
	history, _ := doc["migration_history"].([]any)
	return history
}

// versionOf extracts the schema version from a raw document, defaulting to 1
// when the field is missing or non-numeric.
func versionOf(doc map[string]any) int {
	switch v := doc["schema_version"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// CurrentVersion is the schema version this build reads and writes.
func CurrentVersion() int { return api.SchemaVersion }
