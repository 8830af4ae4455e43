package state

import "fmt"

// IntegrityKind classifies what went wrong with a persisted record.
type IntegrityKind string

const (
	// IntegrityCorruption means the file could not be parsed at all.
	IntegrityCorruption IntegrityKind = "corruption"
	// IntegrityMigration means the schema version could not be brought to
	// the current version.
	IntegrityMigration IntegrityKind = "migration"
	// IntegrityValidation means the record parsed but violates the state
	// invariants.
	IntegrityValidation IntegrityKind = "validation"
)

// IntegrityError reports a damaged or unmigratable record. When recovery is
// enabled the store resolves these from backups instead of returning them.
type IntegrityError struct {
	Kind IntegrityKind
	// Stack is the deployment the record belongs to.
	Stack string
	Path  string
	Err   error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("state %s for stack %q at %s: %v", e.Kind, e.Stack, e.Path, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError builds a typed integrity failure.
func NewIntegrityError(kind IntegrityKind, stack, path string, err error) *IntegrityError {
	return &IntegrityError{Kind: kind, Stack: stack, Path: path, Err: err}
}
