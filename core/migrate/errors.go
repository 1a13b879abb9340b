package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when a version has no ledger entry.
	ErrRecordNotFound = errors.New("migrate: record not found")
	// ErrNothingToRollback is returned when no registered migration is applied.
	ErrNothingToRollback = errors.New("migrate: nothing to roll back")
	// ErrUnknownVersion is returned when a rollback target is not registered.
	ErrUnknownVersion = errors.New("migrate: unknown version")
)

// ConfigurationError reports an invalid migration registry. The process must not start.
type ConfigurationError struct {
	Version string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migrate: configuration: %s", e.Reason)
	}
	return fmt.Sprintf("migrate: configuration: version %q: %s", e.Version, e.Reason)
}

// ApplicabilityCheckError wraps a failure of the read-only applicability check.
type ApplicabilityCheckError struct {
	Version string
	Err     error
}

func (e *ApplicabilityCheckError) Error() string {
	return fmt.Sprintf("migrate: check %s: %v", e.Version, e.Err)
}

func (e *ApplicabilityCheckError) Unwrap() error { return e.Err }

// UpgradeError wraps a failure while applying a migration.
type UpgradeError struct {
	Version string
	Err     error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("migrate: upgrade %s: %v", e.Version, e.Err)
}

func (e *UpgradeError) Unwrap() error { return e.Err }

// DowngradeError wraps a failure while reverting a migration.
type DowngradeError struct {
	Version string
	Err     error
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("migrate: downgrade %s: %v", e.Version, e.Err)
}

func (e *DowngradeError) Unwrap() error { return e.Err }

// DuplicateVersionError reports an attempt to record a version that is already
// in the ledger. During a run it means another process migrated concurrently.
type DuplicateVersionError struct {
	Version string
	Err     error
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("migrate: version %s already recorded", e.Version)
}

func (e *DuplicateVersionError) Unwrap() error { return e.Err }

// IsDuplicateVersion reports whether err carries a DuplicateVersionError.
func IsDuplicateVersion(err error) bool {
	var dup *DuplicateVersionError
	return errors.As(err, &dup)
}
