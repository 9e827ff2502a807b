package gitfoil

import (
	"errors"
	"fmt"
)

// Sentinel errors for the key lifecycle state machine.
var (
	// ErrNotInitialized indicates no key file exists in the keyring directory.
	ErrNotInitialized = errors.New("gitfoil is not initialized - no key file found")

	// ErrAlreadyInitialized indicates a key file already exists. Reinitializing
	// is destructive and must be forced explicitly by the caller.
	ErrAlreadyInitialized = errors.New("a key file already exists - refusing to overwrite")

	// ErrPasswordRequired indicates the key is password protected and no
	// password provider was configured.
	ErrPasswordRequired = errors.New("key is password protected - a password is required")

	// ErrLocked indicates the master key was requested before Unlock.
	ErrLocked = errors.New("key is locked - call Unlock first")

	// ErrAlreadyEncrypted indicates a migration to password protection was
	// requested but the key is already password protected.
	ErrAlreadyEncrypted = errors.New("key is already password protected")

	// ErrAlreadyPlaintext indicates a migration to plaintext was requested
	// but the key is already stored in plaintext.
	ErrAlreadyPlaintext = errors.New("key is already stored in plaintext")

	// ErrBackendUnavailable indicates a cipher or KEM provider could not be
	// constructed. This is fatal and not retriable.
	ErrBackendUnavailable = errors.New("cryptographic backend unavailable")
)

// Sentinel errors for the cryptographic and format layers.
var (
	// ErrInvalidPassword indicates an authentication failure while opening a
	// password-wrapped key file. A wrong password and a tampered file are
	// deliberately indistinguishable.
	ErrInvalidPassword = errors.New("invalid password or corrupted key file")

	// ErrInvalidFormat indicates a wrapped key file failed structural
	// parsing: truncated header, unsupported version, or an iteration count
	// outside the sanity bound. Distinct from ErrInvalidPassword.
	ErrInvalidFormat = errors.New("invalid key file format")

	// ErrInvalidBlobFormat indicates content is not a well-formed encrypted
	// blob. The filter layer treats this as "not encrypted" and passes the
	// content through unchanged on smudge.
	ErrInvalidBlobFormat = errors.New("invalid encrypted blob format")

	// ErrDecryptionFailed indicates a layer of the cipher pipeline failed
	// authentication. No partial plaintext is ever returned.
	ErrDecryptionFailed = errors.New("decryption failed - data may be corrupted or tampered")

	// ErrAuthFailed is the low-level authentication failure returned by the
	// individual cipher engines.
	ErrAuthFailed = errors.New("authentication failed - data may be corrupted or tampered")
)

// MigrationStep identifies the step at which a migration failed.
type MigrationStep string

const (
	// MigrationStepBackup is the copy of the existing key file to a
	// timestamped backup.
	MigrationStepBackup MigrationStep = "backup"
	// MigrationStepWrite is the atomic write of the new-mode key file.
	MigrationStepWrite MigrationStep = "write"
	// MigrationStepRemove is the removal of the old-mode key file. Failure
	// here is non-fatal: the new key material is already safely persisted.
	MigrationStepRemove MigrationStep = "remove"
)

// MigrationError reports a failure during key storage migration, carrying
// the step that failed so callers can tell a data-safe partial failure
// (remove) from one that aborted the migration (backup, write).
type MigrationError struct {
	Step MigrationStep // Which migration step failed
	Path string        // File the step operated on
	Err  error         // Underlying error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed: %s: %v", e.Step, e.Path, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// IOError represents a keyring filesystem failure.
type IOError struct {
	Operation string // "read", "write", "rename", "remove", etc.
	Path      string // File path
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a migration error for the given step.
func NewMigrationError(step MigrationStep, path string, err error) error {
	return &MigrationError{Step: step, Path: path, Err: err}
}

// NewIOError creates a keyring I/O error.
func NewIOError(operation, path string, err error) error {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// IsMigrationError checks if an error is a migration error.
func IsMigrationError(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}

// IsBackupFailed checks if an error is a failed migration backup step.
func IsBackupFailed(err error) bool {
	var me *MigrationError
	return errors.As(err, &me) && me.Step == MigrationStepBackup
}

// IsRemoveFailed checks if an error is a failed migration remove step.
// The new key file is already persisted when this is reported; only the
// stale old-mode file needs manual cleanup.
func IsRemoveFailed(err error) bool {
	var me *MigrationError
	return errors.As(err, &me) && me.Step == MigrationStepRemove
}

// IsIOError checks if an error is a keyring I/O error.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}
