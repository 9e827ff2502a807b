package gitfoil

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMigrationError(t *testing.T) {
	underlying := errors.New("disk full")
	err := NewMigrationError(MigrationStepBackup, "master.key", underlying)

	if !IsMigrationError(err) {
		t.Fatal("IsMigrationError = false")
	}
	if !IsBackupFailed(err) {
		t.Fatal("IsBackupFailed = false")
	}
	if IsRemoveFailed(err) {
		t.Fatal("IsRemoveFailed = true for a backup failure")
	}
	if !errors.Is(err, underlying) {
		t.Fatal("Unwrap lost the underlying error")
	}
	if !strings.Contains(err.Error(), "master.key") {
		t.Fatalf("error message %q missing the path", err.Error())
	}
}

func TestIOError(t *testing.T) {
	underlying := errors.New("permission denied")
	err := NewIOError("rename", "/keys/master.key", underlying)

	if !IsIOError(err) {
		t.Fatal("IsIOError = false")
	}
	if !errors.Is(err, underlying) {
		t.Fatal("Unwrap lost the underlying error")
	}

	wrapped := fmt.Errorf("write key: %w", err)
	if !IsIOError(wrapped) {
		t.Fatal("IsIOError = false through wrapping")
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotInitialized,
		ErrAlreadyInitialized,
		ErrPasswordRequired,
		ErrLocked,
		ErrAlreadyEncrypted,
		ErrAlreadyPlaintext,
		ErrBackendUnavailable,
		ErrInvalidPassword,
		ErrInvalidFormat,
		ErrInvalidBlobFormat,
		ErrDecryptionFailed,
		ErrAuthFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinels %d and %d are not distinct", i, j)
			}
		}
	}
}
