package gitfoil

import (
	"fmt"

	"go.uber.org/zap"
)

// StorageMode selects how the keypair is persisted.
type StorageMode uint8

const (
	// ModePlaintext stores the keypair unencrypted (mode 0600).
	ModePlaintext StorageMode = iota
	// ModePasswordProtected stores the keypair wrapped under a password.
	ModePasswordProtected
)

// String returns the string representation of the storage mode.
func (m StorageMode) String() string {
	switch m {
	case ModePlaintext:
		return "plaintext"
	case ModePasswordProtected:
		return "password-protected"
	default:
		return "unknown"
	}
}

// StorageStatus reports which key file is authoritative on disk,
// independent of the in-process cache.
type StorageStatus uint8

const (
	// StatusNotInitialized means no key file exists.
	StatusNotInitialized StorageStatus = iota
	// StatusPlaintext means the plaintext keypair file is authoritative.
	StatusPlaintext
	// StatusPasswordProtected means the wrapped key file is authoritative.
	StatusPasswordProtected
)

// String returns the string representation of the storage status.
func (s StorageStatus) String() string {
	switch s {
	case StatusNotInitialized:
		return "not initialized"
	case StatusPlaintext:
		return "plaintext"
	case StatusPasswordProtected:
		return "password-protected"
	default:
		return "unknown"
	}
}

// PasswordSource identifies where a password provider should read from.
type PasswordSource uint8

const (
	// SourceTerminal prompts on the interactive terminal.
	SourceTerminal PasswordSource = iota
	// SourceStdin reads from standard input.
	SourceStdin
	// SourceFile reads from a file path.
	SourceFile
	// SourceFileDescriptor reads from an inherited file descriptor.
	SourceFileDescriptor
)

// PasswordProvider obtains a password from the user or environment. The
// acquisition mechanics (prompting, reading files or descriptors) live
// outside this package; the lifecycle manager only consumes the result.
type PasswordProvider interface {
	Obtain(prompt string, source PasswordSource) (string, error)
}

// PasswordError is a structured acquisition failure from a password
// provider, carrying the exit code the filter process should terminate
// with.
type PasswordError struct {
	ExitCode int
	Message  string
}

func (e *PasswordError) Error() string {
	return e.Message
}

// StaticPasswordProvider returns a fixed password. Useful for
// non-interactive callers that acquired the password elsewhere.
type StaticPasswordProvider struct {
	Password string
}

// Obtain returns the static password regardless of prompt and source.
func (p *StaticPasswordProvider) Obtain(string, PasswordSource) (string, error) {
	return p.Password, nil
}

// Session is the caller-owned cache of unlocked key material. It is
// process local: each Git filter invocation is its own process, so the
// cache only amortizes repeated operations within one longer-lived
// invocation. Destroyed on explicit clear or process exit.
type Session struct {
	keypair   *Keypair
	masterKey MasterKey
	unlocked  bool
}

// Unlocked reports whether the session holds a cached master key.
func (s *Session) Unlocked() bool {
	return s.unlocked
}

// Clear discards the cached keypair and master key.
func (s *Session) Clear() {
	if s.keypair != nil {
		s.keypair.Zero()
	}
	s.keypair = nil
	s.masterKey.Zero()
	s.unlocked = false
}

// Options configures a Manager.
type Options struct {
	// KEM is the post-quantum provider used at initialization.
	// Defaults to Kyber1024.
	KEM KEMProvider

	// Passwords supplies passwords when the key is password protected.
	// Optional; Unlock fails with ErrPasswordRequired without one.
	Passwords PasswordProvider

	// PasswordSource is handed to the password provider. Defaults to
	// SourceTerminal.
	PasswordSource PasswordSource

	// Iterations is the PBKDF2 iteration count for new wrapped key files.
	// Defaults to DefaultIterations. Existing files always use their
	// stored count.
	Iterations int

	// Logger receives structured lifecycle events. Defaults to a no-op.
	Logger *zap.Logger
}

// Manager is the key lifecycle state machine: it detects the storage mode,
// unlocks (deriving and caching the master key), and migrates safely
// between plaintext and password-protected storage.
type Manager struct {
	store      *KeyStore
	kem        KEMProvider
	passwords  PasswordProvider
	passSource PasswordSource
	iterations int
	log        *zap.Logger
	session    Session
}

// NewManager creates a Manager over the given key store.
func NewManager(store *KeyStore, opts *Options) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("key store cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	m := &Manager{
		store:      store,
		kem:        opts.KEM,
		passwords:  opts.Passwords,
		passSource: opts.PasswordSource,
		iterations: opts.Iterations,
		log:        opts.Logger,
	}
	if m.kem == nil {
		m.kem = NewKyberKEM()
	}
	if m.iterations <= 0 {
		m.iterations = DefaultIterations
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m, nil
}

// Session exposes the manager's cache for callers that need to inspect or
// clear it directly.
func (m *Manager) Session() *Session {
	return &m.session
}

// Status inspects the filesystem and reports which storage mode is
// authoritative. The wrapped key file takes precedence when both exist
// (a transitional migration state).
func (m *Manager) Status() StorageStatus {
	switch {
	case m.store.Exists(WrappedKeyFileName):
		return StatusPasswordProtected
	case m.store.Exists(KeyFileName):
		return StatusPlaintext
	default:
		return StatusNotInitialized
	}
}

// Initialize generates a new hybrid keypair and persists it in the
// requested mode, leaving the session unlocked. It fails with
// ErrAlreadyInitialized if either key file exists; forced
// reinitialization is destructive and must be gated by the caller.
func (m *Manager) Initialize(mode StorageMode, password string) (*Keypair, error) {
	if m.store.Exists(KeyFileName) || m.store.Exists(WrappedKeyFileName) {
		return nil, ErrAlreadyInitialized
	}

	if mode == ModePasswordProtected {
		if err := ValidatePassword(password); err != nil {
			return nil, err
		}
	}

	kp, err := GenerateKeypair(m.kem)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModePlaintext:
		err = m.store.WriteKeypair(kp)
	case ModePasswordProtected:
		err = m.store.WriteWrappedKeypair(kp, password, m.iterations)
	default:
		return nil, fmt.Errorf("unknown storage mode %d", mode)
	}
	if err != nil {
		return nil, err
	}

	masterKey, err := DeriveMasterKey(kp)
	if err != nil {
		return nil, err
	}
	// The session owns its copy: Clear zeroes cached material, and must
	// never reach through to the keypair returned to the caller.
	m.session.keypair = kp.Clone()
	m.session.masterKey = masterKey
	m.session.unlocked = true

	m.log.Info("initialized keypair",
		zap.String("mode", mode.String()),
		zap.String("fingerprint", kp.Fingerprint()),
		zap.String("kem", m.kem.Name()))
	return kp, nil
}

// Unlock loads the keypair, derives the master key, and caches both. When
// the cache already holds a key it returns immediately and never prompts;
// callers that need a fresh prompt must ClearCache first.
func (m *Manager) Unlock() (MasterKey, error) {
	if m.session.unlocked {
		return m.session.masterKey, nil
	}

	var kp *Keypair
	switch m.Status() {
	case StatusNotInitialized:
		return MasterKey{}, ErrNotInitialized

	case StatusPlaintext:
		var err error
		kp, err = m.store.ReadKeypair()
		if err != nil {
			return MasterKey{}, err
		}

	case StatusPasswordProtected:
		if m.passwords == nil {
			return MasterKey{}, ErrPasswordRequired
		}
		password, err := m.passwords.Obtain("Enter GitFoil password: ", m.passSource)
		if err != nil {
			return MasterKey{}, fmt.Errorf("password acquisition failed: %w", err)
		}
		kp, err = m.store.ReadWrappedKeypair(password)
		if err != nil {
			return MasterKey{}, err
		}
	}

	masterKey, err := DeriveMasterKey(kp)
	if err != nil {
		return MasterKey{}, err
	}
	m.session.keypair = kp
	m.session.masterKey = masterKey
	m.session.unlocked = true

	m.log.Debug("unlocked key", zap.String("fingerprint", kp.Fingerprint()))
	return masterKey, nil
}

// MasterKey returns the cached master key. It never prompts or touches the
// filesystem; if the session is locked it returns ErrLocked so
// non-interactive paths fail fast.
func (m *Manager) MasterKey() (MasterKey, error) {
	if !m.session.unlocked {
		return MasterKey{}, ErrLocked
	}
	return m.session.masterKey, nil
}

// ClearCache discards the cached keypair and master key. The next Unlock
// re-reads the key file and, in password-protected mode, prompts again.
func (m *Manager) ClearCache() {
	m.session.Clear()
	m.log.Debug("cleared key cache")
}

// MigrationResult reports the outcome of a successful migration.
type MigrationResult struct {
	// BackupPath is the timestamped backup of the old-mode key file.
	// Backups are never deleted by gitfoil.
	BackupPath string

	// Warning is non-nil when the old-mode file could not be removed
	// after the new-mode file was safely persisted. The stale file needs
	// manual cleanup; no key material was lost.
	Warning error
}

// Migrate converts the key storage between plaintext and
// password-protected modes:
//
//  1. read and verify the source keypair (decrypting with the supplied
//     password when migrating away from password protection)
//  2. copy the existing source file to a timestamped, permission-preserved
//     backup
//  3. atomically write the new-mode file
//  4. remove the old-mode file
//  5. clear the cache
//
// If step 3 fails the old file is untouched. If step 4 fails the new key
// material is already persisted; this is reported as a non-fatal warning
// in the result, never as an error.
func (m *Manager) Migrate(to StorageMode, password string) (*MigrationResult, error) {
	status := m.Status()
	if status == StatusNotInitialized {
		return nil, ErrNotInitialized
	}

	switch to {
	case ModePasswordProtected:
		if status == StatusPasswordProtected {
			return nil, ErrAlreadyEncrypted
		}
	case ModePlaintext:
		if status == StatusPlaintext {
			return nil, ErrAlreadyPlaintext
		}
	default:
		return nil, fmt.Errorf("unknown storage mode %d", to)
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	// Step 1: read and verify the source keypair.
	var (
		kp      *Keypair
		oldName string
		err     error
	)
	if status == StatusPlaintext {
		oldName = KeyFileName
		kp, err = m.store.ReadKeypair()
	} else {
		oldName = WrappedKeyFileName
		kp, err = m.store.ReadWrappedKeypair(password)
	}
	if err != nil {
		return nil, err
	}

	// Step 2: back up the existing source file.
	backupPath, err := m.store.Backup(oldName)
	if err != nil {
		return nil, NewMigrationError(MigrationStepBackup, oldName, err)
	}
	m.log.Info("created key backup", zap.String("path", backupPath))

	// Step 3: write the new-mode file. On failure the old file is
	// untouched and remains authoritative.
	if to == ModePasswordProtected {
		err = m.store.WriteWrappedKeypair(kp, password, m.iterations)
	} else {
		err = m.store.WriteKeypair(kp)
	}
	if err != nil {
		return nil, NewMigrationError(MigrationStepWrite, oldName, err)
	}

	result := &MigrationResult{BackupPath: backupPath}

	// Step 4: remove the old-mode file. Failure here is non-fatal: the
	// new file is already persisted.
	if err := m.store.Remove(oldName); err != nil {
		result.Warning = NewMigrationError(MigrationStepRemove, oldName, err)
		m.log.Warn("stale key file left behind, manual cleanup required",
			zap.String("file", oldName), zap.Error(err))
	}

	// Step 5: clear the cache so the next unlock reflects the new mode.
	m.session.Clear()

	m.log.Info("migrated key storage",
		zap.String("to", to.String()),
		zap.String("fingerprint", kp.Fingerprint()))
	return result, nil
}
