package gitfoil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

const (
	// KeyFileName is the plaintext keypair file.
	KeyFileName = "master.key"

	// WrappedKeyFileName is the password-wrapped keypair file.
	WrappedKeyFileName = "master.key.enc"

	// KeyDirName is the subdirectory of the repository's private Git
	// metadata directory that holds the key files.
	KeyDirName = "git_foil"

	keyDirMode  = os.FileMode(0700)
	keyFileMode = os.FileMode(0600)
)

// DefaultKeyDir resolves the key directory under the repository's private
// Git metadata directory (typically ".git").
func DefaultKeyDir(gitDir string) string {
	return filepath.Join(gitDir, KeyDirName)
}

// KeyStore persists exactly one of {plaintext keypair file, wrapped key
// file} under a private directory. Writes are atomic: content lands in an
// exclusively-created temp file, is flushed and permission-restricted to
// 0600, and only then renamed into place. No observer ever sees a partial
// file or a window with permissive mode. Concurrent writers race on the
// rename but can never corrupt the file.
type KeyStore struct {
	fs  absfs.FileSystem
	dir string
}

// NewKeyStore opens (creating if absent, mode 0700) the key directory on
// the given filesystem.
func NewKeyStore(fs absfs.FileSystem, dir string) (*KeyStore, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("key directory cannot be empty")
	}

	if err := fs.MkdirAll(dir, keyDirMode); err != nil {
		return nil, NewIOError("mkdir", dir, err)
	}
	// Tighten a pre-existing directory; the mode must keep the directory
	// bit or Chmod would strip the file type from the stored mode.
	if err := fs.Chmod(dir, os.ModeDir|keyDirMode); err != nil {
		return nil, NewIOError("chmod", dir, err)
	}
	return &KeyStore{fs: fs, dir: dir}, nil
}

// Dir returns the key directory path.
func (s *KeyStore) Dir() string {
	return s.dir
}

// KeyPath returns the path of the plaintext keypair file.
func (s *KeyStore) KeyPath() string {
	return filepath.Join(s.dir, KeyFileName)
}

// WrappedKeyPath returns the path of the password-wrapped key file.
func (s *KeyStore) WrappedKeyPath() string {
	return filepath.Join(s.dir, WrappedKeyFileName)
}

// Exists reports whether the named key file exists.
func (s *KeyStore) Exists(name string) bool {
	_, err := s.fs.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// WriteFile atomically writes data to the named key file with mode 0600.
func (s *KeyStore) WriteFile(name string, data []byte) error {
	final := filepath.Join(s.dir, name)

	// Unique temp name in the same directory; exclusive creation defends
	// against collision with a concurrent writer's temp file.
	tmp := filepath.Join(s.dir, fmt.Sprintf(".%s.%s.tmp", name, uuid.New().String()))

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return NewIOError("create", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return NewIOError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return NewIOError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return NewIOError("close", tmp, err)
	}

	// Restrict permissions before the file becomes visible at its final
	// name; O_CREAT mode is subject to umask.
	if err := s.fs.Chmod(tmp, keyFileMode); err != nil {
		s.fs.Remove(tmp)
		return NewIOError("chmod", tmp, err)
	}

	if err := s.fs.Rename(tmp, final); err != nil {
		s.fs.Remove(tmp)
		return NewIOError("rename", final, err)
	}
	return nil
}

// ReadFile reads the named key file.
func (s *KeyStore) ReadFile(name string) ([]byte, error) {
	path := filepath.Join(s.dir, name)
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, NewIOError("open", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewIOError("read", path, err)
	}
	return data, nil
}

// Remove deletes the named key file.
func (s *KeyStore) Remove(name string) error {
	path := filepath.Join(s.dir, name)
	if err := s.fs.Remove(path); err != nil {
		return NewIOError("remove", path, err)
	}
	return nil
}

// Backup copies the named key file to a timestamped backup in the same
// directory, preserving its permissions, and returns the backup's path.
// Backups are never deleted by gitfoil.
func (s *KeyStore) Backup(name string) (string, error) {
	src := filepath.Join(s.dir, name)
	info, err := s.fs.Stat(src)
	if err != nil {
		return "", NewIOError("stat", src, err)
	}

	data, err := s.ReadFile(name)
	if err != nil {
		return "", err
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	backupName := fmt.Sprintf("%s.backup.%s", name, stamp)
	backup := filepath.Join(s.dir, backupName)

	f, err := s.fs.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return "", NewIOError("create", backup, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(backup)
		return "", NewIOError("write", backup, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(backup)
		return "", NewIOError("sync", backup, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(backup)
		return "", NewIOError("close", backup, err)
	}
	if err := s.fs.Chmod(backup, info.Mode().Perm()); err != nil {
		s.fs.Remove(backup)
		return "", NewIOError("chmod", backup, err)
	}
	return backup, nil
}

// WriteKeypair persists a keypair in plaintext mode.
func (s *KeyStore) WriteKeypair(kp *Keypair) error {
	data, err := kp.MarshalBinary()
	if err != nil {
		return err
	}
	defer zeroBytes(data)
	return s.WriteFile(KeyFileName, data)
}

// ReadKeypair loads the plaintext keypair file.
func (s *KeyStore) ReadKeypair() (*Keypair, error) {
	data, err := s.ReadFile(KeyFileName)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(data)
	return UnmarshalKeypair(data)
}

// WriteWrappedKeypair persists a keypair in password-protected mode.
func (s *KeyStore) WriteWrappedKeypair(kp *Keypair, password string, iterations int) error {
	data, err := EncryptKeypair(kp, password, iterations)
	if err != nil {
		return err
	}
	return s.WriteFile(WrappedKeyFileName, data)
}

// ReadWrappedKeypair loads and unwraps the password-protected key file.
func (s *KeyStore) ReadWrappedKeypair(password string) (*Keypair, error) {
	data, err := s.ReadFile(WrappedKeyFileName)
	if err != nil {
		return nil, err
	}
	return DecryptKeypair(data, password)
}
