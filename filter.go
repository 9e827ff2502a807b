package gitfoil

import (
	"errors"

	"go.uber.org/zap"
)

// Filter is the clean/smudge surface consumed by the Git filter layer.
// Clean encrypts worktree content on its way into the object store;
// Smudge decrypts it on the way out. Content that is not a gitfoil blob
// passes through smudge unchanged, which supports repositories where
// encryption was enabled after some files were already committed in
// plaintext.
type Filter struct {
	manager  *Manager
	pipeline *Pipeline
	log      *zap.Logger
}

// NewFilter creates a Filter over the given lifecycle manager, using the
// default six-layer pipeline.
func NewFilter(manager *Manager, logger *zap.Logger) (*Filter, error) {
	if manager == nil {
		return nil, errors.New("manager cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		manager:  manager,
		pipeline: NewPipeline(),
		log:      logger,
	}, nil
}

// Clean encrypts plaintext for storage, bound to the given file path.
// Clean always encrypts, even content that itself begins with the blob
// magic: storing anything in the clear because of a sniff would be a
// confidentiality hole. Smudge of such a blob yields the original bytes.
func (f *Filter) Clean(plaintext []byte, path string) ([]byte, error) {
	masterKey, err := f.manager.Unlock()
	if err != nil {
		return nil, err
	}

	return f.pipeline.EncryptBytes(plaintext, masterKey, path)
}

// Smudge decrypts blob content for the worktree. Input that is not a
// well-formed gitfoil blob is returned unchanged, not treated as an
// error; every other failure (including authentication failure) is
// propagated.
func (f *Filter) Smudge(data []byte, path string) ([]byte, error) {
	if !IsEncrypted(data) {
		f.log.Debug("smudge pass-through, not encrypted", zap.String("path", path))
		return data, nil
	}

	masterKey, err := f.manager.Unlock()
	if err != nil {
		return nil, err
	}

	plaintext, err := f.pipeline.DecryptBytes(data, masterKey, path)
	if errors.Is(err, ErrInvalidBlobFormat) {
		// Structurally malformed despite the magic sniff: treat as
		// pre-existing plaintext, same as the unencrypted case.
		f.log.Debug("smudge pass-through, malformed blob", zap.String("path", path))
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
