package gitfoil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

// Wrapped key file wire layout (fixed-width header):
//
//	version    (1B)              currently 1
//	iterations (4B, big-endian)  PBKDF2 iteration count used
//	salt       (32B)             random, unique per write
//	nonce      (12B)             random, unique per write
//	tag        (16B)             AES-256-GCM authentication tag
//	ciphertext (variable)        sealed serialized keypair
//
// The iteration count travels in-band so old files stay decryptable after
// the default is raised, and so the cost can be tuned per machine.
const (
	// WrappedKeyVersion is the current wrapped key file format version.
	WrappedKeyVersion = uint8(1)

	// DefaultIterations is the default PBKDF2-HMAC-SHA512 iteration count.
	DefaultIterations = 600_000

	// MinPasswordLength and MaxPasswordLength bound accepted passwords,
	// checked before any derivation work.
	MinPasswordLength = 8
	MaxPasswordLength = 1024

	wrapSaltSize  = 32
	wrapNonceSize = 12
	wrapTagSize   = 16
	wrapKEKSize   = 32

	// Sanity bound on the stored iteration count. A count outside this
	// range marks the file as malformed rather than merely slow.
	minIterations = 1
	maxIterations = 10_000_000

	wrapHeaderSize = 1 + 4 + wrapSaltSize + wrapNonceSize + wrapTagSize
)

// wrapAAD is the fixed version-tagged associated data bound into the wrap.
var wrapAAD = []byte("gitfoil-keywrap-v1")

// ValidatePassword rejects passwords shorter than 8 or longer than 1024
// characters before any PBKDF2 work is attempted.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// EncryptKeypair wraps a serialized keypair under a password-derived KEK.
// A fresh salt and nonce are generated on every call, so wrapping the same
// keypair twice yields different bytes. Pass iterations <= 0 for the
// default.
func EncryptKeypair(kp *Keypair, password string, iterations int) ([]byte, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if iterations < minIterations || iterations > maxIterations {
		return nil, fmt.Errorf("%w: iteration count %d outside sanity bound", ErrInvalidFormat, iterations)
	}

	serialized, err := kp.MarshalBinary()
	if err != nil {
		return nil, err
	}
	defer zeroBytes(serialized)

	salt := make([]byte, wrapSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	kek := deriveKEK(password, salt, iterations)
	defer zeroBytes(kek)

	aead, err := newWrapAEAD(kek)
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, serialized, wrapAAD)
	split := len(sealed) - wrapTagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	out := make([]byte, 0, wrapHeaderSize+len(ciphertext))
	out = append(out, WrappedKeyVersion)
	var iterField [4]byte
	binary.BigEndian.PutUint32(iterField[:], uint32(iterations))
	out = append(out, iterField[:]...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptKeypair unwraps a password-wrapped keypair. Structural problems
// (truncation, unsupported version, iteration count outside the sanity
// bound) return ErrInvalidFormat. Authentication failure returns
// ErrInvalidPassword; a wrong password and a tampered file are deliberately
// indistinguishable so no oracle is exposed.
func DecryptKeypair(data []byte, password string) (*Keypair, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if len(data) < wrapHeaderSize {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidFormat)
	}
	if data[0] != WrappedKeyVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, data[0])
	}

	iterations := int(binary.BigEndian.Uint32(data[1:5]))
	if iterations < minIterations || iterations > maxIterations {
		return nil, fmt.Errorf("%w: iteration count %d outside sanity bound", ErrInvalidFormat, iterations)
	}

	off := 5
	salt := data[off : off+wrapSaltSize]
	off += wrapSaltSize
	nonce := data[off : off+wrapNonceSize]
	off += wrapNonceSize
	tag := data[off : off+wrapTagSize]
	off += wrapTagSize
	ciphertext := data[off:]

	// Re-derive the KEK with the stored parameters, not the defaults.
	kek := deriveKEK(password, salt, iterations)
	defer zeroBytes(kek)

	aead, err := newWrapAEAD(kek)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+wrapTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	serialized, err := aead.Open(nil, nonce, sealed, wrapAAD)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	defer zeroBytes(serialized)

	return UnmarshalKeypair(serialized)
}

// deriveKEK derives the 32-byte key-encryption-key via PBKDF2-HMAC-SHA512.
func deriveKEK(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, wrapKEKSize, sha512.New)
}

func newWrapAEAD(kek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: aes-256-gcm: %v", ErrBackendUnavailable, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: aes-256-gcm: %v", ErrBackendUnavailable, err)
	}
	return aead, nil
}
