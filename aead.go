package gitfoil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/cipher/ascon"
	"golang.org/x/crypto/chacha20poly1305"
)

// CipherEngine provides AEAD encryption/decryption for one pipeline layer.
//
// Engines are stateless: the key is supplied per call because each layer of
// the pipeline derives its own subkey from the master key. Seal returns
// ciphertext and authentication tag separately so the blob envelope can
// record tags per layer.
type CipherEngine interface {
	// Name returns the engine identifier used for subkey domain separation
	// and diagnostics.
	Name() string

	// KeySize returns the required key size in bytes.
	KeySize() int

	// NonceSize returns the size of nonces in bytes.
	NonceSize() int

	// TagSize returns the authentication tag size in bytes.
	TagSize() int

	// Seal encrypts and authenticates plaintext, binding the associated data.
	Seal(key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error)

	// Open authenticates and decrypts ciphertext. Returns ErrAuthFailed when
	// the tag, associated data, nonce, or key do not match.
	Open(key, nonce, aad, ciphertext, tag []byte) ([]byte, error)
}

// aeadEngine adapts any cipher.AEAD constructor to the CipherEngine
// interface. It covers AES-256-GCM, ChaCha20-Poly1305, XChaCha20-Poly1305,
// and Ascon-128a; AES-SIV and the CTR+HMAC composite have their own
// implementations.
type aeadEngine struct {
	name      string
	keySize   int
	nonceSize int
	tagSize   int
	new       func(key []byte) (cipher.AEAD, error)
}

func (e *aeadEngine) Name() string   { return e.name }
func (e *aeadEngine) KeySize() int   { return e.keySize }
func (e *aeadEngine) NonceSize() int { return e.nonceSize }
func (e *aeadEngine) TagSize() int   { return e.tagSize }

func (e *aeadEngine) Seal(key, nonce, aad, plaintext []byte) ([]byte, []byte, error) {
	if err := validateKey(key, e.keySize); err != nil {
		return nil, nil, err
	}
	if err := validateNonce(nonce, e.nonceSize); err != nil {
		return nil, nil, err
	}

	aead, err := e.new(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.name, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - aead.Overhead()
	return sealed[:split], sealed[split:], nil
}

func (e *aeadEngine) Open(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if err := validateKey(key, e.keySize); err != nil {
		return nil, err
	}
	if err := validateNonce(nonce, e.nonceSize); err != nil {
		return nil, err
	}
	if len(tag) != e.tagSize {
		return nil, ErrAuthFailed
	}

	aead, err := e.new(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.name, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// NewAESGCMEngine creates the AES-256-GCM engine.
func NewAESGCMEngine() CipherEngine {
	return &aeadEngine{
		name:      "aes-256-gcm",
		keySize:   32,
		nonceSize: 12,
		tagSize:   16,
		new: func(key []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cipher.NewGCM(block)
		},
	}
}

// NewChaCha20Poly1305Engine creates the ChaCha20-Poly1305 engine.
func NewChaCha20Poly1305Engine() CipherEngine {
	return &aeadEngine{
		name:      "chacha20-poly1305",
		keySize:   chacha20poly1305.KeySize,
		nonceSize: chacha20poly1305.NonceSize,
		tagSize:   chacha20poly1305.Overhead,
		new: func(key []byte) (cipher.AEAD, error) {
			return chacha20poly1305.New(key)
		},
	}
}

// NewXChaCha20Poly1305Engine creates the XChaCha20-Poly1305 engine. The
// extended 24-byte nonce makes random nonces safe at any volume.
func NewXChaCha20Poly1305Engine() CipherEngine {
	return &aeadEngine{
		name:      "xchacha20-poly1305",
		keySize:   chacha20poly1305.KeySize,
		nonceSize: chacha20poly1305.NonceSizeX,
		tagSize:   chacha20poly1305.Overhead,
		new: func(key []byte) (cipher.AEAD, error) {
			return chacha20poly1305.NewX(key)
		},
	}
}

// NewAsconEngine creates the Ascon-128a engine (NIST lightweight
// cryptography winner). Note the 16-byte key.
func NewAsconEngine() CipherEngine {
	return &aeadEngine{
		name:      "ascon-128a",
		keySize:   ascon.KeySize,
		nonceSize: ascon.NonceSize,
		tagSize:   ascon.TagSize,
		new: func(key []byte) (cipher.AEAD, error) {
			return ascon.New(key, ascon.Ascon128a)
		},
	}
}

// GenerateNonce generates a fresh random nonce for the given engine.
func GenerateNonce(engine CipherEngine) ([]byte, error) {
	nonce := make([]byte, engine.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
