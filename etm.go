package gitfoil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// CTRHMACEngine is an encrypt-then-MAC composite: AES-256-CTR for
// confidentiality, HMAC-SHA-256 over aad || nonce || ciphertext (with
// length framing) for authenticity. It is the outermost pipeline layer and
// the one layer whose authenticity does not rest on a polynomial MAC.
type CTRHMACEngine struct{}

const (
	etmKeySize   = 64 // 32-byte AES-256 key followed by 32-byte HMAC key
	etmNonceSize = 16 // full AES block, used as the CTR IV
	etmTagSize   = sha256.Size
)

// NewCTRHMACEngine creates the AES-256-CTR + HMAC-SHA-256 engine.
func NewCTRHMACEngine() CipherEngine {
	return &CTRHMACEngine{}
}

func (e *CTRHMACEngine) Name() string   { return "aes-ctr-hmac-sha256" }
func (e *CTRHMACEngine) KeySize() int   { return etmKeySize }
func (e *CTRHMACEngine) NonceSize() int { return etmNonceSize }
func (e *CTRHMACEngine) TagSize() int   { return etmTagSize }

// Seal encrypts with AES-CTR and tags the result with HMAC-SHA-256.
func (e *CTRHMACEngine) Seal(key, nonce, aad, plaintext []byte) ([]byte, []byte, error) {
	if err := validateKey(key, etmKeySize); err != nil {
		return nil, nil, err
	}
	if err := validateNonce(nonce, etmNonceSize); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.Name(), err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, nonce).XORKeyStream(ciphertext, plaintext)

	return ciphertext, etmTag(key[32:], aad, nonce, ciphertext), nil
}

// Open verifies the HMAC tag before decrypting.
func (e *CTRHMACEngine) Open(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if err := validateKey(key, etmKeySize); err != nil {
		return nil, err
	}
	if err := validateNonce(nonce, etmNonceSize); err != nil {
		return nil, err
	}
	if len(tag) != etmTagSize {
		return nil, ErrAuthFailed
	}

	if !hmac.Equal(tag, etmTag(key[32:], aad, nonce, ciphertext)) {
		return nil, ErrAuthFailed
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.Name(), err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// etmTag computes HMAC-SHA-256 over the length-framed inputs so no two
// (aad, nonce, ciphertext) triples share a MAC input.
func etmTag(macKey, aad, nonce, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	var frame [8]byte
	for _, part := range [][]byte{aad, nonce, ciphertext} {
		binary.BigEndian.PutUint64(frame[:], uint64(len(part)))
		mac.Write(frame[:])
		mac.Write(part)
	}
	return mac.Sum(nil)
}
