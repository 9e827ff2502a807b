package gitfoil

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
)

const (
	// ClassicalKeySize is the size of the classical public and secret key
	// material in bytes.
	ClassicalKeySize = 32

	// MasterKeySize is the size of the derived symmetric master key.
	MasterKeySize = 32

	// keypairVersion tags the keypair serialization format.
	keypairVersion = uint8(1)
)

// MasterKey is the 32-byte symmetric key all file encryption derives from.
// It is never persisted; it exists only as a transient value derived from
// an unlocked Keypair.
type MasterKey [MasterKeySize]byte

// Bytes returns the key material as a slice.
func (k *MasterKey) Bytes() []byte {
	return k[:]
}

// Zero overwrites the key material. Best effort.
func (k *MasterKey) Zero() {
	zeroBytes(k[:])
}

// Keypair holds the hybrid key material: classical random symmetric-style
// keys alongside a post-quantum KEM key pair. Created once at
// initialization and immutable thereafter.
type Keypair struct {
	ClassicalPublic []byte // 32 bytes
	ClassicalSecret []byte // 32 bytes
	PQPublic        []byte // KEM provider-defined length
	PQSecret        []byte // KEM provider-defined length
}

// KEMProvider supplies post-quantum key-encapsulation key material. The
// concrete key sizes are provider-defined.
type KEMProvider interface {
	// Name returns the provider identifier.
	Name() string

	// GenerateKeypair produces a fresh public/secret key pair.
	GenerateKeypair() (public, secret []byte, err error)
}

// KyberKEM is the default post-quantum provider, backed by Kyber1024.
type KyberKEM struct{}

// NewKyberKEM creates the Kyber1024 KEM provider.
func NewKyberKEM() *KyberKEM {
	return &KyberKEM{}
}

// Name returns "kyber1024".
func (k *KyberKEM) Name() string { return "kyber1024" }

// GenerateKeypair generates a fresh Kyber1024 key pair.
func (k *KyberKEM) GenerateKeypair() ([]byte, []byte, error) {
	pk, sk, err := kyber1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kyber1024: %v", ErrBackendUnavailable, err)
	}

	public := make([]byte, kyber1024.PublicKeySize)
	secret := make([]byte, kyber1024.PrivateKeySize)
	pk.Pack(public)
	sk.Pack(secret)
	return public, secret, nil
}

// GenerateKeypair creates a new hybrid Keypair: classical material from the
// system's cryptographically secure random source, post-quantum material
// from the KEM provider.
func GenerateKeypair(kem KEMProvider) (*Keypair, error) {
	if kem == nil {
		return nil, fmt.Errorf("%w: no KEM provider", ErrBackendUnavailable)
	}

	classicalPublic := make([]byte, ClassicalKeySize)
	classicalSecret := make([]byte, ClassicalKeySize)
	if _, err := rand.Read(classicalPublic); err != nil {
		return nil, fmt.Errorf("failed to generate classical public key: %w", err)
	}
	if _, err := rand.Read(classicalSecret); err != nil {
		return nil, fmt.Errorf("failed to generate classical secret key: %w", err)
	}

	pqPublic, pqSecret, err := kem.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	return &Keypair{
		ClassicalPublic: classicalPublic,
		ClassicalSecret: classicalSecret,
		PQPublic:        pqPublic,
		PQSecret:        pqSecret,
	}, nil
}

// Validate checks the keypair's structural invariants.
func (kp *Keypair) Validate() error {
	if kp == nil {
		return fmt.Errorf("keypair cannot be nil")
	}
	if len(kp.ClassicalPublic) != ClassicalKeySize {
		return fmt.Errorf("classical public key must be %d bytes, got %d", ClassicalKeySize, len(kp.ClassicalPublic))
	}
	if len(kp.ClassicalSecret) != ClassicalKeySize {
		return fmt.Errorf("classical secret key must be %d bytes, got %d", ClassicalKeySize, len(kp.ClassicalSecret))
	}
	if len(kp.PQPublic) == 0 {
		return fmt.Errorf("post-quantum public key cannot be empty")
	}
	if len(kp.PQSecret) == 0 {
		return fmt.Errorf("post-quantum secret key cannot be empty")
	}
	return nil
}

// Equal reports whether two keypairs hold identical key material.
func (kp *Keypair) Equal(other *Keypair) bool {
	if kp == nil || other == nil {
		return kp == other
	}
	return bytes.Equal(kp.ClassicalPublic, other.ClassicalPublic) &&
		bytes.Equal(kp.ClassicalSecret, other.ClassicalSecret) &&
		bytes.Equal(kp.PQPublic, other.PQPublic) &&
		bytes.Equal(kp.PQSecret, other.PQSecret)
}

// Clone returns a deep copy. Owners that zero their copy (session caches)
// must clone rather than alias a keypair the caller still holds.
func (kp *Keypair) Clone() *Keypair {
	if kp == nil {
		return nil
	}
	return &Keypair{
		ClassicalPublic: append([]byte(nil), kp.ClassicalPublic...),
		ClassicalSecret: append([]byte(nil), kp.ClassicalSecret...),
		PQPublic:        append([]byte(nil), kp.PQPublic...),
		PQSecret:        append([]byte(nil), kp.PQSecret...),
	}
}

// Fingerprint returns a short hex digest of the classical public key,
// suitable for status output and logs.
func (kp *Keypair) Fingerprint() string {
	sum := sha256.Sum256(kp.ClassicalPublic)
	return hex.EncodeToString(sum[:8])
}

// Zero overwrites the secret key material. Best effort.
func (kp *Keypair) Zero() {
	zeroBytes(kp.ClassicalSecret)
	zeroBytes(kp.PQSecret)
}

// DeriveMasterKey derives the symmetric master key from a keypair:
// the first 32 bytes of SHA-512(classical_secret || pq_secret).
// Deterministic: the same keypair always yields the same master key, so
// independently unlocking the same stored key reproduces the same file
// encryption key.
func DeriveMasterKey(kp *Keypair) (MasterKey, error) {
	var key MasterKey
	if err := kp.Validate(); err != nil {
		return key, err
	}

	h := sha512.New()
	h.Write(kp.ClassicalSecret)
	h.Write(kp.PQSecret)
	copy(key[:], h.Sum(nil)[:MasterKeySize])
	return key, nil
}

// MarshalBinary serializes the keypair:
//
//	version (1B) || classicalPublic (32B) || classicalSecret (32B) ||
//	pqPublicLen (4B BE) || pqPublic || pqSecretLen (4B BE) || pqSecret
func (kp *Keypair) MarshalBinary() ([]byte, error) {
	if err := kp.Validate(); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(keypairVersion)
	buf.Write(kp.ClassicalPublic)
	buf.Write(kp.ClassicalSecret)

	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(len(kp.PQPublic)))
	buf.Write(lenField[:])
	buf.Write(kp.PQPublic)
	binary.BigEndian.PutUint32(lenField[:], uint32(len(kp.PQSecret)))
	buf.Write(lenField[:])
	buf.Write(kp.PQSecret)

	return buf.Bytes(), nil
}

// UnmarshalKeypair parses a serialized keypair. Any structural mismatch
// returns ErrInvalidFormat.
func UnmarshalKeypair(data []byte) (*Keypair, error) {
	const fixed = 1 + ClassicalKeySize + ClassicalKeySize + 4
	if len(data) < fixed {
		return nil, fmt.Errorf("%w: keypair truncated", ErrInvalidFormat)
	}
	if data[0] != keypairVersion {
		return nil, fmt.Errorf("%w: unsupported keypair version %d", ErrInvalidFormat, data[0])
	}

	kp := &Keypair{}
	off := 1
	kp.ClassicalPublic = append([]byte(nil), data[off:off+ClassicalKeySize]...)
	off += ClassicalKeySize
	kp.ClassicalSecret = append([]byte(nil), data[off:off+ClassicalKeySize]...)
	off += ClassicalKeySize

	pqPublic, off, err := readLengthPrefixed(data, off)
	if err != nil {
		return nil, err
	}
	pqSecret, off, err := readLengthPrefixed(data, off)
	if err != nil {
		return nil, err
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after keypair", ErrInvalidFormat, len(data)-off)
	}

	kp.PQPublic = pqPublic
	kp.PQSecret = pqSecret
	if err := kp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return kp, nil
}

func readLengthPrefixed(data []byte, off int) ([]byte, int, error) {
	if len(data)-off < 4 {
		return nil, 0, fmt.Errorf("%w: keypair truncated", ErrInvalidFormat)
	}
	n := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if n == 0 || len(data)-off < n {
		return nil, 0, fmt.Errorf("%w: keypair truncated", ErrInvalidFormat)
	}
	out := append([]byte(nil), data[off:off+n]...)
	return out, off + n, nil
}
