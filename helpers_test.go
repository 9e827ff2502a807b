package gitfoil

import (
	"crypto/sha256"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// fakeKEM is a deterministic, fast KEM provider for tests. Key sizes are
// deliberately unlike Kyber's to exercise provider-defined lengths.
type fakeKEM struct {
	seed byte
}

func (k *fakeKEM) Name() string { return "fake-kem" }

func (k *fakeKEM) GenerateKeypair() ([]byte, []byte, error) {
	public := make([]byte, 64)
	secret := make([]byte, 96)
	sum := sha256.Sum256([]byte{k.seed})
	for i := range public {
		public[i] = sum[i%len(sum)]
	}
	for i := range secret {
		secret[i] = sum[i%len(sum)] ^ 0xff
	}
	return public, secret, nil
}

// countingPasswordProvider records how many times a password was requested.
type countingPasswordProvider struct {
	password string
	calls    int
}

func (p *countingPasswordProvider) Obtain(string, PasswordSource) (string, error) {
	p.calls++
	return p.password, nil
}

func newMemFS() (absfs.FileSystem, error) {
	return memfs.NewFS()
}

func setupMemStore(t *testing.T) (*KeyStore, absfs.FileSystem) {
	t.Helper()

	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("failed to create memfs: %v", err)
	}
	store, err := NewKeyStore(fs, "/keys")
	if err != nil {
		t.Fatalf("failed to create key store: %v", err)
	}
	return store, fs
}

func testKeypair(t *testing.T) *Keypair {
	t.Helper()

	kp, err := GenerateKeypair(&fakeKEM{seed: 1})
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	return kp
}

func testMasterKey(t *testing.T) MasterKey {
	t.Helper()

	key, err := DeriveMasterKey(testKeypair(t))
	if err != nil {
		t.Fatalf("failed to derive master key: %v", err)
	}
	return key
}
