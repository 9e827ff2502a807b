package gitfoil

import (
	"bytes"
	"errors"
	"testing"
)

func TestPipeline_RoundTrip(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"simple text", []byte("secret configuration\n")},
		{"empty file", []byte{}},
		{"single byte", []byte("x")},
		{"binary content", []byte{0x00, 0x01, 0xfe, 0xff, 0x80}},
		{"large file", bytes.Repeat([]byte("0123456789abcdef"), 8192)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := p.EncryptBytes(tt.plaintext, masterKey, "secrets/app.env")
			if err != nil {
				t.Fatalf("EncryptBytes failed: %v", err)
			}
			if !IsEncrypted(data) {
				t.Fatal("encrypted output not recognized as a blob")
			}

			plaintext, err := p.DecryptBytes(data, masterKey, "secrets/app.env")
			if err != nil {
				t.Fatalf("DecryptBytes failed: %v", err)
			}
			if !bytes.Equal(plaintext, tt.plaintext) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestPipeline_FreshNoncesPerEncryption(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)
	plaintext := []byte("identical input")

	blob1, err := p.Encrypt(plaintext, masterKey, "a.txt")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	blob2, err := p.Encrypt(plaintext, masterKey, "a.txt")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if bytes.Equal(blob1.Ciphertext, blob2.Ciphertext) {
		t.Fatal("identical ciphertext across two encryptions")
	}
	for i := range blob1.Layers {
		if bytes.Equal(blob1.Layers[i].Nonce, blob2.Layers[i].Nonce) {
			t.Fatalf("layer %d reused a nonce", i+1)
		}
	}
}

func TestPipeline_PathBinding(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	data, err := p.EncryptBytes([]byte("content of a"), masterKey, "a.txt")
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	// A blob encrypted for one path must not decrypt under another:
	// ciphertext substitution across files has to fail loudly.
	if _, err := p.DecryptBytes(data, masterKey, "b.txt"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for path mismatch, got %v", err)
	}
}

func TestPipeline_WrongMasterKey(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	data, err := p.EncryptBytes([]byte("content"), masterKey, "a.txt")
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	var wrongKey MasterKey
	copy(wrongKey[:], masterKey[:])
	wrongKey[0] ^= 0x01

	if _, err := p.DecryptBytes(data, wrongKey, "a.txt"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for wrong key, got %v", err)
	}
}

func TestPipeline_TamperDetection(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	data, err := p.EncryptBytes([]byte("tamper target, long enough to matter"), masterKey, "a.txt")
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	// Flip one bit at a spread of offsets past the header: nonces, tags,
	// and ciphertext must all be covered by some layer's authentication.
	for _, offset := range []int{blobHeaderSize + 1, blobHeaderSize + 20, len(data) / 2, len(data) - 1} {
		mutated := append([]byte(nil), data...)
		mutated[offset] ^= 0x01

		_, err := p.DecryptBytes(mutated, masterKey, "a.txt")
		if err == nil {
			t.Fatalf("offset %d: tampered blob decrypted successfully", offset)
		}
		if !errors.Is(err, ErrDecryptionFailed) && !errors.Is(err, ErrInvalidBlobFormat) {
			t.Fatalf("offset %d: unexpected error %v", offset, err)
		}
	}
}

func TestPipeline_TruncatedBlob(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	data, err := p.EncryptBytes([]byte("some content"), masterKey, "a.txt")
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	for _, n := range []int{1, blobHeaderSize, blobHeaderSize + 3, len(data) / 2} {
		_, err := p.DecryptBytes(data[:n], masterKey, "a.txt")
		if err == nil {
			t.Fatalf("truncated to %d bytes: decrypted successfully", n)
		}
		if !errors.Is(err, ErrInvalidBlobFormat) && !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("truncated to %d bytes: unexpected error %v", n, err)
		}
	}
}

func TestPipeline_LayerOrderAndSubkeys(t *testing.T) {
	p := NewPipeline()
	if got := len(p.Engines()); got != LayerCount {
		t.Fatalf("engine count = %d, want %d", got, LayerCount)
	}

	// Layer 1 is the innermost cipher; layer 6 the outermost.
	wantOrder := []string{
		"aes-256-gcm",
		"aes-siv",
		"chacha20-poly1305",
		"xchacha20-poly1305",
		"ascon-128a",
		"aes-ctr-hmac-sha256",
	}
	for i, e := range p.Engines() {
		if e.Name() != wantOrder[i] {
			t.Fatalf("layer %d = %s, want %s", i+1, e.Name(), wantOrder[i])
		}
	}

	// Domain separation: no two layers may derive the same subkey.
	masterKey := testMasterKey(t)
	seen := make(map[string]int)
	for i, e := range p.Engines() {
		key, err := layerKey(masterKey, i, e)
		if err != nil {
			t.Fatalf("layer %d subkey failed: %v", i+1, err)
		}
		if prev, ok := seen[string(key)]; ok {
			t.Fatalf("layers %d and %d derived identical subkeys", prev, i+1)
		}
		seen[string(key)] = i + 1
		if len(key) != e.KeySize() {
			t.Fatalf("layer %d subkey size = %d, want %d", i+1, len(key), e.KeySize())
		}
	}
}

func TestPipeline_EmptyPathRejected(t *testing.T) {
	p := NewPipeline()
	masterKey := testMasterKey(t)

	if _, err := p.EncryptBytes([]byte("x"), masterKey, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
