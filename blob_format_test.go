package gitfoil

import (
	"bytes"
	"errors"
	"testing"
)

func sampleBlob() *EncryptedBlob {
	blob := &EncryptedBlob{
		Version:    BlobVersion,
		Ciphertext: []byte("onion ciphertext"),
	}
	for i := 0; i < LayerCount; i++ {
		nonce := bytes.Repeat([]byte{byte(i + 1)}, 12+i)
		tag := bytes.Repeat([]byte{byte(0xf0 + i)}, 16)
		blob.Layers = append(blob.Layers, LayerRecord{Nonce: nonce, Tag: tag})
	}
	return blob
}

func TestBlobSerializeRoundTrip(t *testing.T) {
	blob := sampleBlob()

	data, err := blob.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !IsEncrypted(data) {
		t.Fatal("serialized blob not recognized as encrypted")
	}
	if !bytes.Equal(data[:blobHeaderSize], []byte{'G', 'F', 'E', 'B', 0x01}) {
		t.Fatalf("header = %x, want GFEB with version 1", data[:blobHeaderSize])
	}

	parsed, err := DeserializeBlob(data)
	if err != nil {
		t.Fatalf("DeserializeBlob failed: %v", err)
	}
	if parsed.Version != blob.Version {
		t.Fatalf("version = %d, want %d", parsed.Version, blob.Version)
	}
	if len(parsed.Layers) != LayerCount {
		t.Fatalf("layer count = %d, want %d", len(parsed.Layers), LayerCount)
	}
	for i := range blob.Layers {
		if !bytes.Equal(parsed.Layers[i].Nonce, blob.Layers[i].Nonce) {
			t.Fatalf("layer %d nonce mismatch", i+1)
		}
		if !bytes.Equal(parsed.Layers[i].Tag, blob.Layers[i].Tag) {
			t.Fatalf("layer %d tag mismatch", i+1)
		}
	}
	if !bytes.Equal(parsed.Ciphertext, blob.Ciphertext) {
		t.Fatal("ciphertext mismatch")
	}
}

func TestDeserializeBlob_Malformed(t *testing.T) {
	valid, err := sampleBlob().Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"too short", valid[:3]},
		{"wrong magic", append([]byte("XXXX"), valid[4:]...)},
		{"wrong version", append(append([]byte(nil), valid[:4]...), append([]byte{0xff}, valid[5:]...)...)},
		{"truncated header", valid[:blobHeaderSize]},
		{"truncated mid-record", valid[:blobHeaderSize+5]},
		{"plain text file", []byte("just a regular file\n")},
		{"zero length field", func() []byte {
			d := append([]byte(nil), valid...)
			d[blobHeaderSize] = 0
			return d[:blobHeaderSize+1]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeserializeBlob(tt.data); !errors.Is(err, ErrInvalidBlobFormat) {
				t.Fatalf("expected ErrInvalidBlobFormat, got %v", err)
			}
		})
	}
}

func TestSerialize_RejectsBadBlob(t *testing.T) {
	blob := sampleBlob()
	blob.Layers = blob.Layers[:LayerCount-1]
	if _, err := blob.Serialize(); err == nil {
		t.Fatal("expected error for missing layer record")
	}

	blob = sampleBlob()
	blob.Layers[2].Nonce = nil
	if _, err := blob.Serialize(); err == nil {
		t.Fatal("expected error for empty nonce")
	}

	blob = sampleBlob()
	blob.Version = 9
	if _, err := blob.Serialize(); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestIsEncrypted(t *testing.T) {
	valid, err := sampleBlob().Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"valid blob", valid, true},
		{"nil", nil, false},
		{"short", []byte("GFEB"), false},
		{"text", []byte("hello world, long enough"), false},
		{"magic, wrong version", []byte{0x47, 0x46, 0x45, 0x42, 0xff}, false},
		{"header only", []byte{0x47, 0x46, 0x45, 0x42, 0x01}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEncrypted(tt.data); got != tt.want {
				t.Fatalf("IsEncrypted = %v, want %v", got, tt.want)
			}
		})
	}
}
