package gitfoil

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// BlobMagic identifies encrypted blobs (ASCII: "GFEB").
	BlobMagic = uint32(0x47464542)

	// BlobVersion is the current blob envelope version.
	BlobVersion = uint8(1)

	// blobHeaderSize is magic (4) plus version (1).
	blobHeaderSize = 5
)

// LayerRecord carries the nonce and authentication tag one pipeline layer
// needs for decryption. Sizes vary per layer's cipher and are recorded
// in-band.
type LayerRecord struct {
	Nonce []byte
	Tag   []byte
}

// EncryptedBlob is the versioned envelope for one file's encrypted
// content: format version, one record per pipeline layer, and the final
// onion ciphertext. It carries everything needed to decrypt with the same
// master key and file path, and nothing else.
type EncryptedBlob struct {
	Version    uint8
	Layers     []LayerRecord
	Ciphertext []byte
}

// Serialize encodes the envelope:
//
//	magic (4B) || version (1B) ||
//	per layer: nonceLen (1B) || nonce || tagLen (1B) || tag ||
//	ciphertext
func (b *EncryptedBlob) Serialize() ([]byte, error) {
	if b.Version != BlobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", b.Version)
	}
	if len(b.Layers) != LayerCount {
		return nil, fmt.Errorf("expected %d layer records, got %d", LayerCount, len(b.Layers))
	}

	buf := new(bytes.Buffer)
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], BlobMagic)
	buf.Write(magic[:])
	buf.WriteByte(b.Version)

	for i, rec := range b.Layers {
		if len(rec.Nonce) == 0 || len(rec.Nonce) > 255 {
			return nil, fmt.Errorf("layer %d: invalid nonce length %d", i+1, len(rec.Nonce))
		}
		if len(rec.Tag) == 0 || len(rec.Tag) > 255 {
			return nil, fmt.Errorf("layer %d: invalid tag length %d", i+1, len(rec.Tag))
		}
		buf.WriteByte(uint8(len(rec.Nonce)))
		buf.Write(rec.Nonce)
		buf.WriteByte(uint8(len(rec.Tag)))
		buf.Write(rec.Tag)
	}

	buf.Write(b.Ciphertext)
	return buf.Bytes(), nil
}

// DeserializeBlob parses an encrypted blob envelope. It never panics on
// malformed input: any structural mismatch returns ErrInvalidBlobFormat,
// which the filter layer uses to recognize content that was never
// encrypted.
func DeserializeBlob(data []byte) (*EncryptedBlob, error) {
	if !IsEncrypted(data) {
		return nil, fmt.Errorf("%w: missing magic or version", ErrInvalidBlobFormat)
	}

	blob := &EncryptedBlob{
		Version: data[4],
		Layers:  make([]LayerRecord, 0, LayerCount),
	}

	off := blobHeaderSize
	for i := 0; i < LayerCount; i++ {
		nonce, next, err := readSizedField(data, off, i)
		if err != nil {
			return nil, err
		}
		tag, next, err := readSizedField(data, next, i)
		if err != nil {
			return nil, err
		}
		blob.Layers = append(blob.Layers, LayerRecord{Nonce: nonce, Tag: tag})
		off = next
	}

	blob.Ciphertext = append([]byte(nil), data[off:]...)
	return blob, nil
}

// IsEncrypted reports whether data begins with a valid blob envelope
// header. A cheap sniff used by the smudge pass-through path and by
// callers probing file state.
func IsEncrypted(data []byte) bool {
	if len(data) < blobHeaderSize {
		return false
	}
	return binary.BigEndian.Uint32(data[:4]) == BlobMagic && data[4] == BlobVersion
}

func readSizedField(data []byte, off, layer int) ([]byte, int, error) {
	if len(data)-off < 1 {
		return nil, 0, fmt.Errorf("%w: truncated at layer %d record", ErrInvalidBlobFormat, layer+1)
	}
	n := int(data[off])
	off++
	if n == 0 || len(data)-off < n {
		return nil, 0, fmt.Errorf("%w: truncated at layer %d record", ErrInvalidBlobFormat, layer+1)
	}
	field := append([]byte(nil), data[off:off+n]...)
	return field, off + n, nil
}
