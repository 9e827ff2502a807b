package gitfoil

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// LayerCount is the number of independent cipher layers in the pipeline.
const LayerCount = 6

// Pipeline runs the fixed ordered sequence of cipher engines as one onion:
// each layer's sealed output (ciphertext) becomes the next layer's input,
// with the per-layer nonces and tags collected into the blob envelope.
// Layer 1 is applied first and is therefore the innermost layer.
//
// Independent ciphers in sequence bound the damage of any single broken
// primitive. Subkeys are domain separated per layer, and the associated
// data binds the file path and layer index, so ciphertext from one file
// cannot be substituted for another's.
type Pipeline struct {
	engines []CipherEngine
}

// NewPipeline creates the default six-layer pipeline:
//
//	1. AES-256-GCM (innermost)
//	2. AES-SIV
//	3. ChaCha20-Poly1305
//	4. XChaCha20-Poly1305
//	5. Ascon-128a
//	6. AES-256-CTR + HMAC-SHA-256 (outermost)
func NewPipeline() *Pipeline {
	return &Pipeline{
		engines: []CipherEngine{
			NewAESGCMEngine(),
			NewSIVEngine(),
			NewChaCha20Poly1305Engine(),
			NewXChaCha20Poly1305Engine(),
			NewAsconEngine(),
			NewCTRHMACEngine(),
		},
	}
}

// Engines returns the ordered layer sequence.
func (p *Pipeline) Engines() []CipherEngine {
	return p.engines
}

// Encrypt turns plaintext into an encrypted blob bound to the given file
// path. A fresh random nonce is generated for every layer on every call,
// so encrypting the same content twice never yields the same blob.
func (p *Pipeline) Encrypt(plaintext []byte, masterKey MasterKey, path string) (*EncryptedBlob, error) {
	if err := validateFilePath(path); err != nil {
		return nil, err
	}

	blob := &EncryptedBlob{
		Version: BlobVersion,
		Layers:  make([]LayerRecord, 0, LayerCount),
	}

	buf := plaintext
	for i, engine := range p.engines {
		key, err := layerKey(masterKey, i, engine)
		if err != nil {
			return nil, err
		}

		nonce, err := GenerateNonce(engine)
		if err != nil {
			zeroBytes(key)
			return nil, err
		}

		ciphertext, tag, err := engine.Seal(key, nonce, layerAAD(i, path), buf)
		zeroBytes(key)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s) encrypt: %w", i+1, engine.Name(), err)
		}

		blob.Layers = append(blob.Layers, LayerRecord{Nonce: nonce, Tag: tag})
		buf = ciphertext
	}

	blob.Ciphertext = buf
	return blob, nil
}

// Decrypt inverts Encrypt, opening layers in reverse order (outermost
// first). Structural mismatches in the blob return ErrInvalidBlobFormat;
// any layer's authentication failure aborts with ErrDecryptionFailed and
// no partial plaintext is ever returned.
func (p *Pipeline) Decrypt(blob *EncryptedBlob, masterKey MasterKey, path string) ([]byte, error) {
	if err := validateFilePath(path); err != nil {
		return nil, err
	}
	if blob == nil || blob.Version != BlobVersion || len(blob.Layers) != LayerCount {
		return nil, fmt.Errorf("%w: bad version or layer count", ErrInvalidBlobFormat)
	}

	buf := blob.Ciphertext
	for i := LayerCount - 1; i >= 0; i-- {
		engine := p.engines[i]
		rec := blob.Layers[i]
		if len(rec.Nonce) != engine.NonceSize() || len(rec.Tag) != engine.TagSize() {
			return nil, fmt.Errorf("%w: layer %d record size mismatch", ErrInvalidBlobFormat, i+1)
		}

		key, err := layerKey(masterKey, i, engine)
		if err != nil {
			return nil, err
		}

		plaintext, err := engine.Open(key, rec.Nonce, layerAAD(i, path), buf, rec.Tag)
		zeroBytes(key)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d (%s)", ErrDecryptionFailed, i+1, engine.Name())
		}
		buf = plaintext
	}

	return buf, nil
}

// EncryptBytes encrypts and serializes in one step.
func (p *Pipeline) EncryptBytes(plaintext []byte, masterKey MasterKey, path string) ([]byte, error) {
	blob, err := p.Encrypt(plaintext, masterKey, path)
	if err != nil {
		return nil, err
	}
	return blob.Serialize()
}

// DecryptBytes deserializes and decrypts in one step.
func (p *Pipeline) DecryptBytes(data []byte, masterKey MasterKey, path string) ([]byte, error) {
	blob, err := DeserializeBlob(data)
	if err != nil {
		return nil, err
	}
	return p.Decrypt(blob, masterKey, path)
}

// layerKey derives the subkey for one layer via HKDF-SHA-256, keyed on the
// layer index and engine name. No two layers share key material even
// though every layer derives from the same master key.
func layerKey(masterKey MasterKey, index int, engine CipherEngine) ([]byte, error) {
	info := fmt.Sprintf("gitfoil/v1/layer/%d/%s", index+1, engine.Name())
	key := make([]byte, engine.KeySize())
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey[:], nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("layer %d subkey derivation: %w", index+1, err)
	}
	return key, nil
}

// layerAAD builds the associated data binding the envelope version, layer
// index, and file path into each layer's authentication.
func layerAAD(index int, path string) []byte {
	aad := make([]byte, 0, len("gitfoil.layer")+4+len(path))
	aad = append(aad, "gitfoil.layer"...)
	aad = append(aad, BlobVersion, uint8(index+1))
	var pathLen [2]byte
	binary.BigEndian.PutUint16(pathLen[:], uint16(len(path)))
	aad = append(aad, pathLen[:]...)
	aad = append(aad, path...)
	return aad
}
