package gitfoil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
)

// SIVEngine implements AES-SIV (RFC 5297) as a pipeline layer. SIV is
// deterministic by construction; the pipeline restores probabilistic
// encryption by passing a fresh random nonce through S2V as an associated
// data element, as the RFC prescribes for nonce-based use. The synthetic IV
// doubles as the authentication tag.
type SIVEngine struct{}

const (
	sivKeySize   = 64 // two 32-byte AES-256 keys: S2V (CMAC) and CTR
	sivNonceSize = 16
	sivTagSize   = 16
)

// NewSIVEngine creates the AES-SIV cipher engine.
func NewSIVEngine() CipherEngine {
	return &SIVEngine{}
}

func (e *SIVEngine) Name() string   { return "aes-siv" }
func (e *SIVEngine) KeySize() int   { return sivKeySize }
func (e *SIVEngine) NonceSize() int { return sivNonceSize }
func (e *SIVEngine) TagSize() int   { return sivTagSize }

// Seal encrypts plaintext using AES-SIV. The returned tag is the synthetic IV.
func (e *SIVEngine) Seal(key, nonce, aad, plaintext []byte) ([]byte, []byte, error) {
	if err := validateKey(key, sivKeySize); err != nil {
		return nil, nil, err
	}
	if err := validateNonce(nonce, sivNonceSize); err != nil {
		return nil, nil, err
	}

	macKey, ctrKey := key[:32], key[32:]
	siv, err := s2v(macKey, plaintext, aad, nonce)
	if err != nil {
		return nil, nil, err
	}

	ciphertext := make([]byte, len(plaintext))
	if err := sivCTR(ctrKey, siv, plaintext, ciphertext); err != nil {
		return nil, nil, err
	}
	return ciphertext, siv, nil
}

// Open decrypts ciphertext and verifies the synthetic IV.
func (e *SIVEngine) Open(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if err := validateKey(key, sivKeySize); err != nil {
		return nil, err
	}
	if err := validateNonce(nonce, sivNonceSize); err != nil {
		return nil, err
	}
	if len(tag) != sivTagSize {
		return nil, ErrAuthFailed
	}

	macKey, ctrKey := key[:32], key[32:]
	plaintext := make([]byte, len(ciphertext))
	if err := sivCTR(ctrKey, tag, ciphertext, plaintext); err != nil {
		return nil, err
	}

	expected, err := s2v(macKey, plaintext, aad, nonce)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(tag, expected) != 1 {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// s2v is the S2V construction from RFC 5297 section 2.4: a chained CMAC
// over the associated data elements, in order, folded into the plaintext.
func s2v(macKey, plaintext []byte, ad ...[]byte) ([]byte, error) {
	block, err := aes.NewCipher(macKey)
	if err != nil {
		return nil, fmt.Errorf("%w: aes-siv: %v", ErrBackendUnavailable, err)
	}

	d := cmac(block, make([]byte, aes.BlockSize))
	for _, a := range ad {
		gfDouble(&d)
		m := cmac(block, a)
		subtle.XORBytes(d[:], d[:], m[:])
	}

	if len(plaintext) < aes.BlockSize {
		// Short input: xorend degenerates to dbl(D) xor pad(plaintext).
		gfDouble(&d)
		p := pad10(plaintext)
		subtle.XORBytes(d[:], d[:], p[:])
		return cmacSlice(block, d[:]), nil
	}

	t := append([]byte(nil), plaintext...)
	end := t[len(t)-aes.BlockSize:]
	subtle.XORBytes(end, end, d[:])
	return cmacSlice(block, t), nil
}

// cmac computes AES-CMAC (RFC 4493) over msg.
func cmac(block cipher.Block, msg []byte) [aes.BlockSize]byte {
	// Subkeys: K1 = dbl(E(0)), K2 = dbl(K1).
	var k1 [aes.BlockSize]byte
	block.Encrypt(k1[:], k1[:])
	gfDouble(&k1)
	k2 := k1
	gfDouble(&k2)

	var mac [aes.BlockSize]byte
	for len(msg) > aes.BlockSize {
		subtle.XORBytes(mac[:], mac[:], msg[:aes.BlockSize])
		block.Encrypt(mac[:], mac[:])
		msg = msg[aes.BlockSize:]
	}

	var last [aes.BlockSize]byte
	if len(msg) == aes.BlockSize {
		copy(last[:], msg)
		subtle.XORBytes(last[:], last[:], k1[:])
	} else {
		last = pad10(msg)
		subtle.XORBytes(last[:], last[:], k2[:])
	}
	subtle.XORBytes(mac[:], mac[:], last[:])
	block.Encrypt(mac[:], mac[:])
	return mac
}

func cmacSlice(block cipher.Block, msg []byte) []byte {
	m := cmac(block, msg)
	return m[:]
}

// sivCTR runs AES-CTR keyed off the synthetic IV with the 31st and 63rd
// bits cleared (RFC 5297 section 2.5).
func sivCTR(ctrKey, siv, src, dst []byte) error {
	block, err := aes.NewCipher(ctrKey)
	if err != nil {
		return fmt.Errorf("%w: aes-siv: %v", ErrBackendUnavailable, err)
	}

	iv := make([]byte, aes.BlockSize)
	copy(iv, siv)
	iv[8] &= 0x7f
	iv[12] &= 0x7f

	cipher.NewCTR(block, iv).XORKeyStream(dst, src)
	return nil
}

// gfDouble doubles a block in GF(2^128) in place: shift left one bit and,
// on overflow, reduce by the field polynomial (xor 0x87 into the low byte).
func gfDouble(b *[aes.BlockSize]byte) {
	msb := b[0] >> 7
	for i := 0; i < aes.BlockSize-1; i++ {
		b[i] = b[i]<<1 | b[i+1]>>7
	}
	b[aes.BlockSize-1] <<= 1
	if msb != 0 {
		b[aes.BlockSize-1] ^= 0x87
	}
}

// pad10 pads a partial block with a single 1 bit followed by zeros.
func pad10(msg []byte) [aes.BlockSize]byte {
	var out [aes.BlockSize]byte
	n := copy(out[:], msg)
	out[n] = 0x80
	return out
}
