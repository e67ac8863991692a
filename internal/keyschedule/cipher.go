package keyschedule

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// AEADCipher wraps one direction's AES-128-GCM traffic key, deriving a
// fresh nonce from the write/read IV and a monotonically increasing
// sequence number for every record, per RFC 8446 §5.3.
type AEADCipher struct {
	aead      cipher.AEAD
	iv        []byte
	seq       uint64
	exhausted bool
}

// NewAEADCipher builds an AEADCipher over a 16-byte AES-128 key and a
// 12-byte IV.
func NewAEADCipher(key, iv []byte) (*AEADCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tlserr.Cryptof(err, "new AES cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tlserr.Cryptof(err, "new GCM")
	}
	return &AEADCipher{aead: aead, iv: append([]byte(nil), iv...)}, nil
}

// nonce XORs the fixed IV with the big-endian, left-zero-padded sequence
// number, then advances the sequence counter. It returns an error once the
// sequence space (2^64-1 records) is exhausted; per RFC 8446 §5.5 the
// connection must be closed at that point rather than reuse a nonce.
func (c *AEADCipher) nonce() ([]byte, error) {
	if c.exhausted {
		return nil, tlserr.Cryptof(nil, "sequence number exhausted, connection must be closed")
	}
	out := make([]byte, len(c.iv))
	copy(out, c.iv)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], c.seq)
	for i := 0; i < len(seqBytes); i++ {
		out[len(out)-len(seqBytes)+i] ^= seqBytes[i]
	}
	if c.seq == ^uint64(0) {
		c.exhausted = true
	} else {
		c.seq++
	}
	return out, nil
}

// Overhead returns the number of bytes of authentication tag Seal adds to
// its output.
func (c *AEADCipher) Overhead() int {
	return c.aead.Overhead()
}

// Seal encrypts plaintext (already framed as a TLSInnerPlaintext, i.e.
// content followed by its ContentType byte) using header as the
// associated data, per RFC 8446 §5.2.
func (c *AEADCipher) Seal(header, plaintext []byte) ([]byte, error) {
	n, err := c.nonce()
	if err != nil {
		return nil, err
	}
	return c.aead.Seal(nil, n, plaintext, header), nil
}

// Open decrypts ciphertext sealed with Seal, verifying header as the
// associated data.
func (c *AEADCipher) Open(header, ciphertext []byte) ([]byte, error) {
	n, err := c.nonce()
	if err != nil {
		return nil, err
	}
	plaintext, err := c.aead.Open(nil, n, ciphertext, header)
	if err != nil {
		return nil, tlserr.Cryptof(err, "AEAD open failed")
	}
	return plaintext, nil
}
