// Package keyschedule implements the TLS 1.3 key schedule (RFC 8446 §7):
// HKDF-Extract/Expand-Label, the handshake and application secret
// derivations, and the AEAD traffic keys derived from them.
package keyschedule

import (
	"crypto/sha256"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

const hashSize = sha256.Size

// zeroHash returns length zero bytes, used as both the Extract salt for
// the early secret and as the IKM when no PSK is in use.
func zeroHash(length int) []byte {
	return make([]byte, length)
}

// emptyHash is SHA256(""), the transcript hash of an empty handshake
// context used when deriving the "derived" secret.
func emptyHash() []byte {
	h := sha256.Sum256(nil)
	return h[:]
}

// extract implements HKDF-Extract(salt, ikm) with SHA-256.
func extract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// hkdfLabelBytes builds the wire encoding of the HkdfLabel structure from
// RFC 8446 §7.1:
//
//	struct {
//	    uint16 length;
//	    opaque label<7..255> = "tls13 " + Label;
//	    opaque context<0..255> = Context;
//	} HkdfLabel;
func hkdfLabelBytes(length int, label string, context []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(length))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte("tls13 "))
		b.AddBytes([]byte(label))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	out, err := b.Bytes()
	if err != nil {
		// Only fails if a length field overflows its uint8/uint16 prefix,
		// which cannot happen for the fixed labels and digest-sized
		// contexts used in this package.
		panic(err)
	}
	return out
}

// expandLabel implements HKDF-Expand-Label(secret, label, context, length).
func expandLabel(secret []byte, label string, context []byte, length int) []byte {
	out := make([]byte, length)
	info := hkdfLabelBytes(length, label, context)
	reader := hkdf.Expand(sha256.New, secret, info)
	if _, err := reader.Read(out); err != nil {
		// hkdf.Expand's Read only fails past 255*hash.Size bytes, far
		// beyond any length used here (at most 32 bytes).
		panic(err)
	}
	return out
}

// deriveSecret implements Derive-Secret(secret, label, messages) where
// messages has already been reduced to its transcript hash.
func deriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return expandLabel(secret, label, transcriptHash, hashSize)
}

// deriveEmptySecret computes Derive-Secret(secret, "derived", ""), the salt
// for the next Extract stage: applied to the early secret it yields the
// salt for the handshake secret, and applied to the handshake secret it
// yields the salt for the master secret.
func deriveEmptySecret(secret []byte) []byte {
	return deriveSecret(secret, "derived", emptyHash())
}
