package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// WrapHandshake prefixes body with the 4-byte handshake header
// {msg_type: u8, length: u24}, RFC 8446 §4.
func WrapHandshake(ht HandshakeType, body []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint8(uint8(ht))
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(body)
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// ClientHelloParams are the fields this client fills into every
// ClientHello it sends; everything else is fixed by the single
// configuration this client speaks.
type ClientHelloParams struct {
	Random         [32]byte
	X25519KeyShare []byte // 32-byte X25519 public key
}

// BuildClientHello encodes the handshake body (no 4-byte header) of a
// ClientHello offering exactly TLS_AES_128_GCM_SHA256, X25519 and
// rsa_pss_rsae_sha256, in the extension order supported_groups,
// signature_algorithms, supported_versions, key_share.
func BuildClientHello(p ClientHelloParams) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(LegacyVersionTLS12))
	b.AddBytes(p.Random[:])
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {}) // empty legacy_session_id
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(uint16(TLSAES128GCMSHA256))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0) // compression method: null
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		addExtension(b, ExtensionSupportedGroups, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(X25519))
			})
		})
		addExtension(b, ExtensionSignatureAlgorithm, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(RSAPSSRSAESHA256))
			})
		})
		addExtension(b, ExtensionSupportedVersions, func(b *cryptobyte.Builder) {
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(VersionTLS13))
			})
		})
		addExtension(b, ExtensionKeyShare, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(X25519))
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes(p.X25519KeyShare)
				})
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

func addExtension(b *cryptobyte.Builder, et ExtensionType, data func(b *cryptobyte.Builder)) {
	b.AddUint16(uint16(et))
	b.AddUint16LengthPrefixed(data)
}

// ParseClientHelloKeyShare extracts the X25519 public key from a
// ClientHello handshake body's key_share extension; it ignores every other
// field since the demo server speaks exactly one cipher suite and group.
func ParseClientHelloKeyShare(body []byte) ([]byte, error) {
	s := cryptobyte.String(body)
	var legacyVersion uint16
	var random []byte
	var sessionID cryptobyte.String
	var cipherSuites cryptobyte.String
	var compression cryptobyte.String
	var extensions cryptobyte.String
	if !s.ReadUint16(&legacyVersion) ||
		!s.ReadBytes(&random, 32) ||
		!s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16LengthPrefixed(&cipherSuites) ||
		!s.ReadUint8LengthPrefixed(&compression) ||
		!s.ReadUint16LengthPrefixed(&extensions) ||
		!s.Empty() {
		return nil, tlserr.Parsef("malformed ClientHello")
	}
	for !extensions.Empty() {
		var et uint16
		var data cryptobyte.String
		if !extensions.ReadUint16(&et) || !extensions.ReadUint16LengthPrefixed(&data) {
			return nil, tlserr.Parsef("malformed ClientHello extension")
		}
		if ExtensionType(et) != ExtensionKeyShare {
			continue
		}
		var shares cryptobyte.String
		if !data.ReadUint16LengthPrefixed(&shares) || !data.Empty() {
			return nil, tlserr.Parsef("malformed key_share extension")
		}
		for !shares.Empty() {
			var group uint16
			var keyExchange cryptobyte.String
			if !shares.ReadUint16(&group) || !shares.ReadUint16LengthPrefixed(&keyExchange) {
				return nil, tlserr.Parsef("malformed key_share entry")
			}
			if NamedGroup(group) == X25519 {
				return append([]byte(nil), keyExchange...), nil
			}
		}
	}
	return nil, tlserr.Protocolf("ClientHello missing an X25519 key_share")
}

// BuildServerHello encodes a ServerHello handshake body offering
// TLS_AES_128_GCM_SHA256 and an X25519 key_share.
func BuildServerHello(random [32]byte, x25519KeyShare []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(LegacyVersionTLS12))
	b.AddBytes(random[:])
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {}) // empty legacy_session_id_echo
	b.AddUint16(uint16(TLSAES128GCMSHA256))
	b.AddUint8(0) // compression method: null
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		addExtension(b, ExtensionSupportedVersions, func(b *cryptobyte.Builder) {
			b.AddUint16(uint16(VersionTLS13))
		})
		addExtension(b, ExtensionKeyShare, func(b *cryptobyte.Builder) {
			b.AddUint16(uint16(X25519))
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(x25519KeyShare)
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// BuildEncryptedExtensions encodes an EncryptedExtensions message with an
// empty extensions block; this server offers nothing beyond what
// ServerHello already negotiated.
func BuildEncryptedExtensions() []byte {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// BuildCertificateRequest encodes a CertificateRequest message with an
// empty certificate_request_context and a signature_algorithms extension
// naming rsa_pss_rsae_sha256, the one scheme this implementation speaks.
func BuildCertificateRequest() []byte {
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {}) // empty certificate_request_context
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		addExtension(b, ExtensionSignatureAlgorithm, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(RSAPSSRSAESHA256))
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// ServerHello is the subset of ServerHello fields this client inspects.
type ServerHello struct {
	Random      [32]byte
	CipherSuite CipherSuite
	// X25519KeyShare is the server's key_share extension public key, nil if
	// absent.
	X25519KeyShare []byte
}

// helloRetryRequestRandom is the RFC 8446 §4.1.3 magic value a ServerHello
// carries in place of a random when it is actually a HelloRetryRequest.
// HelloRetryRequest handling is out of scope for this client; receiving one
// is a ProtocolError.
var helloRetryRequestRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// ParseServerHello parses a ServerHello handshake body (without its 4-byte
// header).
func ParseServerHello(body []byte) (*ServerHello, error) {
	s := cryptobyte.String(body)
	var legacyVersion uint16
	var random []byte
	var sessionID cryptobyte.String
	var cipherSuite uint16
	var compression uint8
	var extensions cryptobyte.String
	if !s.ReadUint16(&legacyVersion) ||
		!s.ReadBytes(&random, 32) ||
		!s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16(&cipherSuite) ||
		!s.ReadUint8(&compression) ||
		!s.ReadUint16LengthPrefixed(&extensions) ||
		!s.Empty() {
		return nil, tlserr.Parsef("malformed ServerHello")
	}
	sh := &ServerHello{CipherSuite: CipherSuite(cipherSuite)}
	copy(sh.Random[:], random)
	if sh.Random == helloRetryRequestRandom {
		return nil, tlserr.Protocolf("HelloRetryRequest is not supported")
	}
	if sh.CipherSuite != TLSAES128GCMSHA256 {
		return nil, tlserr.Protocolf("unsupported cipher suite %v", sh.CipherSuite)
	}
	for !extensions.Empty() {
		var et uint16
		var data cryptobyte.String
		if !extensions.ReadUint16(&et) || !extensions.ReadUint16LengthPrefixed(&data) {
			return nil, tlserr.Parsef("malformed ServerHello extension")
		}
		if ExtensionType(et) != ExtensionKeyShare {
			continue
		}
		var group uint16
		var keyExchange cryptobyte.String
		if !data.ReadUint16(&group) || !data.ReadUint16LengthPrefixed(&keyExchange) || !data.Empty() {
			return nil, tlserr.Parsef("malformed key_share extension")
		}
		if NamedGroup(group) != X25519 {
			return nil, tlserr.Protocolf("unsupported key share group %v", NamedGroup(group))
		}
		sh.X25519KeyShare = append([]byte(nil), keyExchange...)
	}
	if sh.X25519KeyShare == nil {
		return nil, tlserr.Protocolf("ServerHello missing key_share extension")
	}
	return sh, nil
}

// HandshakeMessage is one parsed {type, body} pair taken from a
// concatenated handshake message stream.
type HandshakeMessage struct {
	Type HandshakeType
	// Raw is the message including its own 4-byte header, the exact bytes
	// that belong in the transcript hash.
	Raw  []byte
	Body []byte
}

// SplitHandshakeMessages parses a TLSInnerPlaintext payload (the decrypted
// content of one encrypted record, still carrying its trailing zero
// padding and content-type byte) into the zero-padding-stripped content
// type and the sequence of handshake messages packed into it. This client
// only ever decrypts handshake-type records through this path.
func SplitHandshakeMessages(innerPlaintext []byte) (ContentType, []HandshakeMessage, error) {
	ct, content, err := UnwrapInnerPlaintext(innerPlaintext)
	if err != nil {
		return ContentTypeInvalid, nil, err
	}

	var msgs []HandshakeMessage
	s := cryptobyte.String(content)
	for !s.Empty() {
		start := len(content) - len(s)
		var ht uint8
		var body cryptobyte.String
		if !s.ReadUint8(&ht) || !s.ReadUint24LengthPrefixed(&body) {
			return ContentTypeInvalid, nil, tlserr.Parsef("malformed handshake message in encrypted record")
		}
		end := len(content) - len(s)
		msgs = append(msgs, HandshakeMessage{
			Type: HandshakeType(ht),
			Raw:  content[start:end],
			Body: []byte(body),
		})
	}
	return ct, msgs, nil
}

// ReadOneHandshakeMessage parses exactly one {type, body} handshake
// message from a plaintext buffer, failing if any bytes remain afterward.
// This is used for ServerHello, the one handshake message this client
// ever reads off a plaintext (unencrypted) record.
func ReadOneHandshakeMessage(raw []byte) (HandshakeMessage, error) {
	s := cryptobyte.String(raw)
	var ht uint8
	var body cryptobyte.String
	if !s.ReadUint8(&ht) || !s.ReadUint24LengthPrefixed(&body) || !s.Empty() {
		return HandshakeMessage{}, tlserr.Parsef("malformed handshake message")
	}
	return HandshakeMessage{Type: HandshakeType(ht), Raw: raw, Body: []byte(body)}, nil
}

// CertificateEntry is one entry of a Certificate message's
// certificate_list.
type CertificateEntry struct {
	CertData []byte
}

// Certificate is the parsed form of a Certificate handshake message.
type Certificate struct {
	RequestContext []byte
	Entries        []CertificateEntry
}

// ParseCertificate parses a Certificate handshake message body.
func ParseCertificate(body []byte) (*Certificate, error) {
	s := cryptobyte.String(body)
	var reqCtx cryptobyte.String
	var certList cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&reqCtx) || !s.ReadUint24LengthPrefixed(&certList) || !s.Empty() {
		return nil, tlserr.Parsef("malformed Certificate message")
	}
	cert := &Certificate{RequestContext: append([]byte(nil), reqCtx...)}
	for !certList.Empty() {
		var certData cryptobyte.String
		var extensions cryptobyte.String
		if !certList.ReadUint24LengthPrefixed(&certData) || !certList.ReadUint16LengthPrefixed(&extensions) {
			return nil, tlserr.Parsef("malformed CertificateEntry")
		}
		cert.Entries = append(cert.Entries, CertificateEntry{CertData: append([]byte(nil), certData...)})
	}
	return cert, nil
}

// BuildCertificate encodes a client Certificate message carrying exactly
// one DER certificate and no request context or extensions.
func BuildCertificate(certDER []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {}) // empty certificate_request_context
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(certDER)
		})
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {}) // no per-entry extensions
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// CertificateVerify is the parsed form of a CertificateVerify handshake
// message.
type CertificateVerify struct {
	Scheme    SignatureScheme
	Signature []byte
}

// ParseCertificateVerify parses a CertificateVerify handshake message
// body.
func ParseCertificateVerify(body []byte) (*CertificateVerify, error) {
	s := cryptobyte.String(body)
	var scheme uint16
	var sig cryptobyte.String
	if !s.ReadUint16(&scheme) || !s.ReadUint16LengthPrefixed(&sig) || !s.Empty() {
		return nil, tlserr.Parsef("malformed CertificateVerify")
	}
	return &CertificateVerify{
		Scheme:    SignatureScheme(scheme),
		Signature: append([]byte(nil), sig...),
	}, nil
}

// BuildCertificateVerify encodes a CertificateVerify message for the
// rsa_pss_rsae_sha256 scheme.
func BuildCertificateVerify(signature []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(RSAPSSRSAESHA256))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(signature)
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

// ParseFinished parses a Finished handshake message body, returning its
// verify_data.
func ParseFinished(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, tlserr.Parsef("empty Finished message")
	}
	return body, nil
}

// BuildFinished encodes a Finished message carrying verifyData.
func BuildFinished(verifyData []byte) []byte {
	return append([]byte(nil), verifyData...)
}
