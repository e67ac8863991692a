// Package wire implements the record layer framing and handshake message
// encoding for the single TLS 1.3 configuration this client speaks:
// TLS_AES_128_GCM_SHA256, the X25519 group and the rsa_pss_rsae_sha256
// signature scheme. It never negotiates anything else.
package wire

import "fmt"

// ContentType identifies a record layer record's payload type.
type ContentType uint8

// Record layer content types, RFC 8446 §5.1.
const (
	ContentTypeInvalid          ContentType = 0
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

func (ct ContentType) String() string {
	switch ct {
	case ContentTypeInvalid:
		return "invalid"
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	default:
		return fmt.Sprintf("{ContentType %d}", ct)
	}
}

// ProtocolVersion is the two-byte legacy version field carried by every
// record header and ClientHello/ServerHello.
type ProtocolVersion uint16

// Legacy versions seen on the wire. TLS 1.3 negotiation happens through
// the supported_versions extension; the record header (except on the
// ClientHello record, see RecordWriter.WriteRecord) and the
// ClientHello/ServerHello legacy_version fields stay pinned to TLS 1.2.
const (
	LegacyVersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13       ProtocolVersion = 0x0304
)

// HandshakeType identifies a handshake message's type. Values follow
// RFC 8446 §B.3; gaps are message types this client never sends or
// receives.
type HandshakeType uint8

const (
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeFinished            HandshakeType = 20
)

func (ht HandshakeType) String() string {
	switch ht {
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeEncryptedExtensions:
		return "encrypted_extensions"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeCertificateRequest:
		return "certificate_request"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeFinished:
		return "finished"
	default:
		return fmt.Sprintf("{HandshakeType %d}", ht)
	}
}

// CipherSuite identifies a record protection algorithm pair.
type CipherSuite uint16

// TLSAES128GCMSHA256 is the only cipher suite this client offers.
const TLSAES128GCMSHA256 CipherSuite = 0x1301

func (cs CipherSuite) String() string {
	if cs == TLSAES128GCMSHA256 {
		return "TLS_AES_128_GCM_SHA256"
	}
	return fmt.Sprintf("{CipherSuite 0x%04x}", uint16(cs))
}

// NamedGroup identifies a key exchange group.
type NamedGroup uint16

// X25519 is the only group this client offers a key share for.
const X25519 NamedGroup = 0x001D

func (g NamedGroup) String() string {
	if g == X25519 {
		return "x25519"
	}
	return fmt.Sprintf("{NamedGroup 0x%04x}", uint16(g))
}

// SignatureScheme identifies a signature algorithm.
type SignatureScheme uint16

// RSAPSSRSAESHA256 is the only signature scheme this client advertises and
// accepts for CertificateVerify.
const RSAPSSRSAESHA256 SignatureScheme = 0x0804

func (s SignatureScheme) String() string {
	if s == RSAPSSRSAESHA256 {
		return "rsa_pss_rsae_sha256"
	}
	return fmt.Sprintf("{SignatureScheme 0x%04x}", uint16(s))
}

// ExtensionType identifies a ClientHello/ServerHello extension.
type ExtensionType uint16

const (
	ExtensionSupportedGroups    ExtensionType = 10
	ExtensionSignatureAlgorithm ExtensionType = 13
	ExtensionSupportedVersions  ExtensionType = 43
	ExtensionKeyShare           ExtensionType = 51
)
