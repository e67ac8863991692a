// Package tlserr defines the typed error kinds produced by this module's
// TLS client, key schedule, record layer and CA issuer. Each kind wraps a
// sentinel so callers can classify a failure with errors.Is instead of
// string matching.
package tlserr

import (
	"errors"
	"fmt"
)

// Sentinels identifying the seven error kinds. Wrap one of these with %w
// when returning a concrete failure so errors.Is(err, KindX) keeps working
// after the error has been wrapped several layers deep.
var (
	Transport   = errors.New("transport error")
	Parse       = errors.New("parse error")
	Protocol    = errors.New("protocol error")
	KeyExchange = errors.New("key exchange error")
	Crypto      = errors.New("crypto error")
	Signer      = errors.New("signer error")
	Issuer      = errors.New("issuer error")
)

// Wrap annotates msg with the given sentinel kind and an underlying cause.
// The result satisfies errors.Is(result, kind) and, when cause is non-nil,
// errors.Is and errors.As reach cause as well. errors.Unwrap returns nil
// for a result that wraps both kind and cause.
func Wrap(kind error, msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, cause)
}

// Transportf builds a TransportError for a failed read/write on the
// underlying connection.
func Transportf(cause error, format string, a ...any) error {
	return Wrap(Transport, fmt.Sprintf(format, a...), cause)
}

// Parsef builds a ParseError for malformed wire data.
func Parsef(format string, a ...any) error {
	return Wrap(Parse, fmt.Sprintf(format, a...), nil)
}

// Protocolf builds a ProtocolError for a message that parsed fine but
// violates the handshake's expected sequencing or field values.
func Protocolf(format string, a ...any) error {
	return Wrap(Protocol, fmt.Sprintf(format, a...), nil)
}

// KeyExchangef builds a KeyExchangeError for a failed Diffie-Hellman
// agreement or an invalid peer key share.
func KeyExchangef(cause error, format string, a ...any) error {
	return Wrap(KeyExchange, fmt.Sprintf(format, a...), cause)
}

// Cryptof builds a CryptoError for an AEAD seal/open or HKDF failure.
func Cryptof(cause error, format string, a ...any) error {
	return Wrap(Crypto, fmt.Sprintf(format, a...), cause)
}

// Signerf builds a SignerError for a signing oracle that refused to sign
// or returned a signature that fails self-verification.
func Signerf(cause error, format string, a ...any) error {
	return Wrap(Signer, fmt.Sprintf(format, a...), cause)
}

// Issuerf builds an IssuerError for a CA issuer that could not parse a
// CSR or could not produce a signed certificate.
func Issuerf(cause error, format string, a ...any) error {
	return Wrap(Issuer, fmt.Sprintf(format, a...), cause)
}
