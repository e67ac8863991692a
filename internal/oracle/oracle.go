// Package oracle defines the signing capability consumed by both the
// enrollment client's CSR builder and the TLS handshake driver's
// CertificateVerify step. The core never hardcodes a particular signer
// backend; it only depends on this interface.
package oracle

import (
	"crypto"
	"crypto/x509/pkix"
)

// Signer is an abstract capability that produces RSASSA-PSS-RSAE-SHA256
// signatures under a fixed public key. Implementations may wrap a
// process-local key, a hardware security module, or any other backend; the
// caller never sees the private key material.
//
// Signer embeds crypto.Signer so it can be handed directly to
// x509.CreateCertificateRequest/x509.CreateCertificate: both call
// Sign(rand, digest, opts) with opts carrying the PSS parameters implied by
// SignatureAlgorithm = x509.SHA256WithRSAPSS, and read Public() for the
// SubjectPublicKeyInfo.
type Signer interface {
	crypto.Signer

	// AlgorithmIdentifier returns the X.509 AlgorithmIdentifier this
	// oracle signs under: rsassaPss with explicit {sha256, mgf1-sha256,
	// saltLength 32, trailerField 1} parameters.
	AlgorithmIdentifier() pkix.AlgorithmIdentifier
}
