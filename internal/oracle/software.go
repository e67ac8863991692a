package oracle

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"

	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// Software is a process-local reference implementation of Signer backed by
// an in-memory RSA-2048 key. The spec places a hardware-backed oracle's
// internal implementation out of scope; this adapter is the concrete
// stand-in the core is built and tested against.
//
// Every signature is self-verified against the public key before it is
// returned, mirroring the self-check a hardware backend would need to
// perform to catch a faulted or tampered signing operation before it
// reaches the wire.
type Software struct {
	key *rsa.PrivateKey
}

var (
	oidRSASSAPSS = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidSHA256    = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidMGF1      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
)

// NewSoftware generates a fresh RSA-2048 key pair for the oracle.
func NewSoftware() (*Software, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, tlserr.Signerf(err, "generate RSA key")
	}
	return &Software{key: key}, nil
}

// Public returns the oracle's RSA public key.
func (s *Software) Public() crypto.PublicKey {
	return &s.key.PublicKey
}

// pssOptions returns the PSS parameters this oracle always signs with:
// SHA-256, MGF1-SHA256, salt length equal to the hash size.
func pssOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
}

// Sign implements crypto.Signer. digest must already be the SHA-256 hash
// of the message; opts, if non-nil, is ignored in favor of this oracle's
// fixed RSASSA-PSS-RSAE-SHA256 parameters, since the oracle supports
// exactly one scheme.
func (s *Software) Sign(rand io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	sig, err := rsa.SignPSS(rand, s.key, crypto.SHA256, digest, pssOptions())
	if err != nil {
		return nil, tlserr.Signerf(err, "RSASSA-PSS sign")
	}
	if err := rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest, sig, pssOptions()); err != nil {
		return nil, tlserr.Signerf(err, "signature failed self-verification")
	}
	return sig, nil
}

// SignMessage hashes msg with SHA-256 and produces a self-verified
// RSASSA-PSS signature over the digest, for callers that hold a raw message
// rather than a pre-hashed digest. It is not part of the Signer interface;
// the handshake driver hashes its CertificateVerify input itself and calls
// Sign.
func (s *Software) SignMessage(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return s.Sign(rand.Reader, digest[:], pssOptions())
}

// AlgorithmIdentifier returns the rsassaPss AlgorithmIdentifier with
// explicit SHA-256/MGF1-SHA256/salt-32/trailerField-1 parameters, the
// encoding RFC 8017 Appendix A.2.3 requires when the parameters diverge
// from the (SHA-1-based) defaults.
func (s *Software) AlgorithmIdentifier() pkix.AlgorithmIdentifier {
	hashAlgID := pkix.AlgorithmIdentifier{Algorithm: oidSHA256, Parameters: asn1.NullRawValue}
	mgfHashDER, err := asn1.Marshal(hashAlgID)
	if err != nil {
		panic(err)
	}
	mgfAlgID := pkix.AlgorithmIdentifier{
		Algorithm:  oidMGF1,
		Parameters: asn1.RawValue{FullBytes: mgfHashDER},
	}
	params := rsaPSSParams{
		Hash:         hashAlgID,
		MGF:          mgfAlgID,
		SaltLength:   sha256.Size,
		TrailerField: 1,
	}
	paramsDER, err := asn1.Marshal(params)
	if err != nil {
		panic(err)
	}
	return pkix.AlgorithmIdentifier{
		Algorithm:  oidRSASSAPSS,
		Parameters: asn1.RawValue{FullBytes: paramsDER},
	}
}

// rsaPSSParams mirrors RFC 8017 Appendix A.2.3's RSASSA-PSS-params
// structure.
type rsaPSSParams struct {
	Hash         pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:0"`
	MGF          pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:1"`
	SaltLength   int                      `asn1:"optional,explicit,tag:2"`
	TrailerField int                      `asn1:"optional,explicit,tag:3,default:1"`
}
