// Package enroll implements the client side of the certificate
// enrollment dance: build a CSR whose key and signature come from a
// signing oracle, ship it to the issuer over the bespoke length-prefixed
// protocol, and return the issued certificate.
package enroll

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"io"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/oracle"
	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// LengthPrefixSize is the width of the enrollment wire protocol's request
// length prefix. The prototype this protocol was distilled from sent a
// host-native usize (4 or 8 bytes depending on architecture), which breaks
// interoperability between a 32-bit client and a 64-bit issuer or vice
// versa; this implementation pins the width at 8 bytes for every build.
const LengthPrefixSize = 8

// Subject is the CSR subject name used by every enrollment request.
var Subject = pkix.Name{
	CommonName:   "SecPoC",
	Organization: []string{"fox"},
	Country:      []string{"US"},
}

// Client drives a single enrollment round-trip against an issuer address.
type Client struct {
	IssuerAddr string
	Signer     oracle.Signer
	Log        *zap.Logger
}

// Enroll builds a CSR under c.Signer, sends it to the issuer, and returns
// the DER-encoded certificate the issuer signs in response.
func (c *Client) Enroll() ([]byte, error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	csrDER, err := x509.CreateCertificateRequest(nil, &x509.CertificateRequest{
		Subject:            Subject,
		SignatureAlgorithm: x509.SHA256WithRSAPSS,
	}, c.Signer)
	if err != nil {
		return nil, tlserr.Signerf(err, "build CSR")
	}
	if err := os.WriteFile("csr.der", csrDER, 0o644); err != nil {
		log.Warn("failed to write diagnostic csr.der", zap.Error(err))
	}

	conn, err := net.Dial("tcp", c.IssuerAddr)
	if err != nil {
		return nil, tlserr.Transportf(err, "dial issuer %s", c.IssuerAddr)
	}
	defer conn.Close()

	var lengthPrefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint64(lengthPrefix[:], uint64(len(csrDER)))
	if _, err := conn.Write(lengthPrefix[:]); err != nil {
		return nil, tlserr.Transportf(err, "write CSR length prefix")
	}
	if _, err := conn.Write(csrDER); err != nil {
		return nil, tlserr.Transportf(err, "write CSR")
	}
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := closer.CloseWrite(); err != nil {
			return nil, tlserr.Transportf(err, "half-close enrollment connection")
		}
	}

	certDER, err := io.ReadAll(conn)
	if err != nil {
		return nil, tlserr.Transportf(err, "read issued certificate")
	}
	if _, err := x509.ParseCertificate(certDER); err != nil {
		return nil, tlserr.Parsef("issuer returned a non-X.509 response: %v", err)
	}
	log.Info("enrolled certificate", zap.Int("cert_bytes", len(certDER)))
	return certDER, nil
}
